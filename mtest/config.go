// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"fmt"
	"os"
	"strings"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// TestDb specifies the name of default test database.
const TestDb = "test"

// AddOptionsToURI appends connection string options to a URI.
func AddOptionsToURI(uri string, opts ...string) string {
	if !strings.ContainsRune(uri, '?') {
		if uri[len(uri)-1] != '/' {
			uri += "/"
		}

		uri += "?"
	} else {
		uri += "&"
	}

	for _, opt := range opts {
		uri += opt
	}

	return uri
}

// AddTLSConfigToURI checks for the environmental variable indicating that the
// tests are being run on an SSL-enabled server, and if so, returns a new URI
// with the necessary configuration.
func AddTLSConfigToURI(uri string) string {
	caFile := os.Getenv("MONGO_GO_DRIVER_CA_FILE")
	if len(caFile) == 0 {
		return uri
	}

	return AddOptionsToURI(uri, "ssl=true&sslCertificateAuthorityFile=", caFile)
}

// AddCompressorToURI checks for the environment variable indicating that the
// tests are being run with compression enabled. If so, it returns a new URI
// with the necessary configuration.
func AddCompressorToURI(uri string) string {
	comp := os.Getenv("MONGO_GO_DRIVER_COMPRESSOR")
	if len(comp) == 0 {
		return uri
	}

	return AddOptionsToURI(uri, "compressors=", comp)
}

// MongoDBURI constructs the URI for the deployment under test from the
// MONGODB_URI environment variable. The default host is "localhost" and the
// default port is "27017".
func MongoDBURI() string {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	uri = AddTLSConfigToURI(uri)
	uri = AddCompressorToURI(uri)
	return uri
}

// ClusterConnString parses the globally configured connection string.
func ClusterConnString() (*connstring.ConnString, error) {
	return connstring.ParseAndValidate(MongoDBURI())
}

// DefaultClientOptions returns the options harness clients are created with
// unless a caller overrides them: the configured URI, majority write concern,
// and primary read preference.
func DefaultClientOptions() *options.ClientOptions {
	return options.Client().
		ApplyURI(MongoDBURI()).
		SetWriteConcern(writeconcern.New(writeconcern.WMajority())).
		SetReadPreference(readpref.Primary())
}

// GetDBName returns the database name for harness operations: the database
// from the connection string if one was given, otherwise a process-scoped
// default.
func GetDBName(cs *connstring.ConnString) string {
	if cs != nil && cs.Database != "" {
		return cs.Database
	}

	return fmt.Sprintf("mongo-go-harness-%d", os.Getpid())
}

// SanitizeDBName converts a test description into a legal database name.
func SanitizeDBName(description string) string {
	name := strings.ReplaceAll(description, "$", "%")
	name = strings.ReplaceAll(name, " ", "_")
	// database names must have fewer than 64 characters
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
