// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

func TestAddOptionsToURI(t *testing.T) {
	testCases := []struct {
		name     string
		uri      string
		opts     []string
		expected string
	}{
		{"no query string", "mongodb://localhost:27017", []string{"ssl=true"}, "mongodb://localhost:27017/?ssl=true"},
		{"trailing slash", "mongodb://localhost:27017/", []string{"ssl=true"}, "mongodb://localhost:27017/?ssl=true"},
		{"existing query string", "mongodb://localhost:27017/?x=1", []string{"ssl=true"}, "mongodb://localhost:27017/?x=1&ssl=true"},
		{"multiple options", "mongodb://localhost:27017", []string{"compressors=", "snappy"}, "mongodb://localhost:27017/?compressors=snappy"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, AddOptionsToURI(tc.uri, tc.opts...))
		})
	}
}

func TestMongoDBURIDefault(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("MONGO_GO_DRIVER_CA_FILE", "")
	t.Setenv("MONGO_GO_DRIVER_COMPRESSOR", "")

	assert.Equal(t, "mongodb://localhost:27017", MongoDBURI())
}

func TestGetDBName(t *testing.T) {
	cs, err := connstring.ParseAndValidate("mongodb://localhost:27017/harness_db")
	require.NoError(t, err, "parse error: %v", err)
	assert.Equal(t, "harness_db", GetDBName(cs))

	// without a database in the URI the name falls back to a process-scoped
	// default
	cs, err = connstring.ParseAndValidate("mongodb://localhost:27017")
	require.NoError(t, err, "parse error: %v", err)
	assert.True(t, strings.HasPrefix(GetDBName(cs), "mongo-go-harness-"))
	assert.True(t, strings.HasPrefix(GetDBName(nil), "mongo-go-harness-"))
}

func TestSanitizeDBName(t *testing.T) {
	assert.Equal(t, "retryable_writes_%out", SanitizeDBName("retryable writes $out"))

	long := strings.Repeat("a", 100)
	sanitized := SanitizeDBName(long)
	assert.Len(t, sanitized, 63)

	assert.Equal(t, "short", SanitizeDBName("short"))
}
