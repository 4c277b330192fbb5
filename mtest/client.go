// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mtest provides a client harness for integration tests against a
// live MongoDB deployment: bootstrap and capability detection, idempotent
// fixture setup, fail point control, and command event capture.
package mtest

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Catvert/mongo-rust-driver/failpoint"
)

// TestClient wraps a connected mongo.Client together with facts about the
// server it is connected to. The facts are captured exactly once, during
// construction, by a two-command handshake run on a reserved session; the
// capability methods are pure reads over them and stay valid for the life of
// the client.
type TestClient struct {
	*mongo.Client

	// Options holds the client options the client was created with.
	Options *options.ClientOptions
	// ServerInfo is the isMaster reply captured during the handshake.
	ServerInfo IsMasterResponse
	// ServerVersion is the server version reported by buildInfo, with any
	// pre-release suffix dropped.
	ServerVersion *semver.Version
}

// New creates a TestClient connected to the globally configured deployment.
func New(ctx context.Context) (*TestClient, error) {
	return NewWithOptions(ctx, nil)
}

// NewWithOptions creates a TestClient with the given options. If opts is nil,
// DefaultClientOptions is used.
//
// Construction runs the bootstrap handshake: an isMaster command against the
// admin database followed by a buildInfo command against the working
// database, both on a single reserved session that is discarded afterwards.
// Any command, decode, or version parse failure is fatal to construction; the
// partially-connected client is disconnected and the error returned without
// retry.
func NewWithOptions(ctx context.Context, opts *options.ClientOptions) (*TestClient, error) {
	if opts == nil {
		opts = DefaultClientOptions()
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("error connecting test client: %v", err)
	}

	tc, err := bootstrap(ctx, client, opts)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return tc, nil
}

// NewWithAdditionalOptions merges the given options over the harness
// defaults. When useMultipleMongoses is false and the deployment is sharded,
// the host list is pinned to a single mongos so that command monitoring and
// fail points observe one router.
func NewWithAdditionalOptions(ctx context.Context, opts *options.ClientOptions, useMultipleMongoses bool) (*TestClient, error) {
	merged := DefaultClientOptions()
	if opts != nil {
		merged = options.MergeClientOptions(merged, opts)
	}

	if !useMultipleMongoses && len(merged.Hosts) > 1 {
		probe, err := New(ctx)
		if err != nil {
			return nil, err
		}
		sharded := probe.IsSharded()
		_ = probe.Disconnect(context.Background())
		if sharded {
			merged.SetHosts(merged.Hosts[:1])
		}
	}

	return NewWithOptions(ctx, merged)
}

func bootstrap(ctx context.Context, client *mongo.Client, opts *options.ClientOptions) (*TestClient, error) {
	sess, err := reserveHandshakeSession(client)
	if err != nil {
		return nil, err
	}
	defer sess.release(context.Background())

	var info IsMasterResponse
	var build buildInfo
	err = mongo.WithSession(ctx, sess.Session, func(sc mongo.SessionContext) error {
		res, err := client.Database("admin").RunCommand(sc, bson.D{{"isMaster", 1}}).DecodeBytes()
		if err != nil {
			return fmt.Errorf("isMaster error: %v", err)
		}
		if err := bson.Unmarshal(res, &info); err != nil {
			return fmt.Errorf("error decoding isMaster reply: %v", err)
		}

		res, err = client.Database(TestDb).RunCommand(sc, bson.D{{"buildInfo", 1}}).DecodeBytes()
		if err != nil {
			return fmt.Errorf("buildInfo error: %v", err)
		}
		if err := bson.Unmarshal(res, &build); err != nil {
			return fmt.Errorf("error decoding buildInfo reply: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	version, err := parseServerVersion(build.Version)
	if err != nil {
		return nil, err
	}

	tc := &TestClient{
		Client:        client,
		Options:       opts,
		ServerInfo:    info,
		ServerVersion: version,
	}
	logrus.WithFields(logrus.Fields{
		"version": version.String(),
		"sharded": tc.IsSharded(),
		"replSet": tc.IsReplicaSet(),
	}).Debug("test client handshake complete")
	return tc, nil
}

// EnableFailPoint installs the given fail point on the server and returns a
// guard that disables it again. Callers are expected to have checked
// SupportsFailCommand and to defer the guard's Release immediately.
func (tc *TestClient) EnableFailPoint(ctx context.Context, fp failpoint.FailPoint) (*failpoint.Guard, error) {
	return failpoint.Enable(ctx, tc.Client, fp)
}

// AuthEnabled reports whether the client was configured with a credential.
func (tc *TestClient) AuthEnabled() bool {
	return tc.Options != nil && tc.Options.Auth != nil
}

// IsReplicaSet reports whether the client was configured with a replica set
// name. The server reply is not consulted.
func (tc *TestClient) IsReplicaSet() bool {
	return tc.Options != nil && tc.Options.ReplicaSet != nil
}

// IsSharded reports whether the isMaster reply identified the server as a
// mongos.
func (tc *TestClient) IsSharded() bool {
	return tc.ServerInfo.Msg != nil && *tc.ServerInfo.Msg == mongosMessage
}

// IsStandalone reports whether the server is neither a replica set member nor
// a mongos.
func (tc *TestClient) IsStandalone() bool {
	return !tc.IsReplicaSet() && !tc.IsSharded()
}

// The version comparisons below ignore the patch version; test requirements
// are only ever stated in terms of major and minor.

// ServerVersionEQ reports whether the server version equals major.minor.
func (tc *TestClient) ServerVersionEQ(major, minor uint64) bool {
	return tc.ServerVersion.Major() == major && tc.ServerVersion.Minor() == minor
}

// ServerVersionGT reports whether the server version is greater than
// major.minor.
func (tc *TestClient) ServerVersionGT(major, minor uint64) bool {
	return tc.ServerVersion.Major() > major ||
		(tc.ServerVersion.Major() == major && tc.ServerVersion.Minor() > minor)
}

// ServerVersionGTE reports whether the server version is at least
// major.minor.
func (tc *TestClient) ServerVersionGTE(major, minor uint64) bool {
	return tc.ServerVersion.Major() > major ||
		(tc.ServerVersion.Major() == major && tc.ServerVersion.Minor() >= minor)
}

// ServerVersionLT reports whether the server version is less than
// major.minor.
func (tc *TestClient) ServerVersionLT(major, minor uint64) bool {
	return tc.ServerVersion.Major() < major ||
		(tc.ServerVersion.Major() == major && tc.ServerVersion.Minor() < minor)
}

// ServerVersionLTE reports whether the server version is at most major.minor.
func (tc *TestClient) ServerVersionLTE(major, minor uint64) bool {
	return tc.ServerVersion.Major() < major ||
		(tc.ServerVersion.Major() == major && tc.ServerVersion.Minor() <= minor)
}

// SupportsFailCommand reports whether the server supports the failCommand
// fail point. mongos gained support in 4.1.5, mongod in 4.0.
func (tc *TestClient) SupportsFailCommand() bool {
	constraint := failCommandMongod
	if tc.IsSharded() {
		constraint = failCommandMongos
	}
	return constraint.Check(tc.ServerVersion)
}

var (
	failCommandMongos = mustConstraint(">= 4.1.5")
	failCommandMongod = mustConstraint(">= 4.0")
)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(fmt.Sprintf("invalid version constraint %q: %v", s, err))
	}
	return c
}
