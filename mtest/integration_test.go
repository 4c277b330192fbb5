// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Catvert/mongo-rust-driver/failpoint"
)

// integrationClient connects a TestClient to the deployment configured
// through MONGODB_URI, skipping the test when no deployment is reachable.
func integrationClient(t *testing.T) *TestClient {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	opts := DefaultClientOptions().SetServerSelectionTimeout(2 * time.Second)
	tc, err := NewWithOptions(ctx, opts)
	if err != nil {
		t.Skipf("skipping; no deployment reachable at %v: %v", MongoDBURI(), err)
	}
	t.Cleanup(func() { _ = tc.Disconnect(context.Background()) })
	return tc
}

func TestHandshakeFacts(t *testing.T) {
	tc := integrationClient(t)

	require.NotNil(t, tc.ServerVersion)
	assert.True(t, tc.ServerVersionGTE(3, 0), "unexpectedly old server version %v", tc.ServerVersion)

	// a server is exactly one of sharded or not; the predicates must agree
	if tc.IsSharded() {
		assert.False(t, tc.IsStandalone())
	}

	// the reserved handshake session must not linger after construction
	assert.Equal(t, 0, tc.NumberSessionsInProgress(), "handshake session leaked")
}

func TestDropCollectionIdempotent(t *testing.T) {
	tc := integrationClient(t)
	ctx := context.Background()
	dbName := SanitizeDBName(GetDBName(nil))

	require.NoError(t, tc.DropCollection(ctx, dbName, "does_not_exist"))
	require.NoError(t, tc.DropCollection(ctx, dbName, "does_not_exist"))
}

func TestDropAndCreateUserIdempotent(t *testing.T) {
	tc := integrationClient(t)
	ctx := context.Background()

	user := "mtest_alice"
	roles := bson.A{bson.D{{"role", "read"}, {"db", TestDb}}}
	defer func() {
		_ = tc.Database("admin").RunCommand(ctx, bson.D{{"dropUser", user}}).Err()
	}()

	require.NoError(t, tc.DropAndCreateUser(ctx, user, "pwd", roles, nil, ""))
	require.NoError(t, tc.DropAndCreateUser(ctx, user, "pwd", roles, nil, ""))

	res, err := tc.Database("admin").RunCommand(ctx, bson.D{{"usersInfo", user}}).DecodeBytes()
	require.NoError(t, err, "usersInfo error: %v", err)
	users, err := res.LookupErr("users")
	require.NoError(t, err, "no users field in usersInfo reply")
	values, err := users.Array().Values()
	require.NoError(t, err, "error reading users array: %v", err)
	assert.Len(t, values, 1, "expected exactly one user named %v", user)
}

func TestCreateFreshCollectionClearsState(t *testing.T) {
	tc := integrationClient(t)
	ctx := context.Background()
	dbName := SanitizeDBName(GetDBName(nil))

	coll, err := tc.CreateFreshCollection(ctx, dbName, "fresh_coll", nil)
	require.NoError(t, err, "create error: %v", err)
	defer func() { _ = tc.DropCollection(ctx, dbName, "fresh_coll") }()

	_, err = coll.InsertOne(ctx, bson.D{{"x", 1}})
	require.NoError(t, err, "insert error: %v", err)

	coll, err = tc.CreateFreshCollection(ctx, dbName, "fresh_coll", nil)
	require.NoError(t, err, "create error: %v", err)

	count, err := coll.CountDocuments(ctx, bson.D{})
	require.NoError(t, err, "count error: %v", err)
	assert.Equal(t, int64(0), count, "expected fresh collection to be empty")
}

func TestFailPointGuardLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	opts := DefaultClientOptions().SetServerSelectionTimeout(2 * time.Second)
	ec, err := NewEventClient(ctx, opts)
	if err != nil {
		t.Skipf("skipping; no deployment reachable at %v: %v", MongoDBURI(), err)
	}
	defer func() { _ = ec.Disconnect(context.Background()) }()

	if !ec.SupportsFailCommand() {
		t.Skipf("skipping; server version %v does not support failCommand", ec.ServerVersion)
	}

	// fail points are global server state, so serialize with other tests
	// that might configure them
	lock := NewTestLock("failCommand")
	require.NoError(t, lock.Lock(ctx))
	defer lock.Unlock()

	ec.ClearEvents()

	fp := failpoint.FailCommand([]string{"ping"}, failpoint.Mode{Times: 1}, failpoint.Data{
		ErrorCode: 100,
	})
	guard, err := ec.EnableFailPoint(ctx, fp)
	require.NoError(t, err, "enable error: %v", err)
	defer guard.Release(context.Background())

	assert.True(t, guard.Armed())

	err = ec.Database("admin").RunCommand(ctx, bson.D{{"ping", 1}}).Err()
	var cmdErr mongo.CommandError
	require.ErrorAs(t, err, &cmdErr, "expected ping to trip the fail point")
	assert.Equal(t, int32(100), cmdErr.Code)

	// the second release must be a no-op: one "on" and one "off" command in
	// total
	require.NoError(t, guard.Release(ctx))
	require.NoError(t, guard.Release(ctx))
	assert.False(t, guard.Armed())
	assert.Len(t, ec.CommandStartedEvents("configureFailPoint"), 2)

	// with the fail point released, ping works again
	require.NoError(t, ec.Database("admin").RunCommand(ctx, bson.D{{"ping", 1}}).Err())
}

// The guard's deferred release must fire even when the operation that armed
// it fails afterwards.
func TestFailPointGuardReleasedOnFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	opts := DefaultClientOptions().SetServerSelectionTimeout(2 * time.Second)
	tc, err := NewWithOptions(ctx, opts)
	if err != nil {
		t.Skipf("skipping; no deployment reachable at %v: %v", MongoDBURI(), err)
	}
	defer func() { _ = tc.Disconnect(context.Background()) }()

	if !tc.SupportsFailCommand() {
		t.Skipf("skipping; server version %v does not support failCommand", tc.ServerVersion)
	}

	lock := NewTestLock("failCommand")
	require.NoError(t, lock.Lock(ctx))
	defer lock.Unlock()

	runWithFailPoint := func() error {
		fp := failpoint.FailCommand([]string{"ping"}, failpoint.Mode{Times: 1}, failpoint.Data{
			ErrorCode: 100,
		})
		guard, err := tc.EnableFailPoint(ctx, fp)
		if err != nil {
			return err
		}
		defer guard.Release(context.Background())

		// this errors, and the deferred release still runs
		return tc.Database("admin").RunCommand(ctx, bson.D{{"ping", 1}}).Err()
	}

	require.Error(t, runWithFailPoint(), "expected ping to trip the fail point")
	require.NoError(t, tc.Database("admin").RunCommand(ctx, bson.D{{"ping", 1}}).Err(),
		"expected fail point to be released after the failing operation")
}
