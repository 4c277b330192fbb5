// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server error codes the fixture helpers treat as "already in the desired
// state". The numbers are fixed across the server releases this harness
// targets; if a future release renumbers one, change it here only.
const (
	// ErrorCodeUserNotFound is returned by dropUser when the user does not
	// exist.
	ErrorCodeUserNotFound int32 = 11
	// ErrorCodeNamespaceNotFound is returned by drop when the collection does
	// not exist.
	ErrorCodeNamespaceNotFound int32 = 26
	// ErrorCodeNamespaceExists is returned by create when the collection
	// already exists.
	ErrorCodeNamespaceExists int32 = 48
)

// isBenignCommandError reports whether err is a command error carrying the
// given code. The benign outcomes the fixture helpers tolerate are limited to
// the explicit (operation, code) pairs below; every other failure propagates.
func isBenignCommandError(err error, code int32) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == code
}

// CreateUser creates a user on the given database ("admin" if db is empty).
// The pwd field is included only when non-empty. The mechanisms field is
// included only when mechanisms is non-empty and the server is at least 4.0;
// older servers reject the field.
func (tc *TestClient) CreateUser(ctx context.Context, user, pwd string, roles bson.A, mechanisms []string, db string) error {
	if db == "" {
		db = "admin"
	}

	cmd := tc.createUserCommand(user, pwd, roles, mechanisms)
	if err := tc.Database(db).RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("createUser error: %v", err)
	}
	return nil
}

func (tc *TestClient) createUserCommand(user, pwd string, roles bson.A, mechanisms []string) bson.D {
	if roles == nil {
		roles = bson.A{}
	}

	cmd := bson.D{
		{"createUser", user},
		{"roles", roles},
	}
	if pwd != "" {
		cmd = append(cmd, bson.E{"pwd", pwd})
	}
	if tc.ServerVersionGTE(4, 0) && len(mechanisms) > 0 {
		cmd = append(cmd, bson.E{"mechanisms", mechanisms})
	}
	return cmd
}

// DropAndCreateUser drops the user if it exists and then creates it, so the
// user ends up existing with exactly the given properties regardless of
// residue from earlier runs. A dropUser "user not found" reply counts as a
// successful drop; any other drop failure is returned.
func (tc *TestClient) DropAndCreateUser(ctx context.Context, user, pwd string, roles bson.A, mechanisms []string, db string) error {
	target := db
	if target == "" {
		target = "admin"
	}

	err := tc.Database(target).RunCommand(ctx, bson.D{{"dropUser", user}}).Err()
	if err != nil && !isBenignCommandError(err, ErrorCodeUserNotFound) {
		return fmt.Errorf("dropUser error: %v", err)
	}

	return tc.CreateUser(ctx, user, pwd, roles, mechanisms, db)
}

// DropCollection drops a collection. Dropping a collection that does not
// exist counts as success, so the helper is safe to call repeatedly.
func (tc *TestClient) DropCollection(ctx context.Context, dbName, collName string) error {
	err := tc.Database(dbName).RunCommand(ctx, bson.D{{"drop", collName}}).Err()
	if err != nil && !isBenignCommandError(err, ErrorCodeNamespaceNotFound) {
		return fmt.Errorf("error dropping collection %s.%s: %v", dbName, collName, err)
	}
	return nil
}

// CreateFreshCollection drops and then creates the named collection,
// guaranteeing an empty collection regardless of prior test state, and
// returns a handle to it.
func (tc *TestClient) CreateFreshCollection(ctx context.Context, dbName, collName string, opts *options.CreateCollectionOptions) (*mongo.Collection, error) {
	if err := tc.DropCollection(ctx, dbName, collName); err != nil {
		return nil, err
	}

	var createOpts []*options.CreateCollectionOptions
	if opts != nil {
		createOpts = append(createOpts, opts)
	}
	err := tc.Database(dbName).CreateCollection(ctx, collName, createOpts...)
	if err != nil && !isBenignCommandError(err, ErrorCodeNamespaceExists) {
		return nil, fmt.Errorf("error creating collection %s.%s: %v", dbName, collName, err)
	}

	return tc.Collection(dbName, collName), nil
}

// Collection returns a handle for the given namespace using the test client.
func (tc *TestClient) Collection(dbName, collName string, opts ...*options.CollectionOptions) *mongo.Collection {
	return tc.Database(dbName).Collection(collName, opts...)
}

// InitCollection drops any residue of the named collection and returns a
// handle to it.
func (tc *TestClient) InitCollection(ctx context.Context, dbName, collName string) (*mongo.Collection, error) {
	if err := tc.DropCollection(ctx, dbName, collName); err != nil {
		return nil, err
	}
	return tc.Collection(dbName, collName), nil
}
