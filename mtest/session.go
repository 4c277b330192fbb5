// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

// handshakeSession is a driver session reserved for the bootstrap handshake
// commands. It is marked dirty at checkout, so the driver discards the server
// session on release instead of returning it to the session pool. Leaking
// handshake sessions into the pool would pollute tests that assert on session
// reuse.
type handshakeSession struct {
	mongo.Session
}

// reserveHandshakeSession checks out a session for exclusive handshake use.
func reserveHandshakeSession(client *mongo.Client) (*handshakeSession, error) {
	sess, err := client.StartSession()
	if err != nil {
		return nil, errors.Wrap(err, "error starting handshake session")
	}

	xs, ok := sess.(mongo.XSession)
	if !ok {
		sess.EndSession(context.Background())
		return nil, errors.Errorf("expected session type %T to implement mongo.XSession", sess)
	}
	xs.ClientSession().MarkDirty()

	return &handshakeSession{Session: sess}, nil
}

// release discards the session. The server session is never pooled because it
// was marked dirty at checkout.
func (s *handshakeSession) release(ctx context.Context) {
	s.EndSession(ctx)
}
