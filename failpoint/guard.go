// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package failpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Guard tracks a fail point that has been enabled on the server and disables
// it when released, using the same client that enabled it.
//
// Go has no destructors, so the release must be scheduled by the caller
// immediately after a successful Enable:
//
//	guard, err := failpoint.Enable(ctx, client, fp)
//	if err != nil {
//		return err
//	}
//	defer guard.Release(context.Background())
//
// The deferred call runs on error returns and panics alike. Skipping it
// leaks fail point state on the server into later tests.
type Guard struct {
	name   string
	client *mongo.Client

	mu    sync.Mutex
	armed bool
}

// Enable runs the configureFailPoint command against the admin database and
// returns a Guard for the installed fail point. If the command fails, no
// guard is returned and nothing is left enabled on the server.
func Enable(ctx context.Context, client *mongo.Client, fp FailPoint) (*Guard, error) {
	err := client.Database("admin").RunCommand(ctx, fp).Err()
	if err != nil {
		return nil, fmt.Errorf("error enabling fail point %q: %v", fp.ConfigureFailPoint, err)
	}
	return &Guard{name: fp.ConfigureFailPoint, client: client, armed: true}, nil
}

// Name returns the name of the fail point held by the guard.
func (g *Guard) Name() string {
	return g.name
}

// Armed reports whether the fail point is still enabled on the server.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Release disables the fail point. Only the first call sends the "off"
// command; later calls do nothing and return nil, so Release can be invoked
// from both a defer and an explicit cleanup path. A failed release is logged
// and returned, never retried.
func (g *Guard) Release(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed {
		return nil
	}
	g.armed = false

	cmd := bson.D{
		{"configureFailPoint", g.name},
		{"mode", ModeOff},
	}
	if err := g.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		logrus.WithField("failPoint", g.name).Errorf("error disabling fail point: %v", err)
		return fmt.Errorf("error disabling fail point %q: %v", g.name, err)
	}
	return nil
}
