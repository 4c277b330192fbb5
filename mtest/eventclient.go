// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"context"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventClient is a TestClient whose underlying client records command
// monitoring events for later assertions. The handshake commands run during
// construction are recorded too; call ClearEvents after setup if they are not
// wanted.
type EventClient struct {
	// connsCheckedOut is the net number of connections checked out by the
	// client. It must be accessed using the atomic package and should be at
	// the beginning of the struct.
	// - atomic bug: https://pkg.go.dev/sync/atomic#pkg-note-BUG
	// - suggested layout: https://go101.org/article/memory-layout.html
	connsCheckedOut int64

	*TestClient

	monitorLock sync.Mutex
	started     []*event.CommandStartedEvent
	succeeded   []*event.CommandSucceededEvent
	failed      []*event.CommandFailedEvent
}

// NewEventClient creates an EventClient with the given options. If opts is
// nil, DefaultClientOptions is used. Any command or pool monitor already
// configured on opts keeps receiving events ahead of the recorder.
func NewEventClient(ctx context.Context, opts *options.ClientOptions) (*EventClient, error) {
	if opts == nil {
		opts = DefaultClientOptions()
	}

	ec := &EventClient{}

	customMonitor := opts.Monitor
	opts.SetMonitor(&event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			if customMonitor != nil && customMonitor.Started != nil {
				customMonitor.Started(ctx, evt)
			}
			ec.monitorLock.Lock()
			defer ec.monitorLock.Unlock()
			ec.started = append(ec.started, evt)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			if customMonitor != nil && customMonitor.Succeeded != nil {
				customMonitor.Succeeded(ctx, evt)
			}
			ec.monitorLock.Lock()
			defer ec.monitorLock.Unlock()
			ec.succeeded = append(ec.succeeded, evt)
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			if customMonitor != nil && customMonitor.Failed != nil {
				customMonitor.Failed(ctx, evt)
			}
			ec.monitorLock.Lock()
			defer ec.monitorLock.Unlock()
			ec.failed = append(ec.failed, evt)
		},
	})

	customPoolMonitor := opts.PoolMonitor
	opts.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			if customPoolMonitor != nil {
				customPoolMonitor.Event(evt)
			}
			switch evt.Type {
			case event.GetSucceeded:
				atomic.AddInt64(&ec.connsCheckedOut, 1)
			case event.ConnectionReturned:
				atomic.AddInt64(&ec.connsCheckedOut, -1)
			}
		},
	})

	tc, err := NewWithOptions(ctx, opts)
	if err != nil {
		return nil, err
	}
	ec.TestClient = tc
	return ec, nil
}

// StartedEvents returns a copy of all recorded CommandStartedEvent instances.
func (ec *EventClient) StartedEvents() []*event.CommandStartedEvent {
	ec.monitorLock.Lock()
	defer ec.monitorLock.Unlock()
	return append([]*event.CommandStartedEvent(nil), ec.started...)
}

// SucceededEvents returns a copy of all recorded CommandSucceededEvent
// instances.
func (ec *EventClient) SucceededEvents() []*event.CommandSucceededEvent {
	ec.monitorLock.Lock()
	defer ec.monitorLock.Unlock()
	return append([]*event.CommandSucceededEvent(nil), ec.succeeded...)
}

// FailedEvents returns a copy of all recorded CommandFailedEvent instances.
func (ec *EventClient) FailedEvents() []*event.CommandFailedEvent {
	ec.monitorLock.Lock()
	defer ec.monitorLock.Unlock()
	return append([]*event.CommandFailedEvent(nil), ec.failed...)
}

// CommandStartedEvents returns the recorded CommandStartedEvent instances
// whose command name is one of the given names.
func (ec *EventClient) CommandStartedEvents(names ...string) []*event.CommandStartedEvent {
	ec.monitorLock.Lock()
	defer ec.monitorLock.Unlock()

	var matched []*event.CommandStartedEvent
	for _, evt := range ec.started {
		for _, name := range names {
			if evt.CommandName == name {
				matched = append(matched, evt)
				break
			}
		}
	}
	return matched
}

// GetStartedEvent returns the first unconsumed CommandStartedEvent, or nil if
// there is none. Each event is returned once.
func (ec *EventClient) GetStartedEvent() *event.CommandStartedEvent {
	ec.monitorLock.Lock()
	defer ec.monitorLock.Unlock()

	if len(ec.started) == 0 {
		return nil
	}
	evt := ec.started[0]
	ec.started = ec.started[1:]
	return evt
}

// FilterStartedEvents keeps only the CommandStartedEvent instances for which
// the filter returns true.
func (ec *EventClient) FilterStartedEvents(filter func(*event.CommandStartedEvent) bool) {
	ec.monitorLock.Lock()
	defer ec.monitorLock.Unlock()

	var kept []*event.CommandStartedEvent
	for _, evt := range ec.started {
		if filter(evt) {
			kept = append(kept, evt)
		}
	}
	ec.started = kept
}

// ClearEvents discards all recorded events.
func (ec *EventClient) ClearEvents() {
	ec.monitorLock.Lock()
	defer ec.monitorLock.Unlock()
	ec.started = ec.started[:0]
	ec.succeeded = ec.succeeded[:0]
	ec.failed = ec.failed[:0]
}

// NumberConnectionsCheckedOut returns the net number of connections checked
// out from the client's pool.
func (ec *EventClient) NumberConnectionsCheckedOut() int {
	return int(atomic.LoadInt64(&ec.connsCheckedOut))
}
