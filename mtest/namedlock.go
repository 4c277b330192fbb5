// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

var testLocks sync.Map // lock name -> *semaphore.Weighted

// TestLock provides named, process-wide mutual exclusion for tests that
// mutate global server state, such as fail points. Locks created with the
// same name share one underlying semaphore.
type TestLock struct {
	name string
	sem  *semaphore.Weighted
}

// NewTestLock returns the lock with the given name, creating it on first use.
func NewTestLock(name string) *TestLock {
	sem, _ := testLocks.LoadOrStore(name, semaphore.NewWeighted(1))
	return &TestLock{name: name, sem: sem.(*semaphore.Weighted)}
}

// Name returns the lock's name.
func (l *TestLock) Name() string {
	return l.name
}

// Lock acquires the lock, blocking until it is available or ctx is done.
func (l *TestLock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryLock acquires the lock without blocking and reports whether it
// succeeded.
func (l *TestLock) TryLock() bool {
	return l.sem.TryAcquire(1)
}

// Unlock releases the lock. It must only be called after a successful Lock or
// TryLock.
func (l *TestLock) Unlock() {
	l.sem.Release(1)
}
