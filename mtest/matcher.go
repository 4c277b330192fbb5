// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
)

// MatchesSubset reports whether every field of expected appears in actual
// with a matching value. Nested documents are matched recursively and arrays
// element-wise; a nil expected value only requires the field to be present.
// Extra fields in actual are ignored, since server replies and captured
// commands carry fields most assertions don't care about.
func MatchesSubset(expected, actual bson.D) error {
	if err := matchDocument(expected, actual); err != nil {
		return fmt.Errorf("expected document is not a subset of actual: %v\nexpected: %sactual: %s",
			err, spew.Sdump(expected), spew.Sdump(actual))
	}
	return nil
}

func matchDocument(expected, actual bson.D) error {
	for _, e := range expected {
		value, ok := lookup(actual, e.Key)
		if !ok {
			return fmt.Errorf("missing key %q", e.Key)
		}
		if err := matchValue(e.Value, value); err != nil {
			return fmt.Errorf("key %q: %v", e.Key, err)
		}
	}
	return nil
}

func matchValue(expected, actual interface{}) error {
	// nil is a presence wildcard
	if expected == nil {
		return nil
	}

	switch exp := expected.(type) {
	case bson.D:
		act, ok := actual.(bson.D)
		if !ok {
			return fmt.Errorf("expected document, got %T", actual)
		}
		return matchDocument(exp, act)
	case bson.A:
		act, ok := actual.(bson.A)
		if !ok {
			return fmt.Errorf("expected array, got %T", actual)
		}
		if len(exp) != len(act) {
			return fmt.Errorf("expected array of length %d, got %d", len(exp), len(act))
		}
		for i := range exp {
			if err := matchValue(exp[i], act[i]); err != nil {
				return fmt.Errorf("index %d: %v", i, err)
			}
		}
		return nil
	}

	// BSON round trips change Go integer widths, so numeric values are
	// compared by value rather than by type.
	if en, eok := toInt64(expected); eok {
		if an, aok := toInt64(actual); aok {
			if en != an {
				return fmt.Errorf("expected %d, got %d", en, an)
			}
			return nil
		}
	}

	if diff := cmp.Diff(expected, actual); diff != "" {
		return fmt.Errorf("values differ (-expected +actual):\n%s", diff)
	}
	return nil
}

func lookup(doc bson.D, key string) (interface{}, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
