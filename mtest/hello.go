// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// mongosMessage is the sentinel reported in the isMaster "msg" field by a
// mongos routing layer.
const mongosMessage = "isdbgrid"

// IsMasterResponse is the structured reply to the isMaster handshake command.
// Servers omit different subsets of these fields depending on topology, so
// every field is optional and no field's presence implies another's.
type IsMasterResponse struct {
	IsMaster                     *bool               `bson:"ismaster,omitempty"`
	OK                           *float64            `bson:"ok,omitempty"`
	Hosts                        []string            `bson:"hosts,omitempty"`
	Passives                     []string            `bson:"passives,omitempty"`
	Arbiters                     []string            `bson:"arbiters,omitempty"`
	Msg                          *string             `bson:"msg,omitempty"`
	Me                           *string             `bson:"me,omitempty"`
	SetVersion                   *int32              `bson:"setVersion,omitempty"`
	SetName                      *string             `bson:"setName,omitempty"`
	Hidden                       *bool               `bson:"hidden,omitempty"`
	Secondary                    *bool               `bson:"secondary,omitempty"`
	ArbiterOnly                  *bool               `bson:"arbiterOnly,omitempty"`
	IsReplicaSet                 *bool               `bson:"isreplicaset,omitempty"`
	LogicalSessionTimeoutMinutes *int64              `bson:"logicalSessionTimeoutMinutes,omitempty"`
	MinWireVersion               *int32              `bson:"minWireVersion,omitempty"`
	MaxWireVersion               *int32              `bson:"maxWireVersion,omitempty"`
	Tags                         map[string]string   `bson:"tags,omitempty"`
	ElectionID                   *primitive.ObjectID `bson:"electionId,omitempty"`
	Primary                      *string             `bson:"primary,omitempty"`
}

// buildInfo is the subset of the buildInfo reply the harness uses.
type buildInfo struct {
	Version string `bson:"version"`
}

// parseServerVersion parses a buildInfo version string into a semantic
// version. Anything after the first "-" is dropped before parsing, so
// "4.2.1-rc0" parses as 4.2.1.
func parseServerVersion(version string) (*semver.Version, error) {
	base := version
	if idx := strings.Index(base, "-"); idx != -1 {
		base = base[:idx]
	}

	parsed, err := semver.StrictNewVersion(base)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing server version %q", version)
	}
	return parsed, nil
}
