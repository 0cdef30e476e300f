// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package backend abstracts the minimal key-value surface the telemetry
// store needs: sorted-set range/add/trim, integer counters with TTL, and
// pipelined batches with per-command error slots. The production adapter
// wraps github.com/redis/go-redis/v9; tests substitute fakes.
package backend

import "context"

type op int

const (
	opZAdd op = iota
	opZRangeByScore
	opZRemRangeByScore
	opZRangeAll
	opGet
	opIncr
	opExpire
)

// Cmd is one command in a pipelined batch. Build values with the
// constructor functions below; the zero value is not a valid command.
type Cmd struct {
	op     op
	key    string
	score  int64
	member string
	min    int64
	max    int64
	ttl    int64
}

// ZAdd adds member to the sorted set at key with the given integer score.
func ZAdd(key string, score int64, member string) Cmd {
	return Cmd{op: opZAdd, key: key, score: score, member: member}
}

// ZRangeByScore returns members of key with scores in [min, max].
func ZRangeByScore(key string, min, max int64) Cmd {
	return Cmd{op: opZRangeByScore, key: key, min: min, max: max}
}

// ZRemRangeByScore removes members of key with scores in [min, max].
func ZRemRangeByScore(key string, min, max int64) Cmd {
	return Cmd{op: opZRemRangeByScore, key: key, min: min, max: max}
}

// ZRangeAll returns every member of the sorted set at key, in score order.
func ZRangeAll(key string) Cmd {
	return Cmd{op: opZRangeAll, key: key}
}

// Get reads the string value at key. A missing key yields Reply.Missing.
func Get(key string) Cmd {
	return Cmd{op: opGet, key: key}
}

// Incr increments the integer at key, creating it at 1 if absent.
func Incr(key string) Cmd {
	return Cmd{op: opIncr, key: key}
}

// Expire sets key's TTL in seconds.
func Expire(key string, seconds int64) Cmd {
	return Cmd{op: opExpire, key: key, ttl: seconds}
}

// Key returns the storage key the command targets.
func (c Cmd) Key() string { return c.key }

// Reply is the result slot for one command of a batch. Which fields are
// populated depends on the command kind: range queries fill Members,
// INCR and ZREMRANGEBYSCORE fill N, GET fills Value (or Missing).
type Reply struct {
	Members []string
	N       int64
	Value   string
	Missing bool
	Err     error
}

// Client executes pipelined batches against the shared store.
//
// Do submits all commands as a single round-trip and returns exactly one
// reply per command, in order. A non-nil error reports a transport-level
// failure; individual command failures land in the per-slot Err fields.
// Implementations must be safe for concurrent use.
type Client interface {
	Do(ctx context.Context, cmds []Cmd) ([]Reply, error)
	Close() error
}
