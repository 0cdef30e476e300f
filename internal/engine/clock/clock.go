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

// Package clock provides the engine's time source: microsecond offsets from
// a fixed epoch (used as sorted-set scores and event member prefixes) and
// wall-clock seconds (used as global counter buckets). Offsets from the
// 2023-10-01 epoch stay far below 2^63 for the lifetime of the system.
package clock

import "time"

// Epoch is the fixed reference point for all stored offsets.
var Epoch = time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC)

// Clock yields offsets and second stamps. The zero value is not usable;
// construct with New or NewFrozen.
type Clock struct {
	now func() time.Time
}

// New returns a clock backed by the system time.
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewFrozen returns a clock pinned to t. Intended for tests.
func NewFrozen(t time.Time) *Clock {
	return &Clock{now: func() time.Time { return t }}
}

// Now returns the current wall-clock time.
func (c *Clock) Now() time.Time {
	return c.now()
}

// OffsetMicros returns microseconds elapsed since the epoch.
func (c *Clock) OffsetMicros() int64 {
	return OffsetMicrosAt(c.now())
}

// Seconds returns the current wall-clock time as Unix seconds.
func (c *Clock) Seconds() int64 {
	return c.now().Unix()
}

// OffsetMicrosAt converts an absolute time to an epoch offset in microseconds.
func OffsetMicrosAt(t time.Time) int64 {
	return t.Sub(Epoch).Microseconds()
}
