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

package store

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"apistatus/internal/engine/backend"
	"apistatus/internal/engine/telemetry"
)

// CommandWindow is the per-command view over the last duration seconds.
// TotalExecCount is never zero: an empty window reports 1 so that percent
// metrics evaluate to 0 instead of dividing by zero.
type CommandWindow struct {
	AvgExecTimeMS  int64
	BizFailCount   int64
	SysFailCount   int64
	TotalExecCount int64
}

// GlobalWindow sums the per-second global counters over a window.
// GlobalExecCount is likewise floored at 1.
type GlobalWindow struct {
	GlobalExecCount    int64
	GlobalBizFailCount int64
	GlobalSysFailCount int64
}

// HitWindow counts device accesses over a window.
type HitWindow struct {
	SingleCommandHits int64
	TotalCommandHits  int64
}

// emptyCommandWindow is the fail-open default: counts 0, total 1, avg 0.
func emptyCommandWindow() CommandWindow { return CommandWindow{TotalExecCount: 1} }

func emptyGlobalWindow() GlobalWindow { return GlobalWindow{GlobalExecCount: 1} }

// CommandWindow reads both event streams for commandKey in one pipelined
// round-trip. Backend failure degrades to the empty window; the engine must
// never become the outage it protects against.
func (s *Store) CommandWindow(ctx context.Context, commandKey string, durationS int64) CommandWindow {
	end := s.clock.OffsetMicros()
	start := end - durationS*microsPerSecond
	replies, err := s.client.Do(ctx, []backend.Cmd{
		backend.ZRangeByScore(keyExecTimePrefix+commandKey, start, end),
		backend.ZRangeByScore(keyExecStatusPrefix+commandKey, start, end),
	})
	if err != nil || len(replies) != 2 || replies[0].Err != nil || replies[1].Err != nil {
		telemetry.ReadErrors.Inc()
		log.Printf("store: command window read failed (command=%s): %v", commandKey, firstErr(err, replies))
		return emptyCommandWindow()
	}

	var w CommandWindow
	var timeSum, timeCount int64
	for _, m := range replies[0].Members {
		v, ok := memberValue(m)
		if !ok {
			continue
		}
		timeSum += v
		timeCount++
	}
	if timeCount > 0 {
		w.AvgExecTimeMS = timeSum / timeCount
	}
	for _, m := range replies[1].Members {
		v, ok := memberValue(m)
		if !ok {
			continue
		}
		w.TotalExecCount++
		switch v {
		case 2:
			w.BizFailCount++
		case 3:
			w.SysFailCount++
		}
	}
	if w.TotalExecCount == 0 {
		w.TotalExecCount = 1
	}
	return w
}

// GlobalWindow sums the three per-second counters over the inclusive range
// [nowS-durationS, nowS] (durationS+1 buckets) in one pipelined round-trip.
func (s *Store) GlobalWindow(ctx context.Context, nowS, durationS int64) GlobalWindow {
	buckets := durationS + 1
	cmds := make([]backend.Cmd, 0, buckets*3)
	for sec := nowS - durationS; sec <= nowS; sec++ {
		stamp := fmt.Sprintf("%d", sec)
		cmds = append(cmds,
			backend.Get(keyGlobalExecPrefix+stamp),
			backend.Get(keyGlobalBizPrefix+stamp),
			backend.Get(keyGlobalSysPrefix+stamp))
	}
	replies, err := s.client.Do(ctx, cmds)
	if err != nil || int64(len(replies)) != buckets*3 {
		telemetry.ReadErrors.Inc()
		log.Printf("store: global window read failed: %v", firstErr(err, replies))
		return emptyGlobalWindow()
	}

	var w GlobalWindow
	for i := 0; i < len(replies); i += 3 {
		w.GlobalExecCount += counterValue(replies[i])
		w.GlobalBizFailCount += counterValue(replies[i+1])
		w.GlobalSysFailCount += counterValue(replies[i+2])
	}
	if w.GlobalExecCount == 0 {
		w.GlobalExecCount = 1
	}
	return w
}

// HitWindow reads the device's single-command and cross-command hit streams.
func (s *Store) HitWindow(ctx context.Context, deviceKey, commandKey string, durationS int64) HitWindow {
	end := s.clock.OffsetMicros()
	start := end - durationS*microsPerSecond
	replies, err := s.client.Do(ctx, []backend.Cmd{
		backend.ZRangeByScore(keyDevicePrefix+deviceCommandSet(deviceKey, commandKey), start, end),
		backend.ZRangeByScore(keyDevicePrefix+deviceAllSet(deviceKey), start, end),
	})
	if err != nil || len(replies) != 2 || replies[0].Err != nil || replies[1].Err != nil {
		telemetry.ReadErrors.Inc()
		log.Printf("store: hit window read failed (device=%s): %v", deviceKey, firstErr(err, replies))
		return HitWindow{}
	}
	return HitWindow{
		SingleCommandHits: int64(len(replies[0].Members)),
		TotalCommandHits:  int64(len(replies[1].Members)),
	}
}

// memberValue extracts the value embedded in a stored member: the integer
// after the first '_', or the whole string when no '_' is present.
// Unparsable members are skipped silently.
func memberValue(m string) (int64, bool) {
	v := m
	if i := strings.Index(m, "_"); i >= 0 {
		v = m[i+1:]
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// counterValue parses a GET reply as an integer, treating missing or
// malformed values as zero.
func counterValue(r backend.Reply) int64 {
	if r.Err != nil || r.Missing {
		return 0
	}
	n, err := strconv.ParseInt(r.Value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func firstErr(err error, replies []backend.Reply) error {
	if err != nil {
		return err
	}
	for _, r := range replies {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
