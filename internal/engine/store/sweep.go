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
	"strings"
	"time"

	"apistatus/internal/engine/backend"
	"apistatus/internal/engine/telemetry"
)

// sweepBatchSize bounds how many command keys share one pipelined trim.
const sweepBatchSize = 25

// SweepReport summarizes one expiry sweep in a human-readable form; the
// admin endpoint returns it verbatim.
type SweepReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Scheduled  int
	Succeeded  int
	Failed     int
}

func (r *SweepReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sweep started at %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "commands scheduled: %d\n", r.Scheduled)
	fmt.Fprintf(&b, "succeeded: %d\n", r.Succeeded)
	fmt.Fprintf(&b, "failed: %d\n", r.Failed)
	fmt.Fprintf(&b, "sweep finished at %s\n", r.FinishedAt.Format(time.RFC3339))
	return b.String()
}

// Sweep deletes events older than expiredSeconds from every known event
// stream. Per-second global counters expire on their own TTL and are not
// touched. The sweep is safe to run concurrently with live traffic; a
// window read during a sweep simply observes a partially trimmed store.
func (s *Store) Sweep(ctx context.Context, expiredSeconds int64) *SweepReport {
	report := &SweepReport{StartedAt: s.clock.Now()}
	expiredOffset := s.clock.OffsetMicros() - expiredSeconds*microsPerSecond

	// One round-trip: list both registries, then trim their stale entries.
	replies, err := s.client.Do(ctx, []backend.Cmd{
		backend.ZRangeAll(keyLastExec),
		backend.ZRangeAll(keyDeviceRegistry),
		backend.ZRemRangeByScore(keyLastExec, 0, expiredOffset),
		backend.ZRemRangeByScore(keyDeviceRegistry, 0, expiredOffset),
	})
	if err != nil || len(replies) < 2 || replies[0].Err != nil || replies[1].Err != nil {
		log.Printf("store: sweep registry read failed: %v", firstErr(err, replies))
		report.FinishedAt = s.clock.Now()
		return report
	}
	commandKeys := replies[0].Members
	deviceSets := replies[1].Members

	// Command streams: two sorted sets per key.
	for start := 0; start < len(commandKeys); start += sweepBatchSize {
		end := start + sweepBatchSize
		if end > len(commandKeys) {
			end = len(commandKeys)
		}
		batch := commandKeys[start:end]
		cmds := make([]backend.Cmd, 0, len(batch)*2)
		for _, key := range batch {
			cmds = append(cmds,
				backend.ZRemRangeByScore(keyExecTimePrefix+key, 0, expiredOffset),
				backend.ZRemRangeByScore(keyExecStatusPrefix+key, 0, expiredOffset))
		}
		report.Scheduled += len(batch)
		report.tally(s.trimBatch(ctx, cmds, 2), len(batch))
	}

	// Device streams: the registry stores full set suffixes, one set each.
	for start := 0; start < len(deviceSets); start += sweepBatchSize {
		end := start + sweepBatchSize
		if end > len(deviceSets) {
			end = len(deviceSets)
		}
		batch := deviceSets[start:end]
		cmds := make([]backend.Cmd, 0, len(batch))
		for _, suffix := range batch {
			cmds = append(cmds, backend.ZRemRangeByScore(keyDevicePrefix+suffix, 0, expiredOffset))
		}
		report.Scheduled += len(batch)
		report.tally(s.trimBatch(ctx, cmds, 1), len(batch))
	}

	report.FinishedAt = s.clock.Now()
	telemetry.SweepRuns.Inc()
	return report
}

// trimBatch runs one pipelined trim and returns how many keys succeeded,
// where each key spans cmdsPerKey consecutive commands.
func (s *Store) trimBatch(ctx context.Context, cmds []backend.Cmd, cmdsPerKey int) int {
	replies, err := s.client.Do(ctx, cmds)
	if err != nil || len(replies) != len(cmds) {
		log.Printf("store: sweep batch failed: %v", err)
		return 0
	}
	ok := 0
	for i := 0; i < len(replies); i += cmdsPerKey {
		failed := false
		for j := i; j < i+cmdsPerKey && j < len(replies); j++ {
			if replies[j].Err != nil {
				log.Printf("store: sweep trim failed (key=%s): %v", cmds[j].Key(), replies[j].Err)
				failed = true
			}
		}
		if !failed {
			ok++
		}
	}
	return ok
}

func (r *SweepReport) tally(succeeded, scheduled int) {
	r.Succeeded += succeeded
	r.Failed += scheduled - succeeded
}
