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

// Package store is the sliding-window telemetry store. It records
// per-command events and per-second global counters into the shared
// backend, serves window reads for the rule evaluator, and evicts expired
// events. Writes are asynchronous and best-effort: the request path only
// enqueues, and a saturated queue drops the oldest event rather than block.
package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"apistatus/internal/engine/backend"
	"apistatus/internal/engine/clock"
	"apistatus/internal/engine/outcome"
	"apistatus/internal/engine/telemetry"
)

// Storage key layout. The offset prefix embedded in members keeps them
// unique even when two recorders land on the same score.
const (
	keyExecTimePrefix   = "apistatus_exec_time_"
	keyExecStatusPrefix = "apistatus_exec_status_"
	keyLastExec         = "apistatus_last_exec_time"
	keyGlobalExecPrefix = "apistatus_global_exec_count_"
	keyGlobalBizPrefix  = "apistatus_global_bizfail_count_"
	keyGlobalSysPrefix  = "apistatus_global_sysfail_count_"

	// Device-hit namespace: the registry holds full set-name suffixes so the
	// sweeper can trim them without reconstructing (device, command) pairs.
	keyDevicePrefix   = "apidevice_"
	keyDeviceRegistry = "apidevice_last_hit"
)

const microsPerSecond = 1_000_000

type taskKind int

const (
	taskEvent taskKind = iota
	taskHit
)

// task is one queued write. Offsets and second buckets are captured at
// enqueue time, so a delayed flush still records when the event happened.
type task struct {
	kind       taskKind
	commandKey string
	deviceKey  string
	execTimeMS int64
	status     outcome.Status
	offset     int64
	second     int64
}

// Store owns the write queue and the window read path.
type Store struct {
	client  backend.Client
	clock   *clock.Clock
	expire  int64 // expired_seconds: retention and counter TTL
	queue   chan task
	workers int
	stop    chan struct{}
	wg      sync.WaitGroup
	stopped uint32
}

// New builds a store. queueSize bounds the write queue (overflow drops the
// oldest event); workers is the number of background flushers.
func New(client backend.Client, clk *clock.Clock, expiredSeconds int64, queueSize, workers int) *Store {
	if queueSize <= 0 {
		queueSize = 4096
	}
	if workers <= 0 {
		workers = 2
	}
	if expiredSeconds <= 0 {
		expiredSeconds = 600
	}
	return &Store{
		client:  client,
		clock:   clk,
		expire:  expiredSeconds,
		queue:   make(chan task, queueSize),
		workers: workers,
		stop:    make(chan struct{}),
	}
}

// ExpiredSeconds returns the configured retention window.
func (s *Store) ExpiredSeconds() int64 { return s.expire }

// Start launches the background write workers.
func (s *Store) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.writeLoop()
		}()
	}
}

// Stop drains the queue and stops the workers. Repeat calls are no-ops.
func (s *Store) Stop() {
	if !atomic.CompareAndSwapUint32(&s.stopped, 0, 1) {
		return
	}
	close(s.stop)
	s.wg.Wait()
}

// RecordEvent schedules the telemetry write for one upstream call. It never
// blocks: on a saturated queue the oldest pending event is discarded.
func (s *Store) RecordEvent(commandKey string, execTimeMS int64, status outcome.Status) {
	s.enqueue(task{
		kind:       taskEvent,
		commandKey: commandKey,
		execTimeMS: execTimeMS,
		status:     status,
		offset:     s.clock.OffsetMicros(),
		second:     s.clock.Seconds(),
	})
}

// RecordHit schedules an access-rate hit for a (device, command) pair.
func (s *Store) RecordHit(deviceKey, commandKey string) {
	s.enqueue(task{
		kind:       taskHit,
		commandKey: commandKey,
		deviceKey:  deviceKey,
		offset:     s.clock.OffsetMicros(),
	})
}

func (s *Store) enqueue(t task) {
	select {
	case s.queue <- t:
		return
	default:
	}
	// Queue saturated: make room by dropping the oldest pending write.
	select {
	case <-s.queue:
		telemetry.WritesDropped.Inc()
	default:
	}
	select {
	case s.queue <- t:
	default:
		telemetry.WritesDropped.Inc()
	}
}

func (s *Store) writeLoop() {
	for {
		select {
		case t := <-s.queue:
			s.flush(t)
		case <-s.stop:
			// Final drain so shutdown does not lose already-enqueued events.
			for {
				select {
				case t := <-s.queue:
					s.flush(t)
				default:
					return
				}
			}
		}
	}
}

// flush issues one pipelined batch per task. Failures are logged and
// counted; there is no retry and no caller notification.
func (s *Store) flush(t task) {
	var cmds []backend.Cmd
	switch t.kind {
	case taskEvent:
		cmds = s.eventBatch(t)
	case taskHit:
		cmds = s.hitBatch(t)
	}
	replies, err := s.client.Do(context.Background(), cmds)
	if err != nil {
		telemetry.WriteErrors.Inc()
		log.Printf("store: write batch failed (command=%s): %v", t.commandKey, err)
		return
	}
	for _, r := range replies {
		if r.Err != nil {
			telemetry.WriteErrors.Inc()
			log.Printf("store: write command failed (command=%s): %v", t.commandKey, r.Err)
			return
		}
	}
}

func (s *Store) eventBatch(t task) []backend.Cmd {
	second := fmt.Sprintf("%d", t.second)
	cmds := []backend.Cmd{
		backend.ZAdd(keyLastExec, t.offset, t.commandKey),
		backend.ZAdd(keyExecTimePrefix+t.commandKey, t.offset, fmt.Sprintf("%d_%d", t.offset, t.execTimeMS)),
		backend.ZAdd(keyExecStatusPrefix+t.commandKey, t.offset, fmt.Sprintf("%d_%d", t.offset, t.status)),
		backend.Incr(keyGlobalExecPrefix + second),
		backend.Expire(keyGlobalExecPrefix+second, s.expire),
	}
	switch t.status {
	case outcome.BizFail:
		cmds = append(cmds,
			backend.Incr(keyGlobalBizPrefix+second),
			backend.Expire(keyGlobalBizPrefix+second, s.expire))
	case outcome.SysFail:
		cmds = append(cmds,
			backend.Incr(keyGlobalSysPrefix+second),
			backend.Expire(keyGlobalSysPrefix+second, s.expire))
	}
	return cmds
}

func (s *Store) hitBatch(t task) []backend.Cmd {
	cmdSet := deviceCommandSet(t.deviceKey, t.commandKey)
	allSet := deviceAllSet(t.deviceKey)
	member := fmt.Sprintf("%d_1", t.offset)
	return []backend.Cmd{
		backend.ZAdd(keyDeviceRegistry, t.offset, cmdSet),
		backend.ZAdd(keyDeviceRegistry, t.offset, allSet),
		backend.ZAdd(keyDevicePrefix+cmdSet, t.offset, member),
		backend.ZAdd(keyDevicePrefix+allSet, t.offset, member),
	}
}

// deviceCommandSet is the registry suffix for one (device, command) stream.
func deviceCommandSet(deviceKey, commandKey string) string {
	return "cmd_hits_" + deviceKey + "_" + commandKey
}

// deviceAllSet is the registry suffix for a device's cross-command stream.
func deviceAllSet(deviceKey string) string {
	return "all_hits_" + deviceKey
}
