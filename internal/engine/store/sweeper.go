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
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Sweeper runs periodic expiry sweeps in the background, for deployments
// without an external scheduler driving the admin endpoint. The interval
// must be shorter than the retention window; expired/2 is a safe default.
type Sweeper struct {
	store    *Store
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewSweeper creates a sweeper for the store's retention window. A
// non-positive interval defaults to half the retention window.
func NewSweeper(s *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Duration(s.ExpiredSeconds()/2) * time.Second
	}
	return &Sweeper{
		store:    s,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (w *Sweeper) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
}

// Stop halts the loop. Safe to call multiple times.
func (w *Sweeper) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Sweeper) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			report := w.store.Sweep(context.Background(), w.store.ExpiredSeconds())
			log.Printf("store: periodic sweep: scheduled=%d succeeded=%d failed=%d",
				report.Scheduled, report.Succeeded, report.Failed)
		case <-w.stopChan:
			return
		}
	}
}
