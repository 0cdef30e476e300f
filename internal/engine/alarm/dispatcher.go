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

// Package alarm delivers rule-trigger notifications as best-effort
// asynchronous POSTs. Delivery never affects request outcome: failures and
// overflow are logged, counted, and dropped.
package alarm

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"apistatus/internal/engine/telemetry"
)

// postTimeout is the hard delivery deadline for one alarm POST.
const postTimeout = 500 * time.Millisecond

// Payload is the alarm body, JSON-encoded into the msg form field.
type Payload struct {
	Feature     string  `json:"feature"`
	Duration    int64   `json:"duration"`
	Threshold   float64 `json:"threshold"`
	Probability float64 `json:"probability"`
	Command     string  `json:"command"`
	ActualValue float64 `json:"actual_value"`
	ClientIP    string  `json:"client_ip"`
	TriggerTime string  `json:"trigger_time"`
}

// Dispatcher queues payloads and posts them from a background worker.
// A zero-URL dispatcher accepts and discards everything, so callers never
// need to nil-check.
type Dispatcher struct {
	url     string
	client  *http.Client
	queue   chan Payload
	stop    chan struct{}
	wg      sync.WaitGroup
	stopped uint32
}

// NewDispatcher creates a dispatcher posting to rawURL. queueSize bounds
// pending alarms; overflow drops the new alarm.
func NewDispatcher(rawURL string, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		url:    rawURL,
		client: &http.Client{Timeout: postTimeout},
		queue:  make(chan Payload, queueSize),
		stop:   make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
}

// Stop drains pending alarms and stops the worker. Repeat calls are no-ops.
func (d *Dispatcher) Stop() {
	if !atomic.CompareAndSwapUint32(&d.stopped, 0, 1) {
		return
	}
	close(d.stop)
	d.wg.Wait()
}

// Notify enqueues an alarm without blocking. Overflow drops the alarm.
func (d *Dispatcher) Notify(p Payload) {
	if d.url == "" {
		return
	}
	select {
	case d.queue <- p:
	default:
		telemetry.AlarmsDropped.Inc()
		log.Printf("alarm: queue full, dropping alarm for command %q", p.Command)
	}
}

func (d *Dispatcher) loop() {
	for {
		select {
		case p := <-d.queue:
			d.post(p)
		case <-d.stop:
			for {
				select {
				case p := <-d.queue:
					d.post(p)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) post(p Payload) {
	body, err := json.Marshal(p)
	if err != nil {
		telemetry.AlarmsDropped.Inc()
		log.Printf("alarm: encode failed: %v", err)
		return
	}
	form := url.Values{"msg": {string(body)}}
	resp, err := d.client.Post(d.url, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		telemetry.AlarmsDropped.Inc()
		log.Printf("alarm: delivery failed for command %q: %v", p.Command, err)
		return
	}
	resp.Body.Close()
	telemetry.AlarmsSent.Inc()
}
