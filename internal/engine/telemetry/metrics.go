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

// Package telemetry exposes the engine's own health as Prometheus metrics.
// Every best-effort drop path (telemetry writes, alarms) is counted here so
// that "fails open" never means "fails silently".
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// WritesDropped counts telemetry events discarded because the write
	// queue was saturated. Telemetry is best-effort; request latency wins.
	WritesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apistatus_writes_dropped_total",
		Help: "Telemetry events dropped due to write queue saturation",
	})
	// WriteErrors counts write batches that failed against the backend.
	WriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apistatus_write_errors_total",
		Help: "Telemetry write batches that failed against the backend",
	})
	// ReadErrors counts window reads that failed and defaulted to no-data.
	ReadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apistatus_read_errors_total",
		Help: "Window reads that failed and fell back to empty metrics",
	})
	// Fused counts short-circuited requests by kind (circuit, rate).
	Fused = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apistatus_fused_total",
		Help: "Requests short-circuited without reaching upstream",
	}, []string{"kind"})
	// AlarmsSent counts alarm payloads successfully posted.
	AlarmsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apistatus_alarms_sent_total",
		Help: "Alarm payloads successfully delivered",
	})
	// AlarmsDropped counts alarms lost to queue overflow or delivery failure.
	AlarmsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apistatus_alarms_dropped_total",
		Help: "Alarm payloads dropped (queue overflow or delivery failure)",
	})
	// SweepRuns counts completed expiry sweeps.
	SweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apistatus_sweep_runs_total",
		Help: "Completed expiry sweeps over the event streams",
	})
)

func init() {
	prometheus.MustRegister(WritesDropped, WriteErrors, ReadErrors, Fused, AlarmsSent, AlarmsDropped, SweepRuns)
}
