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

// Package rules defines the rule documents that drive alarm, fuse, and
// rate-limit decisions, and the registry that loads and resolves them.
package rules

import (
	"encoding/json"
	"fmt"
)

// Feature names a metric computed over a sliding window. Features with the
// global_ prefix read the per-second global counters; the two *_hits
// features read the device-hit namespace and are only meaningful for the
// rate limiter.
type Feature string

const (
	AvgExecTime    Feature = "avg_exec_time"
	BizFailCount   Feature = "biz_fail_count"
	BizFailPercent Feature = "biz_fail_percent"
	SysFailCount   Feature = "sys_fail_count"
	SysFailPercent Feature = "sys_fail_percent"
	FailCount      Feature = "fail_count"
	FailPercent    Feature = "fail_percent"

	GlobalBizFailCount   Feature = "global_biz_fail_count"
	GlobalBizFailPercent Feature = "global_biz_fail_percent"
	GlobalSysFailCount   Feature = "global_sys_fail_count"
	GlobalSysFailPercent Feature = "global_sys_fail_percent"
	GlobalFailCount      Feature = "global_fail_count"
	GlobalFailPercent    Feature = "global_fail_percent"

	SingleCommandHits Feature = "single_command_hits"
	TotalCommandHits  Feature = "total_command_hits"
)

var knownFeatures = map[Feature]struct{}{
	AvgExecTime: {}, BizFailCount: {}, BizFailPercent: {},
	SysFailCount: {}, SysFailPercent: {}, FailCount: {}, FailPercent: {},
	GlobalBizFailCount: {}, GlobalBizFailPercent: {},
	GlobalSysFailCount: {}, GlobalSysFailPercent: {},
	GlobalFailCount: {}, GlobalFailPercent: {},
	SingleCommandHits: {}, TotalCommandHits: {},
}

// Known reports whether f is a recognized feature name.
func (f Feature) Known() bool {
	_, ok := knownFeatures[f]
	return ok
}

// Global reports whether f reads the global per-second counters.
func (f Feature) Global() bool {
	return len(f) > 7 && f[:7] == "global_"
}

// DeviceHits reports whether f reads the device-hit namespace.
func (f Feature) DeviceHits() bool {
	return f == SingleCommandHits || f == TotalCommandHits
}

// Rule is one trigger condition: when the feature's value over the last
// Duration seconds reaches Threshold (inclusive), the rule fires, subject
// to the probability gate.
type Rule struct {
	Feature     Feature
	Duration    int64
	Threshold   float64
	Probability float64
}

// UnmarshalJSON applies the default probability of 100 when the field is
// absent. Zero is a meaningful value (never fire), so absence must be
// distinguished from an explicit 0.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var wire struct {
		Feature     Feature  `json:"feature"`
		Duration    int64    `json:"duration"`
		Threshold   float64  `json:"threshold"`
		Probability *float64 `json:"probability"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Feature = wire.Feature
	r.Duration = wire.Duration
	r.Threshold = wire.Threshold
	if wire.Probability != nil {
		r.Probability = *wire.Probability
	} else {
		r.Probability = 100
	}
	return nil
}

// Validate rejects rules the evaluator cannot compute.
func (r Rule) Validate() error {
	if !r.Feature.Known() {
		return fmt.Errorf("unknown feature %q", r.Feature)
	}
	if r.Duration < 0 {
		return fmt.Errorf("negative duration %d for feature %q", r.Duration, r.Feature)
	}
	if r.Probability < 0 || r.Probability > 100 {
		return fmt.Errorf("probability %v out of [0,100] for feature %q", r.Probability, r.Feature)
	}
	return nil
}

// Document is one named rule set: a global list plus per-command overrides.
// An empty list under a command is the "ignored" sentinel.
type Document struct {
	Global   []Rule            `json:"global"`
	Commands map[string][]Rule `json:"commands"`
}

// Validate checks every rule in the document.
func (d *Document) Validate() error {
	for i, r := range d.Global {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("global[%d]: %w", i, err)
		}
	}
	for cmd, list := range d.Commands {
		for i, r := range list {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("commands[%q][%d]: %w", cmd, i, err)
			}
		}
	}
	return nil
}
