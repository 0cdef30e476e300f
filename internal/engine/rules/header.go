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

package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Request headers that replace the registry's resolved list for one request.
const (
	FuseRulesHeader  = "x-fuse-rules"
	AlarmRulesHeader = "x-alarm-rules"
	RateRulesHeader  = "x-rate-rules"
)

// ParseOverride parses a comma-separated list of
// feature:duration:threshold[:probability] tuples from a request header.
// Header input is untrusted: any malformed tuple fails the whole override
// rather than silently defaulting. An empty header yields (nil, nil).
func ParseOverride(header string) ([]Rule, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	tuples := strings.Split(header, ",")
	out := make([]Rule, 0, len(tuples))
	for _, raw := range tuples {
		rule, err := parseTuple(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("tuple %q: %w", raw, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func parseTuple(s string) (Rule, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return Rule{}, fmt.Errorf("want feature:duration:threshold[:probability], got %d fields", len(parts))
	}
	duration, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Rule{}, fmt.Errorf("duration: %w", err)
	}
	threshold, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Rule{}, fmt.Errorf("threshold: %w", err)
	}
	probability := float64(100)
	if len(parts) == 4 {
		probability, err = strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return Rule{}, fmt.Errorf("probability: %w", err)
		}
	}
	rule := Rule{
		Feature:     Feature(parts[0]),
		Duration:    duration,
		Threshold:   threshold,
		Probability: probability,
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}
