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

// Package ratelimit enforces per-device access-rate rules over the same
// sliding-window machinery as the circuit breaker, keyed by the
// x-device-no header instead of upstream outcomes.
package ratelimit

import (
	"context"
	"log"
	"net/http"

	"apistatus/internal/engine/command"
	"apistatus/internal/engine/evaluate"
	"apistatus/internal/engine/rules"
	"apistatus/internal/engine/store"
)

// DeviceHeader identifies the calling device.
const DeviceHeader = "x-device-no"

// Limiter gates requests on device access rates.
type Limiter struct {
	registry *rules.Registry
	eval     *evaluate.Evaluator
	store    *store.Store
	doc      string
}

// New builds a limiter reading the named rate-rule document.
func New(registry *rules.Registry, eval *evaluate.Evaluator, st *store.Store, doc string) *Limiter {
	return &Limiter{
		registry: registry,
		eval:     eval,
		store:    st,
		doc:      doc,
	}
}

// Check decides whether the request may proceed. Fuse means answer 429.
//
// An ignored command (empty rule list) bypasses the limiter completely:
// no device requirement, no hit recording. Otherwise a request without a
// device header is rejected outright, and each admitted attempt records a
// hit before evaluation — the hit that trips a rule is itself counted.
func (l *Limiter) Check(ctx context.Context, r *http.Request, cmd, commandKey string, clientIP string) evaluate.Decision {
	rateRules, res := l.resolve(r, cmd)
	if res == rules.ResolvedIgnored {
		return evaluate.Pass
	}

	device := r.Header.Get(DeviceHeader)
	if device == "" {
		return evaluate.Fuse
	}
	deviceKey := command.Key(device)

	l.store.RecordHit(deviceKey, commandKey)
	if len(rateRules) == 0 {
		return evaluate.Pass
	}
	return l.eval.Evaluate(ctx, evaluate.Target{
		Command:    cmd,
		CommandKey: commandKey,
		DeviceKey:  deviceKey,
		ClientIP:   clientIP,
	}, nil, rateRules)
}

func (l *Limiter) resolve(r *http.Request, cmd string) ([]rules.Rule, rules.Resolution) {
	if raw := r.Header.Get(rules.RateRulesHeader); raw != "" {
		list, err := rules.ParseOverride(raw)
		if err == nil {
			return list, rules.ResolvedRules
		}
		log.Printf("ratelimit: rejecting %s override: %v", rules.RateRulesHeader, err)
	}
	return l.registry.Resolve(l.doc, cmd)
}
