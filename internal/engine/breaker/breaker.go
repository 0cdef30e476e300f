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

// Package breaker is the third-party-call circuit breaker: it resolves the
// configured alarm and fuse rule documents for a command and asks the
// evaluator whether to short-circuit the request with a 503.
//
// An ignored command (empty rule list) skips evaluation, but the proxy
// still records its events; recording is unconditional.
package breaker

import (
	"context"
	"log"
	"net/http"

	"apistatus/internal/engine/evaluate"
	"apistatus/internal/engine/rules"
)

// Breaker evaluates circuit rules for classified commands.
type Breaker struct {
	registry *rules.Registry
	eval     *evaluate.Evaluator
	fuseDoc  string
	alarmDoc string
}

// New builds a breaker reading the named rule documents from the registry.
func New(registry *rules.Registry, eval *evaluate.Evaluator, fuseDoc, alarmDoc string) *Breaker {
	return &Breaker{
		registry: registry,
		eval:     eval,
		fuseDoc:  fuseDoc,
		alarmDoc: alarmDoc,
	}
}

// Check decides whether the request may proceed to upstream. Fuse means
// answer 503 without calling upstream.
func (b *Breaker) Check(ctx context.Context, r *http.Request, command, commandKey string, clientIP string) evaluate.Decision {
	alarmRules := b.resolve(r, rules.AlarmRulesHeader, b.alarmDoc, command)
	fuseRules := b.resolve(r, rules.FuseRulesHeader, b.fuseDoc, command)
	if len(alarmRules) == 0 && len(fuseRules) == 0 {
		return evaluate.Pass
	}
	return b.eval.Evaluate(ctx, evaluate.Target{
		Command:    command,
		CommandKey: commandKey,
		ClientIP:   clientIP,
	}, alarmRules, fuseRules)
}

// resolve picks the per-request header override when present and valid,
// otherwise the registry's resolution. A malformed override is rejected as
// a whole and logged; it never fails the request.
func (b *Breaker) resolve(r *http.Request, header, doc, command string) []rules.Rule {
	if raw := r.Header.Get(header); raw != "" {
		list, err := rules.ParseOverride(raw)
		if err == nil {
			return list
		}
		log.Printf("breaker: rejecting %s override: %v", header, err)
	}
	list, res := b.registry.Resolve(doc, command)
	if res != rules.ResolvedRules {
		return nil
	}
	return list
}
