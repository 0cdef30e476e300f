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

// Package evaluate maps rules against live window metrics and decides
// whether to alarm and whether to fuse. Window reads are memoized per
// (scope, duration) within one evaluation, so every rule in a pass — and an
// alarm and a fuse on the same metric — observe identical values, and the
// request path issues at most one backend round-trip per distinct window.
package evaluate

import (
	"context"
	"math/rand"
	"time"

	"apistatus/internal/engine/alarm"
	"apistatus/internal/engine/clock"
	"apistatus/internal/engine/rules"
	"apistatus/internal/engine/store"
)

// Decision is the only engine outcome visible to the request path.
type Decision int

const (
	Pass Decision = iota
	Fuse
)

// Target identifies what one evaluation is about.
type Target struct {
	Command    string
	CommandKey string
	// DeviceKey is set only for rate-limit evaluations; the *_hits features
	// read its namespace.
	DeviceKey string
	ClientIP  string
}

// Notifier receives alarm payloads. Satisfied by *alarm.Dispatcher.
type Notifier interface {
	Notify(alarm.Payload)
}

// Evaluator computes feature values and applies the probability gate.
// Safe for concurrent use; the memoization cache is per evaluation.
type Evaluator struct {
	store  *store.Store
	clock  *clock.Clock
	alarms Notifier
	random func() float64
}

// New builds an evaluator. alarms must not be nil; pass a dispatcher with
// an empty URL to disable delivery.
func New(st *store.Store, clk *clock.Clock, alarms Notifier) *Evaluator {
	return &Evaluator{
		store:  st,
		clock:  clk,
		alarms: alarms,
		random: rand.Float64,
	}
}

// SetRandomSource replaces the uniform source behind probability gating.
// Intended for tests; the default is the shared math/rand source.
func (e *Evaluator) SetRandomSource(fn func() float64) {
	e.random = fn
}

// Evaluate runs both rule lists against the target. Every alarm rule is
// checked and each trigger enqueues an alarm; fuse rules short-circuit on
// the first trigger. Either list may be nil.
func (e *Evaluator) Evaluate(ctx context.Context, target Target, alarmRules, fuseRules []rules.Rule) Decision {
	c := newWindowCache(e, target)
	for _, r := range alarmRules {
		if actual, fired := e.check(ctx, c, r); fired {
			e.alarms.Notify(alarm.Payload{
				Feature:     string(r.Feature),
				Duration:    r.Duration,
				Threshold:   r.Threshold,
				Probability: r.Probability,
				Command:     target.Command,
				ActualValue: actual,
				ClientIP:    target.ClientIP,
				TriggerTime: e.clock.Now().UTC().Format(time.RFC3339),
			})
		}
	}
	for _, r := range fuseRules {
		if _, fired := e.check(ctx, c, r); fired {
			return Fuse
		}
	}
	return Pass
}

// check computes the rule's actual value and applies threshold and gate.
func (e *Evaluator) check(ctx context.Context, c *windowCache, r rules.Rule) (float64, bool) {
	actual := c.value(ctx, r.Feature, r.Duration)
	if actual < r.Threshold {
		return actual, false
	}
	return actual, e.gate(r.Probability)
}

// gate is the Bernoulli filter applied after a threshold is crossed. The
// draw is per rule, per request, independent.
func (e *Evaluator) gate(probability float64) bool {
	if probability >= 100 {
		return true
	}
	if probability <= 0 {
		return false
	}
	return e.random() <= probability/100
}

// windowCache memoizes window reads for one evaluation.
type windowCache struct {
	eval   *Evaluator
	target Target
	perCmd map[int64]store.CommandWindow
	global map[int64]store.GlobalWindow
	hits   map[int64]store.HitWindow
}

func newWindowCache(e *Evaluator, target Target) *windowCache {
	return &windowCache{
		eval:   e,
		target: target,
		perCmd: map[int64]store.CommandWindow{},
		global: map[int64]store.GlobalWindow{},
		hits:   map[int64]store.HitWindow{},
	}
}

func (c *windowCache) command(ctx context.Context, duration int64) store.CommandWindow {
	if w, ok := c.perCmd[duration]; ok {
		return w
	}
	w := c.eval.store.CommandWindow(ctx, c.target.CommandKey, duration)
	c.perCmd[duration] = w
	return w
}

func (c *windowCache) globalWindow(ctx context.Context, duration int64) store.GlobalWindow {
	if w, ok := c.global[duration]; ok {
		return w
	}
	w := c.eval.store.GlobalWindow(ctx, c.eval.clock.Seconds(), duration)
	c.global[duration] = w
	return w
}

func (c *windowCache) hitWindow(ctx context.Context, duration int64) store.HitWindow {
	if w, ok := c.hits[duration]; ok {
		return w
	}
	w := c.eval.store.HitWindow(ctx, c.target.DeviceKey, c.target.CommandKey, duration)
	c.hits[duration] = w
	return w
}

// value is the pure feature-to-metric mapping over the cached windows.
func (c *windowCache) value(ctx context.Context, f rules.Feature, duration int64) float64 {
	switch {
	case f.DeviceHits():
		h := c.hitWindow(ctx, duration)
		if f == rules.SingleCommandHits {
			return float64(h.SingleCommandHits)
		}
		return float64(h.TotalCommandHits)
	case f.Global():
		g := c.globalWindow(ctx, duration)
		total := float64(g.GlobalExecCount)
		biz := float64(g.GlobalBizFailCount)
		sys := float64(g.GlobalSysFailCount)
		switch f {
		case rules.GlobalBizFailCount:
			return biz
		case rules.GlobalBizFailPercent:
			return 100 * biz / total
		case rules.GlobalSysFailCount:
			return sys
		case rules.GlobalSysFailPercent:
			return 100 * sys / total
		case rules.GlobalFailCount:
			return biz + sys
		case rules.GlobalFailPercent:
			return 100 * (biz + sys) / total
		}
	default:
		w := c.command(ctx, duration)
		total := float64(w.TotalExecCount)
		biz := float64(w.BizFailCount)
		sys := float64(w.SysFailCount)
		switch f {
		case rules.AvgExecTime:
			return float64(w.AvgExecTimeMS)
		case rules.BizFailCount:
			return biz
		case rules.BizFailPercent:
			return 100 * biz / total
		case rules.SysFailCount:
			return sys
		case rules.SysFailPercent:
			return 100 * sys / total
		case rules.FailCount:
			return biz + sys
		case rules.FailPercent:
			return 100 * (biz + sys) / total
		}
	}
	return 0
}
