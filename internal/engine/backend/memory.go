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

package backend

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// Memory is an in-process Client with real sorted-set and counter
// semantics. It backs tests and lets the proxy run without a Redis for
// local experiments. TTLs are recorded but never enforced.
type Memory struct {
	mu    sync.Mutex
	zsets map[string][]zentry
	strs  map[string]string
	ttls  map[string]int64

	// FailWith, when set, makes every Do call return this error.
	FailWith error
}

type zentry struct {
	score  int64
	member string
}

// NewMemory returns an empty in-memory client.
func NewMemory() *Memory {
	return &Memory{
		zsets: map[string][]zentry{},
		strs:  map[string]string{},
		ttls:  map[string]int64{},
	}
}

// Do executes the batch atomically under one lock.
func (m *Memory) Do(ctx context.Context, cmds []Cmd) ([]Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	replies := make([]Reply, len(cmds))
	for i, c := range cmds {
		replies[i] = m.apply(c)
	}
	return replies, nil
}

func (m *Memory) apply(c Cmd) Reply {
	switch c.op {
	case opZAdd:
		set := m.zsets[c.key]
		for i := range set {
			if set[i].member == c.member {
				set[i].score = c.score
				m.resort(c.key, set)
				return Reply{N: 0}
			}
		}
		set = append(set, zentry{score: c.score, member: c.member})
		m.resort(c.key, set)
		return Reply{N: 1}
	case opZRangeByScore:
		var out []string
		for _, e := range m.zsets[c.key] {
			if e.score >= c.min && e.score <= c.max {
				out = append(out, e.member)
			}
		}
		return Reply{Members: out}
	case opZRemRangeByScore:
		set := m.zsets[c.key]
		kept := set[:0]
		removed := int64(0)
		for _, e := range set {
			if e.score >= c.min && e.score <= c.max {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		m.zsets[c.key] = kept
		return Reply{N: removed}
	case opZRangeAll:
		var out []string
		for _, e := range m.zsets[c.key] {
			out = append(out, e.member)
		}
		return Reply{Members: out}
	case opGet:
		v, ok := m.strs[c.key]
		if !ok {
			return Reply{Missing: true}
		}
		return Reply{Value: v}
	case opIncr:
		n, _ := strconv.ParseInt(m.strs[c.key], 10, 64)
		n++
		m.strs[c.key] = strconv.FormatInt(n, 10)
		return Reply{N: n}
	case opExpire:
		m.ttls[c.key] = c.ttl
		return Reply{N: 1}
	default:
		return Reply{}
	}
}

func (m *Memory) resort(key string, set []zentry) {
	sort.SliceStable(set, func(i, j int) bool {
		if set[i].score != set[j].score {
			return set[i].score < set[j].score
		}
		return set[i].member < set[j].member
	})
	m.zsets[key] = set
}

// Members returns the sorted-set members at key, in score order.
func (m *Memory) Members(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.zsets[key] {
		out = append(out, e.member)
	}
	return out
}

// Value returns the string value at key, or "" when absent.
func (m *Memory) Value(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strs[key]
}

// TTL returns the last TTL set on key in seconds, or 0.
func (m *Memory) TTL(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
