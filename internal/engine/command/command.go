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

// Package command turns request paths into stable logical identifiers.
// A "command" names a family of paths: /api/orders/4711/items and
// /api/orders/9/items both classify to api/orders/items, so telemetry and
// rules aggregate across entity IDs instead of exploding per resource.
package command

import (
	"strconv"
	"strings"
)

// Classify derives the command for a request path. Numeric path segments are
// dropped and the remainder rejoined with "/". The second return is false
// when the path yields no command (empty, or favicon.ico) and the request
// should bypass the engine entirely.
func Classify(path string) (string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", false
	}
	segments := strings.Split(trimmed, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			continue
		}
		kept = append(kept, seg)
	}
	cmd := strings.Join(kept, "/")
	if cmd == "" || cmd == "favicon.ico" {
		return "", false
	}
	return cmd, true
}

// Key converts a command (or any identifier) into its storage-safe form:
// every byte outside [0-9A-Za-z] becomes '_'. The mapping is idempotent.
func Key(command string) string {
	var b strings.Builder
	b.Grow(len(command))
	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
