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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"apistatus/internal/engine/command"
)

// Resolution is the outcome of matching a command against a document.
type Resolution int

const (
	// ResolvedNone means no document or no applicable rules: nothing to evaluate.
	ResolvedNone Resolution = iota
	// ResolvedIgnored means the command carries the empty-list sentinel and
	// is exempt from evaluation.
	ResolvedIgnored
	// ResolvedRules means a non-empty rule list applies.
	ResolvedRules
)

// Registry holds the named rule documents. It is immutable after LoadDir
// and therefore safe for concurrent reads without locking.
type Registry struct {
	docs map[string]*Document
}

// NewRegistry builds a registry from pre-parsed documents. Mostly for tests;
// production code loads from disk via LoadDir.
func NewRegistry(docs map[string]*Document) *Registry {
	if docs == nil {
		docs = map[string]*Document{}
	}
	return &Registry{docs: docs}
}

// LoadDir scans dir for *.json documents. Each file is stored under its
// basename with the extension stripped and non-alphanumerics collapsed to
// '_' (fuse-rules.json -> fuse_rules). A file that fails to parse or
// validate is logged and skipped; startup still succeeds. An unreadable
// directory yields an empty registry, also logged.
func LoadDir(dir string) *Registry {
	reg := &Registry{docs: map[string]*Document{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("rules: cannot read directory %s: %v", dir, err)
		return reg
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		doc, err := loadFile(path)
		if err != nil {
			log.Printf("rules: skipping %s: %v", path, err)
			continue
		}
		key := command.Key(strings.TrimSuffix(e.Name(), ".json"))
		reg.docs[key] = doc
		log.Printf("rules: loaded %s as %q (%d global, %d command overrides)",
			e.Name(), key, len(doc.Global), len(doc.Commands))
	}
	return reg
}

func loadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return &doc, nil
}

// Names returns the loaded document names, for startup logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.docs))
	for n := range r.docs {
		names = append(names, n)
	}
	return names
}

// Resolve maps (document name, command) to the applicable rule list.
//
// Order: an unknown name resolves to none; a present commands[command]
// entry wins even when empty (the ignored sentinel); otherwise a non-empty
// global list applies; otherwise none.
func (r *Registry) Resolve(name, cmd string) ([]Rule, Resolution) {
	doc, ok := r.docs[name]
	if !ok {
		return nil, ResolvedNone
	}
	if list, ok := doc.Commands[cmd]; ok {
		if len(list) == 0 {
			return nil, ResolvedIgnored
		}
		return list, ResolvedRules
	}
	if len(doc.Global) > 0 {
		return doc.Global, ResolvedRules
	}
	return nil, ResolvedNone
}
