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

// Package config loads the proxy's YAML configuration. Fields absent from
// the file keep their defaults; secrets may come from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v2"

	"apistatus/internal/engine/backend"
)

// Breaker configures the circuit-breaker gate.
type Breaker struct {
	Enabled    bool   `yaml:"enabled"`
	FuseRules  string `yaml:"fuse_rules"`
	AlarmRules string `yaml:"alarm_rules"`
}

// RateLimit configures the per-device gate.
type RateLimit struct {
	Enabled   bool   `yaml:"enabled"`
	RateRules string `yaml:"rate_rules"`
}

// Config is the full proxy configuration.
type Config struct {
	Listen      string `yaml:"listen"`
	AdminListen string `yaml:"admin_listen"`
	Upstream    string `yaml:"upstream"`

	Redis backend.Config `yaml:"redis"`

	RulesDir             string `yaml:"rules_dir"`
	ExpiredSeconds       int64  `yaml:"expired_seconds"`
	AlarmURL             string `yaml:"alarm_url"`
	WriteQueueSize       int    `yaml:"write_queue_size"`
	WriteWorkers         int    `yaml:"write_workers"`
	SweepIntervalSeconds int64  `yaml:"sweep_interval_seconds"`

	Breaker   Breaker   `yaml:"breaker"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

// Default returns the configuration used when the file omits a field.
func Default() Config {
	return Config{
		Listen:         ":8080",
		AdminListen:    "127.0.0.1:9090",
		RulesDir:       "rules",
		ExpiredSeconds: 600,
		Breaker: Breaker{
			Enabled:    true,
			FuseRules:  "fuse_rules",
			AlarmRules: "alarm_rules",
		},
		RateLimit: RateLimit{
			Enabled:   true,
			RateRules: "rate_rules",
		},
	}
}

// Load reads and validates the YAML file at path. REDIS_AUTH in the
// environment overrides the file's redis auth so the secret can stay out
// of version control.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if auth := os.Getenv("REDIS_AUTH"); auth != "" {
		cfg.Redis.Auth = auth
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the proxy cannot run with.
func (c *Config) Validate() error {
	if c.Upstream == "" {
		return fmt.Errorf("config: upstream is required")
	}
	u, err := url.Parse(c.Upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: upstream %q is not an absolute URL", c.Upstream)
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("config: redis host is required")
	}
	if c.ExpiredSeconds <= 0 {
		return fmt.Errorf("config: expired_seconds must be positive, got %d", c.ExpiredSeconds)
	}
	return nil
}

// UpstreamURL returns the parsed upstream. Call after Validate.
func (c *Config) UpstreamURL() *url.URL {
	u, _ := url.Parse(c.Upstream)
	return u
}
