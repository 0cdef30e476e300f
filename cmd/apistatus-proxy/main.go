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

// Package main runs the apistatus reverse proxy.
//
// The process is responsible for orchestrating the whole pipeline:
//  1. Load configuration and rule documents.
//  2. Connect the Redis-backed telemetry store and start its writers.
//  3. Start the alarm dispatcher and the background expiry sweeper.
//  4. Serve proxy traffic and the admin endpoints.
//  5. Drain everything on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"apistatus/internal/engine/alarm"
	"apistatus/internal/engine/backend"
	"apistatus/internal/engine/breaker"
	"apistatus/internal/engine/clock"
	"apistatus/internal/engine/config"
	"apistatus/internal/engine/evaluate"
	"apistatus/internal/engine/proxy"
	"apistatus/internal/engine/ratelimit"
	"apistatus/internal/engine/rules"
	"apistatus/internal/engine/store"
)

func main() {
	configPath := flag.String("config", "apistatus.yml", "Path to the YAML configuration file")
	flag.Parse()

	// .env is optional; it typically carries REDIS_AUTH in development.
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	client, err := backend.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer client.Close()

	clk := clock.New()
	st := store.New(client, clk, cfg.ExpiredSeconds, cfg.WriteQueueSize, cfg.WriteWorkers)
	st.Start()

	dispatcher := alarm.NewDispatcher(cfg.AlarmURL, 0)
	dispatcher.Start()

	sweeper := store.NewSweeper(st, time.Duration(cfg.SweepIntervalSeconds)*time.Second)
	sweeper.Start()

	registry := rules.LoadDir(cfg.RulesDir)
	log.Printf("loaded rule documents: %v", registry.Names())

	eval := evaluate.New(st, clk, dispatcher)
	var b *breaker.Breaker
	if cfg.Breaker.Enabled {
		b = breaker.New(registry, eval, cfg.Breaker.FuseRules, cfg.Breaker.AlarmRules)
	}
	var l *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		l = ratelimit.New(registry, eval, st, cfg.RateLimit.RateRules)
	}

	handler := proxy.New(cfg.UpstreamURL(), st, clk, b, l)
	proxyServer := &http.Server{Addr: cfg.Listen, Handler: handler}
	adminServer := &http.Server{Addr: cfg.AdminListen, Handler: proxy.AdminRouter(st)}

	go func() {
		log.Printf("proxying %s -> %s", cfg.Listen, cfg.Upstream)
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("proxy server: %v", err)
		}
	}()
	go func() {
		log.Printf("admin endpoints on %s", cfg.AdminListen)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := proxyServer.Shutdown(ctx); err != nil {
		log.Printf("proxy shutdown: %v", err)
	}
	if err := adminServer.Shutdown(ctx); err != nil {
		log.Printf("admin shutdown: %v", err)
	}

	// In-flight responses have been delivered; drain the async tails.
	sweeper.Stop()
	st.Stop()
	dispatcher.Stop()
	log.Println("stopped")
}
