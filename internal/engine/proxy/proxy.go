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

// Package proxy is the HTTP front: it classifies each request into a
// command, runs the rate limiter and circuit breaker gates, forwards
// admitted requests upstream, and records the observed outcome.
package proxy

import (
	"context"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"apistatus/internal/engine/breaker"
	"apistatus/internal/engine/clock"
	"apistatus/internal/engine/command"
	"apistatus/internal/engine/evaluate"
	"apistatus/internal/engine/outcome"
	"apistatus/internal/engine/ratelimit"
	"apistatus/internal/engine/store"
	"apistatus/internal/engine/telemetry"
)

// RetryAfterSeconds is advertised on fused responses.
const RetryAfterSeconds = "5"

type ctxKey int

const stateKey ctxKey = 0

// reqState travels through the reverse proxy on the request context so
// ModifyResponse and ErrorHandler can attribute the outcome.
type reqState struct {
	start      time.Time
	commandKey string
}

// Handler fronts one upstream with the telemetry pipeline.
type Handler struct {
	store   *store.Store
	clock   *clock.Clock
	breaker *breaker.Breaker
	limiter *ratelimit.Limiter
	reverse *httputil.ReverseProxy
}

// New builds the proxy handler. breaker and limiter may be nil to disable
// the respective gate; recording happens regardless.
func New(upstream *url.URL, st *store.Store, clk *clock.Clock, b *breaker.Breaker, l *ratelimit.Limiter) *Handler {
	h := &Handler{
		store:   st,
		clock:   clk,
		breaker: b,
		limiter: l,
	}
	h.reverse = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = upstream.Scheme
			req.URL.Host = upstream.Host
			req.Host = upstream.Host
		},
		ModifyResponse: h.recordResponse,
		ErrorHandler:   h.upstreamError,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cmd, ok := command.Classify(r.URL.Path)
	if !ok {
		// Noise paths bypass the pipeline entirely.
		h.reverse.ServeHTTP(w, r)
		return
	}
	commandKey := command.Key(cmd)
	ip := clientIP(r)
	ctx := r.Context()

	if h.limiter != nil {
		if h.limiter.Check(ctx, r, cmd, commandKey, ip) == evaluate.Fuse {
			telemetry.Fused.WithLabelValues("rate").Inc()
			w.Header().Set("X-RateLimit-Status", "exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
	}
	if h.breaker != nil {
		if h.breaker.Check(ctx, r, cmd, commandKey, ip) == evaluate.Fuse {
			telemetry.Fused.WithLabelValues("circuit").Inc()
			w.Header().Set("Retry-After", RetryAfterSeconds)
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	state := &reqState{start: h.clock.Now(), commandKey: commandKey}
	h.reverse.ServeHTTP(w, r.WithContext(context.WithValue(ctx, stateKey, state)))
}

func (h *Handler) recordResponse(resp *http.Response) error {
	state, ok := resp.Request.Context().Value(stateKey).(*reqState)
	if !ok {
		return nil
	}
	elapsed := h.clock.Now().Sub(state.start).Milliseconds()
	h.store.RecordEvent(state.commandKey, elapsed, outcome.FromResponse(resp))
	return nil
}

// upstreamError answers 502 and records the attempt as a system failure;
// an unreachable upstream counts against the same windows as a 5xx.
func (h *Handler) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("proxy: upstream error: %v", err)
	if state, ok := r.Context().Value(stateKey).(*reqState); ok {
		elapsed := h.clock.Now().Sub(state.start).Milliseconds()
		h.store.RecordEvent(state.commandKey, elapsed, outcome.SysFail)
	}
	w.WriteHeader(http.StatusBadGateway)
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// peer address without its port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
