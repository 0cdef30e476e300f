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
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config holds the connection settings for the shared store.
type Config struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Auth          string `yaml:"auth"`
	PoolSize      int    `yaml:"pool_size"`
	IdleTimeoutMS int    `yaml:"idle_timeout_ms"`
}

// Redis adapts go-redis to the Client interface. Connections are pooled by
// the underlying client; a checked-out connection that hits an I/O error is
// discarded by go-redis rather than returned to the pool.
type Redis struct {
	rdb *redis.Client
}

// NewRedis builds the pooled adapter. Host is mandatory; an unreachable
// server is not a construction error — the engine fails open at request
// time — so connectivity is probed once and only logged.
func NewRedis(cfg Config) (*Redis, error) {
	if cfg.Host == "" {
		return nil, errors.New("backend: host must be configured")
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 20
	}
	idle := time.Duration(cfg.IdleTimeoutMS) * time.Millisecond
	if idle <= 0 {
		idle = 2 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:        cfg.Auth,
		PoolSize:        cfg.PoolSize,
		PoolTimeout:     idle,
		DialTimeout:     idle,
		ReadTimeout:     idle,
		WriteTimeout:    idle,
		ConnMaxIdleTime: idle,
	})

	ctx, cancel := context.WithTimeout(context.Background(), idle)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("backend: redis ping failed (%s:%d): %v", cfg.Host, cfg.Port, err)
	}
	return &Redis{rdb: rdb}, nil
}

// Do executes cmds as one pipelined round-trip.
func (r *Redis) Do(ctx context.Context, cmds []Cmd) ([]Reply, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	pipe := r.rdb.Pipeline()
	queued := make([]redis.Cmder, 0, len(cmds))
	for _, c := range cmds {
		switch c.op {
		case opZAdd:
			queued = append(queued, pipe.ZAdd(ctx, c.key, redis.Z{Score: float64(c.score), Member: c.member}))
		case opZRangeByScore:
			queued = append(queued, pipe.ZRangeByScore(ctx, c.key, &redis.ZRangeBy{
				Min: strconv.FormatInt(c.min, 10),
				Max: strconv.FormatInt(c.max, 10),
			}))
		case opZRemRangeByScore:
			queued = append(queued, pipe.ZRemRangeByScore(ctx, c.key,
				strconv.FormatInt(c.min, 10), strconv.FormatInt(c.max, 10)))
		case opZRangeAll:
			queued = append(queued, pipe.ZRange(ctx, c.key, 0, -1))
		case opGet:
			queued = append(queued, pipe.Get(ctx, c.key))
		case opIncr:
			queued = append(queued, pipe.Incr(ctx, c.key))
		case opExpire:
			queued = append(queued, pipe.Expire(ctx, c.key, time.Duration(c.ttl)*time.Second))
		default:
			return nil, fmt.Errorf("backend: unknown command op %d", c.op)
		}
	}

	_, execErr := pipe.Exec(ctx)
	// Exec surfaces the first per-command error, redis.Nil included. Missing
	// keys are an expected outcome here, not a transport failure.
	if errors.Is(execErr, redis.Nil) {
		execErr = nil
	}

	replies := make([]Reply, len(queued))
	for i := range queued {
		replies[i] = replyOf(queued[i])
	}
	return replies, execErr
}

func replyOf(c redis.Cmder) Reply {
	if err := c.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return Reply{Missing: true}
		}
		return Reply{Err: err}
	}
	switch v := c.(type) {
	case *redis.StringSliceCmd:
		return Reply{Members: v.Val()}
	case *redis.IntCmd:
		return Reply{N: v.Val()}
	case *redis.StringCmd:
		return Reply{Value: v.Val()}
	case *redis.BoolCmd:
		if v.Val() {
			return Reply{N: 1}
		}
		return Reply{N: 0}
	default:
		return Reply{Err: fmt.Errorf("backend: unexpected reply type %T", c)}
	}
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
