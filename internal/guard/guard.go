// Copyright (c) 2026 John Earle
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

// Package guard keeps at most one login attempt in flight per account, across
// processes, using a Redis key with TTL.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed attempt keeps its account locked.
	DefaultTTL = 10 * time.Minute

	// keyPrefix namespaces lock keys in Redis.
	keyPrefix = "loginflow:attempt:"
)

// release deletes the key only if it still holds our token, so an attempt
// that outlived its TTL cannot drop a newer holder's lock.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a held per-account lock.
type Lock struct {
	key   string
	token string
}

// Guard hands out per-account locks.
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a guard backed by Redis. A zero ttl uses DefaultTTL.
func New(rdb *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		rdb: rdb,
		ttl: ttl,
	}
}

// Acquire takes the lock for username. It returns nil and no error when
// another attempt already holds it.
func (g *Guard) Acquire(ctx context.Context, username string) (*Lock, error) {
	lock := &Lock{
		key:   keyPrefix + username,
		token: uuid.NewString(),
	}

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := g.rdb.SetNX(ctx, lock.key, lock.token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("guard SETNX: %w", err)
	}
	if !set {
		return nil, nil
	}
	return lock, nil
}

// Release drops the lock if it is still ours.
func (g *Guard) Release(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	if err := release.Run(ctx, g.rdb, []string{lock.key}, lock.token).Err(); err != nil {
		return fmt.Errorf("guard release: %w", err)
	}
	return nil
}
