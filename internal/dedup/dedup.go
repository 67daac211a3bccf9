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

// Package dedup makes job uploads idempotent using Redis keys with a TTL.
// A client that retries an upload with the same Idempotency-Key gets the
// job created by the first attempt instead of a duplicate.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember an idempotency key.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "datasync:idem:"

	// pending marks a key whose upload has not produced a job yet.
	pending = "-"
)

// ErrInFlight is returned while another request holds the same key.
var ErrInFlight = errors.New("a request with this idempotency key is in progress")

// Filter tracks which idempotency keys have already been used.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

func key(userID, idemKey string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, userID, idemKey)
}

// Reserve claims idemKey for userID. It returns "" when the key is new and
// now reserved, or the job id an earlier request bound to it.
func (f *Filter) Reserve(ctx context.Context, userID, idemKey string) (string, error) {
	k := key(userID, idemKey)
	for attempt := 0; attempt < 2; attempt++ {
		// SET NX = set only if key does not exist. Returns true if the key was set.
		set, err := f.rdb.SetNX(ctx, k, pending, f.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("dedup SETNX: %w", err)
		}
		if set {
			return "", nil
		}

		jobID, err := f.rdb.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired between SETNX and GET
		}
		if err != nil {
			return "", fmt.Errorf("dedup GET: %w", err)
		}
		if jobID == pending {
			return "", ErrInFlight
		}
		return jobID, nil
	}
	return "", ErrInFlight
}

// Bind records the job created for a reserved key.
func (f *Filter) Bind(ctx context.Context, userID, idemKey, jobID string) error {
	if err := f.rdb.Set(ctx, key(userID, idemKey), jobID, f.ttl).Err(); err != nil {
		return fmt.Errorf("dedup SET: %w", err)
	}
	return nil
}

// Release frees a reserved key after a failed upload.
func (f *Filter) Release(ctx context.Context, userID, idemKey string) error {
	if err := f.rdb.Del(ctx, key(userID, idemKey)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
