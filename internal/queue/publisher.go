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

// Package queue publishes conversion job hints to a Redis list. Workers
// block on the list to wake up early; the job store remains the source of
// truth for which job a worker actually claims.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flowbase/datasync/internal/models"
)

// Publisher sends job messages to Redis and waits for them.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// Message is the JSON envelope pushed for every queued job.
type Message struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Enqueue pushes a message for job onto the queue.
func (p *Publisher) Enqueue(ctx context.Context, job *models.Job) error {
	msg := Message{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		UserID:     job.UserID,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	// Consumers BRPOP, so LPUSH gives FIFO delivery.
	if err := p.rdb.LPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published job to queue",
		"message_id", msg.ID,
		"job_id", job.ID,
		"queue", p.queueName,
	)
	return nil
}

// Wait blocks for up to timeout for the next message. It returns nil, nil
// when the timeout elapses with nothing queued.
func (p *Publisher) Wait(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := p.rdb.BRPop(ctx, timeout, p.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis BRPOP: %w", err)
	}
	// res is [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("redis BRPOP: unexpected reply %v", res)
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("decode queue message: %w", err)
	}
	return &msg, nil
}

// Len returns the number of pending messages.
func (p *Publisher) Len(ctx context.Context) (int64, error) {
	n, err := p.rdb.LLen(ctx, p.queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("redis LLEN: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
