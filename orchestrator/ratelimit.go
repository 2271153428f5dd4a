// Copyright 2025 AxonFlow
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

package orchestrator

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const rateLimitWindow = time.Minute

// RateLimiter caps kickoff requests per client over a sliding one-minute
// window. It uses Redis when configured so limits hold across replicas,
// and an in-process window otherwise.
type RateLimiter struct {
	limit  int
	client *redis.Client
	now    func() time.Time

	mu    sync.Mutex
	local map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing limitPerMinute requests per
// client. An empty redisURL keeps state in memory.
func NewRateLimiter(redisURL string, limitPerMinute int) (*RateLimiter, error) {
	rl := &RateLimiter{
		limit: limitPerMinute,
		now:   time.Now,
		local: make(map[string][]time.Time),
	}
	if redisURL == "" {
		return rl, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rl.client = client
	return rl, nil
}

// Allow records a request from clientID and reports an error when the
// client is over its limit.
func (rl *RateLimiter) Allow(ctx context.Context, clientID string) error {
	if rl.client == nil {
		return rl.allowLocal(clientID)
	}

	now := rl.now()
	key := fmt.Sprintf("archcrew:ratelimit:%s", clientID)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now.Add(-rateLimitWindow).UnixNano()))
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, 2*rateLimitWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		// fail open
		log.Printf("[RateLimiter] Redis check failed for %s: %v (allowing request)", clientID, err)
		return nil
	}

	if count := card.Val(); count > int64(rl.limit) {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", count, rl.limit)
	}
	return nil
}

func (rl *RateLimiter) allowLocal(clientID string) error {
	now := rl.now()
	cutoff := now.Add(-rateLimitWindow)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	kept := rl.local[clientID][:0]
	for _, t := range rl.local[clientID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	rl.local[clientID] = kept

	if len(kept) > rl.limit {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", len(kept), rl.limit)
	}
	return nil
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := rl.Allow(r.Context(), clientIP(r)); err != nil {
			promRateLimited.Inc()
			w.Header().Set("Retry-After", "60")
			sendErrorResponse(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close releases the Redis connection.
func (rl *RateLimiter) Close() error {
	if rl.client != nil {
		return rl.client.Close()
	}
	return nil
}

// clientIP prefers the first X-Forwarded-For hop, as set by the load
// balancer in front of the service.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
