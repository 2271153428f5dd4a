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

package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const cacheKeyPrefix = "archcrew:search:"

// CachedSearcher memoizes search results in Redis. Redis failures never
// fail a search; the call simply goes to the wrapped searcher.
type CachedSearcher struct {
	next  Searcher
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedSearcher connects to redisURL and wraps next.
func NewCachedSearcher(next Searcher, redisURL string, ttl time.Duration) (*CachedSearcher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[SearchCache] Connected to Redis (ttl: %s)", ttl)
	return &CachedSearcher{next: next, redis: client, ttl: ttl}, nil
}

// Search implements Searcher.
func (c *CachedSearcher) Search(ctx context.Context, query string) (string, error) {
	key := cacheKey(query)

	cached, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		promCacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	case err != redis.Nil:
		log.Printf("[SearchCache] Redis get failed, bypassing cache: %v", err)
	}
	promCacheLookups.WithLabelValues("miss").Inc()

	result, err := c.next.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if err := c.redis.Set(ctx, key, result, c.ttl).Err(); err != nil {
		log.Printf("[SearchCache] Redis set failed: %v", err)
	}
	return result, nil
}

// Close releases the Redis connection.
func (c *CachedSearcher) Close() error {
	return c.redis.Close()
}

// cacheKey normalizes case and whitespace so trivially different
// phrasings share an entry.
func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
