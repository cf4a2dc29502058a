// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrCacheMiss = errors.New("key not in cache")
)

// Cache is a two-tier byte cache: an in-process LRU in front of an optional redis
// server. Values are lz4 compressed. Safe for concurrent use.
type Cache struct {
	local *lru.Cache
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCache creates a cache holding localSize entries in memory. If redisURL is not
// empty entries are also written to redis and expire after ttl.
func NewCache(localSize int, redisURL string, ttl time.Duration) (*Cache, error) {
	local, err := lru.New(localSize)
	if err != nil {
		log.Error().Err(err).Int("LocalSize", localSize).Msg("could not create LRU cache")
		return nil, err
	}

	c := &Cache{
		local: local,
		ttl:   ttl,
	}

	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return nil, err
		}
		c.rdb = redis.NewClient(opt)
	}

	return c, nil
}

// SetupCache creates the cache described by the cache.* configuration keys. Returns
// nil when caching is disabled.
func SetupCache() (*Cache, error) {
	if !viper.GetBool("cache.enabled") {
		return nil, nil
	}

	redisURL := ""
	if viper.GetBool("cache.redis") {
		redisURL = viper.GetString("cache.redis_url")
	}

	return NewCache(viper.GetInt("cache.local_size"), redisURL, time.Duration(viper.GetInt("cache.ttl"))*time.Second)
}

// Set stores bytes under key
func (c *Cache) Set(ctx context.Context, key string, bytes []byte) error {
	compressed, err := Compress(bytes)
	if err != nil {
		return err
	}
	c.local.Add(key, compressed)

	if c.rdb != nil {
		return c.rdb.Set(ctx, key, compressed, c.ttl).Err()
	}
	return nil
}

// Get returns the bytes stored under key or ErrCacheMiss
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, ok := c.local.Get(key); ok {
		return Decompress(val.([]byte))
	}

	if c.rdb == nil {
		return nil, ErrCacheMiss
	}

	val, err := c.rdb.GetEx(ctx, key, c.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	c.local.Add(key, val)
	return Decompress(val)
}

// Close releases the redis connection
func (c *Cache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
