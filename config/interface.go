/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads the handful of tunables the command engine needs
// from a YAML/JSON/TOML file via viper, and hot-reloads them via viper's
// built-in fsnotify watch so a long-running host process can retune the
// engine without a restart. Every field has a safe zero-config default.
package config

import (
	"time"
)

// Config holds the engine's tunables. Zero values are replaced by Default's
// values by Normalize.
type Config struct {
	// RecursionGuardThreshold is the number of consecutive inline-start
	// errors a loop tolerates before command.Execute refuses to run a
	// submission inline and enqueues it instead.
	RecursionGuardThreshold int `mapstructure:"recursion_guard_threshold"`

	// DefaultSocketTimeout is used when a command specifies no socket
	// timeout of its own.
	DefaultSocketTimeout time.Duration `mapstructure:"default_socket_timeout"`

	// DefaultTotalTimeout is used when a command specifies no total
	// deadline of its own.
	DefaultTotalTimeout time.Duration `mapstructure:"default_total_timeout"`

	// DefaultMaxRetries is used when a command specifies no retry budget
	// of its own.
	DefaultMaxRetries int `mapstructure:"default_max_retries"`

	// PoolIdleCapacity is the maximum number of idle connections kept per
	// (node, loop) pool before Put starts releasing instead of keeping.
	PoolIdleCapacity int `mapstructure:"pool_idle_capacity"`

	// PoolOpenLimit is the hard cap on concurrently open connections per
	// (node, loop) pool.
	PoolOpenLimit int32 `mapstructure:"pool_open_limit"`

	// IdleReapInterval is how often connpool.Reaper walks idle connections
	// looking for ones past MaxSocketIdle.
	IdleReapInterval time.Duration `mapstructure:"idle_reap_interval"`

	// MaxSocketIdle is the longest a pooled connection may sit unused
	// before the reaper closes it.
	MaxSocketIdle time.Duration `mapstructure:"max_socket_idle"`

	// LoopCount is how many internally-created loops client.New spins up
	// when the caller does not hand it an already-running host reactor.
	LoopCount int `mapstructure:"loop_count"`

	// LoopQueueDepth sizes each internal loop's reactor/loopsim task
	// channel.
	LoopQueueDepth int `mapstructure:"loop_queue_depth"`
}

// Default returns the engine's built-in tunables.
func Default() Config {
	return Config{
		RecursionGuardThreshold: 5,
		DefaultSocketTimeout:    30 * time.Second,
		DefaultTotalTimeout:     1 * time.Second,
		DefaultMaxRetries:       2,
		PoolIdleCapacity:        8,
		PoolOpenLimit:           32,
		IdleReapInterval:        5 * time.Second,
		MaxSocketIdle:           55 * time.Second,
		LoopCount:               4,
		LoopQueueDepth:          128,
	}
}

// Normalize replaces every zero-valued field with Default's value.
func (c *Config) Normalize() {
	d := Default()

	if c.RecursionGuardThreshold <= 0 {
		c.RecursionGuardThreshold = d.RecursionGuardThreshold
	}
	if c.DefaultSocketTimeout <= 0 {
		c.DefaultSocketTimeout = d.DefaultSocketTimeout
	}
	if c.DefaultTotalTimeout <= 0 {
		c.DefaultTotalTimeout = d.DefaultTotalTimeout
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = d.DefaultMaxRetries
	}
	if c.PoolIdleCapacity <= 0 {
		c.PoolIdleCapacity = d.PoolIdleCapacity
	}
	if c.PoolOpenLimit <= 0 {
		c.PoolOpenLimit = d.PoolOpenLimit
	}
	if c.IdleReapInterval <= 0 {
		c.IdleReapInterval = d.IdleReapInterval
	}
	if c.MaxSocketIdle <= 0 {
		c.MaxSocketIdle = d.MaxSocketIdle
	}
	if c.LoopCount <= 0 {
		c.LoopCount = d.LoopCount
	}
	if c.LoopQueueDepth <= 0 {
		c.LoopQueueDepth = d.LoopQueueDepth
	}
}
