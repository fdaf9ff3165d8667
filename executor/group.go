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

// Package executor is the bounded-concurrency group coordinator (C5) for N
// sibling commands belonging to one user-level batch/scan/query operation.
// The driver logic that actually builds those siblings is out of scope
// (spec.md §1); this package only coordinates their completion.
package executor

import (
	"context"
	"sync"

	libcmd "github.com/nabbar/asynckv/command"
	corlog "github.com/nabbar/asynckv/corelog"
	libevt "github.com/nabbar/asynckv/eventloop"
	errpool "github.com/nabbar/asynckv/errors/pool"
)

// Group coordinates N sibling commands sharing one completion callback,
// launching at most maxConcurrent at a time and funneling their results
// into a first-error-wins verdict. All count/valid/error mutations happen
// under mu; mu is never held while calling a user callback (the per-
// member GroupMemberFunc the caller attached, or CompleteFn).
type Group struct {
	mu sync.Mutex

	commands      []*libcmd.Command
	max           int
	maxConcurrent int
	queued        int
	count         int
	valid         bool
	notify        bool
	firstErr      error
	errs          errpool.Pool

	completeFn func(*Group)
	log        corlog.Logger
}

// newGroup is the shared constructor behind NewGroup and the named
// Batch/Scan/Query wrappers below.
func newGroup(ctx context.Context, cmds []*libcmd.Command, maxConcurrent int, completeFn func(*Group), log corlog.Logger) *Group {
	if log == nil {
		log = corlog.Discard
	}

	g := &Group{
		commands:      cmds,
		max:           len(cmds),
		maxConcurrent: maxConcurrent,
		valid:         true,
		notify:        true,
		errs:          errpool.New(),
		completeFn:    completeFn,
		log:           log,
	}
	if g.maxConcurrent > g.max {
		g.maxConcurrent = g.max
	}
	if g.maxConcurrent < 1 && g.max > 0 {
		g.maxConcurrent = 1
	}

	for _, cmd := range cmds {
		cmd.SetGroupListener(func(err error, udata interface{}, loop *libevt.Loop) {
			g.onMemberDone(ctx, err)
		})
	}

	if g.max == 0 {
		g.log.Debug("executor group launched empty", corlog.Fields{})
		if completeFn != nil {
			completeFn(g)
		}
		return g
	}

	g.log.Debug("executor group launching", corlog.Fields{"max": g.max, "max_concurrent": g.maxConcurrent})

	g.mu.Lock()
	initial := g.maxConcurrent
	g.queued = initial
	g.mu.Unlock()

	for i := 0; i < initial; i++ {
		g.launch(ctx, i)
	}

	return g
}

// NewGroup launches cmds (every one pre-built as a KindGroupMember
// command) up to maxConcurrent at a time, calling completeFn exactly once
// when every sibling has completed or been cancelled.
func NewGroup(ctx context.Context, cmds []*libcmd.Command, maxConcurrent int, completeFn func(*Group)) *Group {
	return newGroup(ctx, cmds, maxConcurrent, completeFn, nil)
}

// NewBatchGroup, NewScanGroup and NewQueryGroup are thin named wrappers
// over NewGroup, grounded on the original client's as_event_executor_*
// trio: one executor core, specialised in name only for the batch/scan/
// query drivers that build the sibling commands (those drivers are
// themselves out of scope here).
func NewBatchGroup(ctx context.Context, cmds []*libcmd.Command, maxConcurrent int, completeFn func(*Group)) *Group {
	return NewGroup(ctx, cmds, maxConcurrent, completeFn)
}

func NewScanGroup(ctx context.Context, cmds []*libcmd.Command, maxConcurrent int, completeFn func(*Group)) *Group {
	return NewGroup(ctx, cmds, maxConcurrent, completeFn)
}

func NewQueryGroup(ctx context.Context, cmds []*libcmd.Command, maxConcurrent int, completeFn func(*Group)) *Group {
	return NewGroup(ctx, cmds, maxConcurrent, completeFn)
}

func (g *Group) launch(ctx context.Context, idx int) {
	if err := g.commands[idx].Execute(ctx); err != nil {
		g.onMemberDone(ctx, err)
	}
}

// onMemberDone is every sibling command's GroupMemberFunc. It records the
// first error (subsequent ones are dropped), launches the next queued
// sibling (index completed+maxConcurrent-1) if the group is still valid,
// and fires completeFn exactly once when count reaches max.
func (g *Group) onMemberDone(ctx context.Context, err error) {
	g.mu.Lock()
	g.count++

	if err != nil {
		g.errs.Add(err)
		if g.valid {
			g.valid = false
			g.firstErr = err
		}
	}

	next := -1
	if g.valid && g.queued < g.max {
		next = g.queued
		g.queued++
	}

	done := g.count >= g.max
	notify := g.notify
	g.mu.Unlock()

	if next >= 0 {
		g.launch(ctx, next)
	}

	if done && notify {
		g.log.Debug("executor group complete", corlog.Fields{"max": g.max, "valid": g.Valid()})
		if g.completeFn != nil {
			g.completeFn(g)
		}
	}
}

// Cancel implements spec.md §4.5's cooperative cancellation: marks the
// group invalid (no further siblings will be launched) and adds phantom
// completions for every sibling never queued, so count still reaches max
// and the single completion callback still fires exactly once.
func (g *Group) Cancel() {
	g.mu.Lock()
	g.valid = false
	remaining := g.max - g.queued
	g.queued = g.max
	g.count += remaining
	done := g.count >= g.max
	notify := g.notify
	g.mu.Unlock()

	if done && notify {
		g.log.Debug("executor group cancelled", corlog.Fields{"max": g.max})
		if g.completeFn != nil {
			g.completeFn(g)
		}
	}
}

// Suppress disables the completion callback for a group whose caller no
// longer cares about the outcome (spec.md's "notify" flag).
func (g *Group) Suppress() {
	g.mu.Lock()
	g.notify = false
	g.mu.Unlock()
}

// Valid reports whether every sibling completed without error so far.
func (g *Group) Valid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.valid
}

// Err returns the first captured sibling error, if any.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstErr
}

// Errs returns every sibling error captured so far, combined via
// errors/pool so a caller can report which of several concurrently running
// siblings failed rather than only the first one.
func (g *Group) Errs() []error {
	return g.errs.Slice()
}

// Count and Max report the group's completion progress, chiefly for tests.
func (g *Group) Count() int { g.mu.Lock(); defer g.mu.Unlock(); return g.count }
func (g *Group) Max() int   { return g.max }
