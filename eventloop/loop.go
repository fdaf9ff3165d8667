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

// Package eventloop is the event-loop registry (C1): a set of loops,
// with no capacity limit, arranged as a circular list, assigning submitted commands to a
// loop by round robin. Each loop wraps one reactor.Reactor binding; the
// reactor itself owns the single goroutine that actually drains its task
// queue (see reactor/loopsim for the reference implementation) — this
// package only tracks the loop's identity, its recursion-guard counter,
// its position in the circular list, and (for internally-created loops)
// the io.Closer used to join its goroutine at teardown.
package eventloop

import (
	"context"
	"io"
	"sync/atomic"

	librtr "github.com/nabbar/asynckv/reactor"
)

// Task is one unit of work a Loop executes on its own dispatch goroutine.
type Task func(ctx context.Context)

// Loop is a single event loop: one reactor binding, one recursion-guard
// counter, one slot in the registry's circular list.
type Loop struct {
	index    uint32
	reactor  librtr.Reactor
	closer   io.Closer // nil for externally-registered loops
	external bool

	errCount atomic.Int32
	next     atomic.Pointer[Loop]
	closed   atomic.Bool
}

// Index returns this loop's position in its registry.
func (l *Loop) Index() uint32 { return l.index }

// Reactor returns the host reactor bound to this loop.
func (l *Loop) Reactor() librtr.Reactor { return l.reactor }

// External reports whether this loop's goroutine is driven by the caller
// (RegisterExternalLoop) rather than owned by the registry
// (CreateInternalLoops).
func (l *Loop) External() bool { return l.external }

// IncError bumps the recursion-guard counter, returning its new value.
// A command's completion calls this, before its listener runs, whenever it
// completes with an error, so a spiral of synchronous error callbacks
// eventually forces subsequent submissions onto the queue instead of
// recursing further.
func (l *Loop) IncError() int32 { return l.errCount.Add(1) }

// ResetError clears the recursion-guard counter. Called once a command on
// this loop acquires a valid connection, per spec: "reset the loop's
// recent-error counter, transition to WRITE".
func (l *Loop) ResetError() { l.errCount.Store(0) }

// ErrorCount reads the current recursion-guard counter.
func (l *Loop) ErrorCount() int32 { return l.errCount.Load() }

// Post enqueues t for execution on this loop's own goroutine, with ctx
// stamped by this loop's token (see token.go) so InLoop(ctx, l) reports
// true for code that runs as a direct result of this Post. Safe to call
// from any goroutine. Reports false, without enqueuing t, if this loop has
// already been closed — the caller (typically command.Execute) is then
// responsible for surfacing the failure instead of silently dropping it.
func (l *Loop) Post(ctx context.Context, t Task) bool {
	if l.closed.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx := withToken(ctx, l)
	l.reactor.PostTask(func() { t(loopCtx) })
	return true
}

// Dispatch runs t inline if ctx already proves we're executing on l's own
// goroutine and l's recursion-guard counter is below threshold; otherwise
// it posts t to run on l's goroutine. This is command.Execute's recursion
// guard, factored here because it is purely a function of loop identity
// and error count. Returns false only when the post path was taken and
// the loop was already closed.
func (l *Loop) Dispatch(ctx context.Context, threshold int, t Task) bool {
	if InLoop(ctx, l) && l.ErrorCount() < int32(threshold) {
		t(ctx)
		return true
	}
	return l.Post(ctx, t)
}

func (l *Loop) close() error {
	l.closed.Store(true)
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
