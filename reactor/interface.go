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

// Package reactor defines the abstract host-reactor surface the command
// engine drives I/O through. The engine never imports a concrete network or
// timer library directly; it only ever calls through this interface, so the
// same command/connpool/timer code runs against a production proactor or the
// in-process reference implementation in reactor/loopsim.
package reactor

import (
	"net"
	"time"
)

// IOCallback is invoked once per readiness notification. n is the number of
// bytes transferred (read or written), err is non-nil on socket failure.
type IOCallback func(n int, err error)

// ConnectCallback is invoked once when an asynchronous connect attempt
// resolves, successfully or not.
type ConnectCallback func(conn net.Conn, err error)

// TimerHandle identifies an armed timer so it can later be cancelled.
// It is opaque to the engine; concrete reactors may back it with a
// *time.Timer, a heap index, or anything else.
type TimerHandle interface {
	// Stop cancels the timer. Stopping an already-fired or already-stopped
	// timer is a no-op.
	Stop()
}

// Reactor is the host-supplied readiness and scheduling surface. A Reactor
// instance is always scoped to a single event loop: every method here acts
// on that loop alone, and callbacks it invokes run on that loop's goroutine.
type Reactor interface {
	// PostTask schedules fn to run on this loop's own goroutine, appended to
	// the loop's task queue. Safe to call from any goroutine.
	PostTask(fn func())

	// ArmTimer schedules fn to run on this loop's goroutine after d elapses.
	// Returns a handle usable to cancel it before it fires.
	ArmTimer(d time.Duration, fn func()) TimerHandle

	// Connect begins a non-blocking connection attempt to addr. cb is
	// invoked on this loop's goroutine once the attempt resolves.
	Connect(network, addr string, cb ConnectCallback)

	// RegisterRead arms a one-shot read-readiness watch on conn into buf.
	// cb fires on this loop's goroutine with the number of bytes placed
	// into buf, or an error (including io.EOF on orderly close).
	RegisterRead(conn net.Conn, buf []byte, cb IOCallback)

	// RegisterWrite arms a one-shot write-readiness watch on conn, writing
	// buf. cb fires on this loop's goroutine with the number of bytes
	// written, or an error.
	RegisterWrite(conn net.Conn, buf []byte, cb IOCallback)

	// Unregister cancels any pending read/write watch on conn without
	// closing it. Safe to call when no watch is outstanding.
	Unregister(conn net.Conn)
}
