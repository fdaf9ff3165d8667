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

// Package loopsim is a minimal, reference reactor.Reactor implementation
// sufficient to drive the command engine end-to-end in tests, without a
// production async-IO dependency.
//
// Its shape is grounded on the gaio watcher: a single goroutine drains one
// channel of pending operations per loop (chPendingNotify in gaio's
// watcher), performs blocking syscalls off that goroutine in small worker
// goroutines, and always delivers completions back onto the loop goroutine
// so the engine's no-lock invariants hold.
package loopsim

import (
	"net"
	"sync"
	"time"

	librtr "github.com/nabbar/asynckv/reactor"
)

// task is one unit of work queued onto a Loop: either a plain callback
// (PostTask) or an IO/connect completion being handed back to the loop
// goroutine for delivery.
type task func()

// Loop is one goroutine-driven reactor instance. The zero value is not
// usable; construct with New.
type Loop struct {
	queue chan task
	done  chan struct{}
	wg    sync.WaitGroup
}

// New creates a Loop with the given task queue depth and starts its driving
// goroutine immediately.
func New(queueDepth int) *Loop {
	l := &Loop{
		queue: make(chan task, queueDepth),
		done:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.run()

	return l
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case t, ok := <-l.queue:
			if !ok || t == nil {
				return
			}
			t()
		case <-l.done:
			return
		}
	}
}

// Close stops the driving goroutine and waits for it to exit. Further calls
// to PostTask/ArmTimer/... after Close are silently dropped. Satisfies
// io.Closer so the event-loop registry can join internally-created loops
// generically.
func (l *Loop) Close() error {
	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}
	l.wg.Wait()
	return nil
}

func (l *Loop) post(t task) {
	select {
	case <-l.done:
		return
	default:
	}

	select {
	case l.queue <- t:
	case <-l.done:
	}
}

func (l *Loop) PostTask(fn func()) {
	l.post(func() { fn() })
}

type timerHandle struct {
	t *time.Timer
}

func (h *timerHandle) Stop() {
	if h == nil || h.t == nil {
		return
	}
	h.t.Stop()
}

func (l *Loop) ArmTimer(d time.Duration, fn func()) librtr.TimerHandle {
	h := &timerHandle{}
	h.t = time.AfterFunc(d, func() {
		l.post(func() { fn() })
	})
	return h
}

func (l *Loop) Connect(network, addr string, cb librtr.ConnectCallback) {
	go func() {
		c, err := net.DialTimeout(network, addr, 5*time.Second)
		l.post(func() { cb(c, err) })
	}()
}

func (l *Loop) RegisterRead(conn net.Conn, buf []byte, cb librtr.IOCallback) {
	go func() {
		n, err := conn.Read(buf)
		l.post(func() { cb(n, err) })
	}()
}

func (l *Loop) RegisterWrite(conn net.Conn, buf []byte, cb librtr.IOCallback) {
	go func() {
		n, err := conn.Write(buf)
		l.post(func() { cb(n, err) })
	}()
}

func (l *Loop) Unregister(conn net.Conn) {
	// Reads/writes here run to completion on their own worker goroutine and
	// self-deliver; there is no outstanding registration to cancel beyond
	// letting that goroutine's result be ignored by the caller.
}

var _ librtr.Reactor = (*Loop)(nil)
