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

package eventloop

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	corlog "github.com/nabbar/asynckv/corelog"
	librtr "github.com/nabbar/asynckv/reactor"
)

// ReactorFactory builds the reactor backing one internally-created loop,
// along with an io.Closer used to join its goroutine on teardown. index is
// this loop's position in the registry.
type ReactorFactory func(index uint32) (librtr.Reactor, io.Closer)

// Registry is the circular-list event-loop registry (C1). It has no
// capacity limit: every CreateInternalLoops or RegisterExternalLoop call
// appends to it.
// The zero value is not usable; construct with NewRegistry.
type Registry struct {
	log corlog.Logger

	mu    sync.Mutex
	loops []*Loop

	cursor atomic.Uint32
}

// NewRegistry returns an empty Registry. log may be corelog.Discard.
func NewRegistry(log corlog.Logger) *Registry {
	if log == nil {
		log = corlog.Discard
	}
	return &Registry{log: log}
}

// CreateInternalLoops allocates n loops, each backed by a reactor built
// from factory, and takes ownership of joining their goroutines at
// CloseAll. Fails if n is zero or any factory call's reactor construction
// is unusable; partial progress is torn down on failure.
func (r *Registry) CreateInternalLoops(n int, factory ReactorFactory) error {
	if n <= 0 {
		return codeZeroCapacity.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	base := uint32(len(r.loops))
	created := make([]*Loop, 0, n)

	for i := 0; i < n; i++ {
		idx := base + uint32(i)

		rtr, closer := factory(idx)
		if rtr == nil {
			for _, l := range created {
				_ = l.close()
			}
			return codeCreateFailed.Error()
		}

		created = append(created, &Loop{
			index:   idx,
			reactor: rtr,
			closer:  closer,
		})
	}

	r.loops = append(r.loops, created...)
	r.relink()

	r.log.Info("event loops created", corlog.Fields{"count": n})
	return nil
}

// RegisterExternalLoop adds a loop backed by an already-running reactor
// the caller owns. The registry never closes it; CloseAll leaves it
// untouched and the caller responsible for its lifecycle.
func (r *Registry) RegisterExternalLoop(rtr librtr.Reactor) (*Loop, error) {
	if rtr == nil {
		return nil, codeCreateFailed.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := &Loop{
		index:    uint32(len(r.loops)),
		reactor:  rtr,
		external: true,
	}

	r.loops = append(r.loops, l)
	r.relink()

	r.log.Info("external event loop registered", corlog.Fields{"index": l.index})
	return l, nil
}

// relink must be called with r.mu held; it re-threads the circular next
// pointers after an insertion. Next does not follow these pointers: it
// indexes the loop slice, which it reads under r.mu, so an insertion is
// never observed half-done.
func (r *Registry) relink() {
	n := len(r.loops)
	for i, l := range r.loops {
		l.next.Store(r.loops[(i+1)%n])
	}
}

// Find returns the loop at index, if any.
func (r *Registry) Find(index uint32) (*Loop, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.loops {
		if l.index == index {
			return l, true
		}
	}
	return nil, false
}

// Len returns the number of registered loops, internal and external.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loops)
}

// Next advances the round-robin cursor via atomic fetch-add modulo the
// registry size and returns the loop it landed on. The cursor advance is
// lock-free, but the loop slice and its size are read under r.mu; exact
// fairness across concurrent callers is not guaranteed, matching spec.md
// §4.1.
func (r *Registry) Next() (*Loop, bool) {
	r.mu.Lock()
	n := len(r.loops)
	loops := r.loops
	r.mu.Unlock()

	if n == 0 {
		return nil, false
	}

	i := r.cursor.Add(1) - 1
	return loops[int(i%uint32(n))], true
}

// CloseAll marks every internally-created loop closed and joins its
// goroutine through its io.Closer. It posts no task to any loop, and it
// leaves externally-registered loops untouched (they are the caller's
// responsibility).
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	loops := append([]*Loop{}, r.loops...)
	r.mu.Unlock()

	var firstErr error
	for _, l := range loops {
		if !l.external {
			if err := l.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	r.log.Info("event loops closed", corlog.Fields{"count": len(loops)})
	return firstErr
}
