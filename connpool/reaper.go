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

package connpool

import (
	"sync"
	"time"

	corlog "github.com/nabbar/asynckv/corelog"
)

// Reaper periodically walks a set of pools, closing idle connections past
// maxIdle. This supplements spec.md's data model ("a monotonic 'last-used'
// timestamp used by an idle reaper") with the reaping loop itself, which
// the retrieved as_event.c excerpt implies (as_event_set_conn_last_used)
// but does not itself contain.
type Reaper struct {
	log     corlog.Logger
	maxIdle time.Duration

	mu    sync.Mutex
	pools []*Pool

	stop chan struct{}
	done chan struct{}
}

// NewReaper returns a Reaper that will, once started, close idle
// connections older than maxIdle every interval.
func NewReaper(log corlog.Logger, maxIdle time.Duration) *Reaper {
	if log == nil {
		log = corlog.Discard
	}
	return &Reaper{
		log:     log,
		maxIdle: maxIdle,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Watch registers a pool to be swept on every tick. Safe to call after
// Start.
func (r *Reaper) Watch(p *Pool) {
	r.mu.Lock()
	r.pools = append(r.pools, p)
	r.mu.Unlock()
}

// Start begins sweeping on a ticker of the given interval, until Stop is
// called. Start spawns its own goroutine and returns immediately.
func (r *Reaper) Start(interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		defer close(r.done)

		for {
			select {
			case <-t.C:
				r.sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop ends the sweeping goroutine and waits for it to exit.
func (r *Reaper) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}

func (r *Reaper) sweep() {
	r.mu.Lock()
	pools := append([]*Pool{}, r.pools...)
	r.mu.Unlock()

	var reaped int
	for _, p := range pools {
		p.mu.Lock()
		kept := p.idle[:0]
		for _, c := range p.idle {
			if c.IdleFor() > r.maxIdle {
				p.Release(c)
				reaped++
				continue
			}
			kept = append(kept, c)
		}
		p.idle = kept
		p.mu.Unlock()
	}

	if reaped > 0 {
		r.log.Debug("idle connections reaped", corlog.Fields{"count": reaped})
	}
}
