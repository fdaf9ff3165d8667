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

// Package connpool is the per-(node, loop) connection pool (C2): a bounded
// LIFO free-list of idle connections plus a hard open-connection limit.
//
// The free-list is a mutex-guarded slice used as a stack, not a lock-free
// queue (spec.md §5 describes "lock-free bounded queue"): in this engine's
// goroutine-per-loop model, pool access is single-writer-dominant in
// practice (only the owning loop pushes/pops outside of Release's
// cross-loop dec-open), so a mutex around a slice is simpler and not a
// measurable cost at this contention level — see DESIGN.md. The
// open-count, by contrast, genuinely needs cross-loop atomicity (Release
// can run from any loop) and is a true atomic.Int32.
package connpool

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	liberr "github.com/nabbar/asynckv/errors"
)

// Connection is one pooled, live socket plus the bookkeeping the engine
// needs: whether it multiplexes several in-flight commands (pipeline is
// an external collaborator here, only the flag is tracked) and the
// last-used timestamp the Reaper consults. No I/O-readiness watch mask is
// kept on the connection.
type Connection struct {
	Conn     net.Conn
	Pipeline bool

	lastUsed atomic.Int64 // unix nanos
}

// Touch records that the connection was just used, resetting its idle
// clock for the Reaper.
func (c *Connection) Touch() {
	c.lastUsed.Store(time.Now().UnixNano())
}

// IdleFor reports how long the connection has sat unused.
func (c *Connection) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastUsed.Load()))
}

// Pool is the bounded idle-connection free-list and open-count limiter for
// one (node, loop) pair.
type Pool struct {
	mu      sync.Mutex
	idle    []*Connection
	idleCap int

	openCount atomic.Int32
	limit     int32
}

// NewPool returns a Pool accepting at most limit concurrently open
// connections and caching at most idleCap of them while idle.
func NewPool(limit int32, idleCap int) *Pool {
	return &Pool{
		idleCap: idleCap,
		limit:   limit,
	}
}

// TryGet pops the most recently used idle connection (LIFO, for cache
// locality) if one is available.
func (p *Pool) TryGet() (*Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.idle)
	if n == 0 {
		return nil, false
	}

	c := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return c, true
}

// Put returns c to the idle free-list. Returns false, without storing c,
// if the pool is already at its idle cap — the caller must then Release
// c itself.
func (p *Pool) Put(c *Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) >= p.idleCap {
		return false
	}

	c.Touch()
	p.idle = append(p.idle, c)
	return true
}

// IncOpen atomically reserves one slot against limit. Returns false
// (reserving nothing) if the pool is already at limit.
func (p *Pool) IncOpen() bool {
	for {
		cur := p.openCount.Load()
		if cur >= p.limit {
			return false
		}
		if p.openCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// DecOpen releases one previously-reserved slot.
func (p *Pool) DecOpen() {
	p.openCount.Add(-1)
}

// OpenCount reports the current number of open connections reserved
// against this pool's limit.
func (p *Pool) OpenCount() int32 {
	return p.openCount.Load()
}

// Release closes c and decrements the open-count. Used on terminal error
// paths (see command.deliver) and by the Reaper.
func (p *Pool) Release(c *Connection) {
	if c == nil {
		return
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
	p.DecOpen()
}

// LimitExceededCode is the coded error command.Command surfaces to a
// listener as NO_MORE_CONNECTIONS after IncOpen refuses and a retry is
// also refused.
const LimitExceededCode = liberr.CodeNoMoreConnections
