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

// Package cluster is the cluster shutdown protocol (C6), plus the minimal
// node registry and partition-map collaborator the rest of the engine binds
// commands against. It is opaque to the core except for the pending[]
// array: one signed counter per event loop, doubling as a closed-flag
// (-1 meaning "this loop has finalised shutdown for this cluster").
package cluster

import (
	"context"
	"sync/atomic"

	libctx "github.com/nabbar/asynckv/context"
	corlog "github.com/nabbar/asynckv/corelog"
	libevt "github.com/nabbar/asynckv/eventloop"
)

// Cluster holds the per-loop pending counters and the node registry/
// partition-map collaborators commands consult to find where to run.
type Cluster struct {
	log corlog.Logger

	pending []atomic.Int32

	nodes      libctx.Config[string]
	partitions PartitionMap
}

// New returns a Cluster sized for loopCount event loops. partitions may be
// nil; Resolve calls then always report "cluster is empty".
func New(ctx context.Context, log corlog.Logger, loopCount int, partitions PartitionMap) *Cluster {
	if log == nil {
		log = corlog.Discard
	}
	return &Cluster{
		log:        log,
		pending:    make([]atomic.Int32, loopCount),
		nodes:      libctx.New[string](ctx),
		partitions: partitions,
	}
}

// AddNode registers n under its name for later lookup (used by tests and
// by the reference reactor setup — full node discovery is out of scope).
func (c *Cluster) AddNode(n *Node) {
	c.nodes.Store(n.Name(), n)
}

// SetPartitions replaces the partition map Resolve consults. Exported so a
// caller (client.Client.AddNode, in the single-node reference setup) can
// bind a StaticMap once its first node exists, without having to know the
// partition map at Cluster construction time.
func (c *Cluster) SetPartitions(pm PartitionMap) {
	c.partitions = pm
}

// Node looks up a previously-registered node by name.
func (c *Cluster) Node(name string) (*Node, bool) {
	v, ok := c.nodes.Load(name)
	if !ok {
		return nil, false
	}
	n, ok := v.(*Node)
	return n, ok
}

// Resolve consults the partition map, if any, for partitionID under the
// given master/prole policy.
func (c *Cluster) Resolve(partitionID []byte, master bool) (*Node, bool) {
	if c.partitions == nil {
		return nil, false
	}
	return c.partitions.Resolve(partitionID, master)
}

// Begin increments pending[loopIndex], the per-command-start step of
// spec.md §4.4's "in-loop start". Returns false if this loop has already
// finalised shutdown for this cluster (pending[loopIndex] == -1).
func (c *Cluster) Begin(loopIndex uint32) bool {
	p := &c.pending[loopIndex]
	for {
		cur := p.Load()
		if cur < 0 {
			return false
		}
		if p.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// End decrements pending[loopIndex], called once per command as it frees,
// mirroring its earlier Begin.
func (c *Cluster) End(loopIndex uint32) {
	c.pending[loopIndex].Add(-1)
}

// Pending reports the current value of pending[loopIndex], chiefly for
// tests asserting the shutdown protocol's invariants.
func (c *Cluster) Pending(loopIndex uint32) int32 {
	return c.pending[loopIndex].Load()
}

// Close drains every loop's in-flight commands for this cluster and then
// destroys it, implementing spec.md §4.6's protocol: a close_cb posted to
// each loop re-enqueues itself while pending[idx] > 0, and the loop that
// drives pending[idx] from 0 to the -1 sentinel atomically decrements a
// shared count; whichever call drives that count to zero runs onDestroy
// exactly once.
//
// Close blocks until every loop has finalised, UNLESS the calling
// goroutine is itself already running on some loop's dispatch frame (per
// eventloop.AnyLoop) — in that case it posts the close callbacks and
// returns immediately, since blocking could deadlock against the very
// loop it is running on.
func (c *Cluster) Close(ctx context.Context, loops []*libevt.Loop, onDestroy func()) {
	n := len(loops)
	if n == 0 {
		if onDestroy != nil {
			onDestroy()
		}
		return
	}

	var remaining atomic.Int32
	remaining.Store(int32(n))

	var monitor chan struct{}
	if !libevt.AnyLoop(ctx) {
		monitor = make(chan struct{})
	}

	for _, loop := range loops {
		c.postCloseCb(ctx, loop, &remaining, monitor, onDestroy)
	}

	if monitor != nil {
		<-monitor
	}
}

func (c *Cluster) postCloseCb(ctx context.Context, loop *libevt.Loop, remaining *atomic.Int32, monitor chan struct{}, onDestroy func()) {
	idx := loop.Index()

	var cb libevt.Task
	cb = func(taskCtx context.Context) {
		p := &c.pending[idx]
		cur := p.Load()

		switch {
		case cur < 0:
			return
		case cur > 0:
			loop.Post(taskCtx, cb)
		default:
			if !p.CompareAndSwap(0, -1) {
				loop.Post(taskCtx, cb)
				return
			}

			c.log.Debug("loop finalised cluster shutdown", corlog.Fields{"loop": idx})

			if remaining.Add(-1) == 0 {
				c.log.Info("cluster destroyed", corlog.Fields{})
				if onDestroy != nil {
					onDestroy()
				}
				if monitor != nil {
					close(monitor)
				}
			}
		}
	}

	loop.Post(ctx, cb)
}
