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

package cluster

import (
	"sync/atomic"

	libpool "github.com/nabbar/asynckv/connpool"
)

// Node is a reference-counted handle to one cluster member, holding one
// connection pool per event loop (so pool access from a command never
// crosses loops). Node discovery and health are out of scope for this
// core (spec.md §1); Node is the minimal shape the rest of the engine
// needs in order to exist and be addressed.
type Node struct {
	name string

	refCount atomic.Int32
	pools    []*libpool.Pool
}

// NewNode allocates a Node with one pool per loop index in [0, loopCount).
func NewNode(name string, loopCount int, limit int32, idleCap int) *Node {
	n := &Node{
		name:  name,
		pools: make([]*libpool.Pool, loopCount),
	}
	for i := range n.pools {
		n.pools[i] = libpool.NewPool(limit, idleCap)
	}
	return n
}

// Name returns the node's identifier (address, alias — opaque to this core).
func (n *Node) Name() string { return n.name }

// AddRef increments the node's reference count. A command holds one count
// for the duration it is bound to this node (spec.md §9 Ownership).
func (n *Node) AddRef() { n.refCount.Add(1) }

// Release decrements the node's reference count. Must be called before a
// command bound to this node is freed.
func (n *Node) Release() { n.refCount.Add(-1) }

// RefCount reports the current reference count, chiefly for tests.
func (n *Node) RefCount() int32 { return n.refCount.Load() }

// Pool returns this node's connection pool for the given loop index.
func (n *Node) Pool(loopIndex uint32) *libpool.Pool {
	return n.pools[loopIndex]
}
