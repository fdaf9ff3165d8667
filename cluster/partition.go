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

// PartitionMap is the external collaborator that maps a partition to its
// owning node under a replica policy (spec.md §1 Out of scope: "partition
// map computation"). This core only ever consults it; it never computes
// partition ownership itself.
type PartitionMap interface {
	// Resolve returns the node that should serve partitionID given master
	// (true selects the master replica, false a prole/secondary replica).
	// ok is false when the map has no owner for partitionID yet ("cluster
	// is empty").
	Resolve(partitionID []byte, master bool) (*Node, bool)
}

// StaticMap is a trivial PartitionMap that resolves every partition id to
// the same single node, useful for tests and for a single-node reference
// setup. It ignores the
// master/prole distinction, since a fixed single-node map has nothing to
// alternate to.
type StaticMap struct {
	node *Node
}

// NewStaticMap returns a PartitionMap that always resolves to node,
// regardless of partition id or replica policy.
func NewStaticMap(node *Node) *StaticMap {
	return &StaticMap{node: node}
}

func (s *StaticMap) Resolve(partitionID []byte, master bool) (*Node, bool) {
	if s == nil || s.node == nil {
		return nil, false
	}
	return s.node, true
}
