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

package command

import (
	libevt "github.com/nabbar/asynckv/eventloop"
)

// Flags is the small bitmask the teacher corpus prefers over a cluster of
// bools (see the atomic.Value-guarded option fields elsewhere in this
// module). HAS_TIMER and USING_SOCKET_TIMER are intentionally not part of
// this bitmask — they are derived, on demand, from the command's
// timer.Manager, which is the single owner of that state.
type Flags uint32

const (
	// FlagMaster selects the master replica on the next node-selection
	// pass; toggled by Retry(alternate=true).
	FlagMaster Flags = 1 << iota
	// FlagRead marks a read command. Writes always target the master
	// replica regardless of FlagMaster; reads honor it.
	FlagRead
	// FlagEventReceived is set by the read callback and cleared by the
	// socket timer's fire handler, per the timer transition rule.
	FlagEventReceived
	// FlagFreeBuf marked, in the original C client, whether the command's
	// buffer was heap-allocated and needed an explicit free. Go's garbage
	// collector makes this bit inert here; it is retained only so the
	// flag vocabulary matches spec.md's data model one-for-one.
	FlagFreeBuf
)

// State is the command's lifecycle state.
type State uint32

const (
	StateUnregistered State = iota
	StateRegistered
	StateConnect
	StateWrite
	StateRead
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateRegistered:
		return "REGISTERED"
	case StateConnect:
		return "CONNECT"
	case StateWrite:
		return "WRITE"
	case StateRead:
		return "READ"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// ListenerKind is the closed set of completion shapes a Command can
// deliver through, per spec.md's Design Notes preference for a tagged sum
// over an open listener interface hierarchy.
type ListenerKind uint8

const (
	KindWriteAck ListenerKind = iota
	KindRecord
	KindValue
	KindGroupMember
)

// Record is the decoded single-key read result. Field/bin decoding is out
// of scope for this core (spec.md §1); Parser implementations populate
// this from the wire bytes however their protocol defines.
type Record struct {
	Generation uint32
	Bins       map[string]interface{}
}

// WriteAckFunc is the listener signature for KindWriteAck commands.
type WriteAckFunc func(err error, udata interface{}, loop *libevt.Loop)

// RecordFunc is the listener signature for KindRecord commands.
type RecordFunc func(err error, record *Record, udata interface{}, loop *libevt.Loop)

// ValueFunc is the listener signature for KindValue commands.
type ValueFunc func(err error, value interface{}, udata interface{}, loop *libevt.Loop)

// GroupMemberFunc is the listener signature for KindGroupMember
// sub-commands belonging to an executor.Group.
type GroupMemberFunc func(err error, udata interface{}, loop *libevt.Loop)

// Parser is the external collaborator that decides, from the bytes read
// for a command so far, whether a full response is present and what it
// contains. Wire (de)serialization itself is out of scope for this core
// (spec.md §1 Out of scope); Parser is the seam a real client plugs its
// protocol decoder into.
type Parser interface {
	// Parse inspects buf (every byte read for this command so far from
	// the start of the read region). complete reports whether a full
	// response is present; when false, the caller issues another read and
	// calls Parse again once more bytes arrive. When complete, code is
	// the server's result code (already folded via errs.FoldServerCode
	// if the wire format gives a raw signed code), and record/value are
	// populated according to kind.
	Parse(kind ListenerKind, buf []byte) (complete bool, code uint16, record *Record, value interface{}, err error)
}
