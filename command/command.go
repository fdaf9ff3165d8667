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

// Package command is the per-request state machine (C4): submission with
// a recursion guard, node selection against a cluster's partition map,
// connection acquisition from the node's pool, write/read dispatch through
// a reactor, and an at-most-once completion funnel that always frees the
// command's node reference and timer before invoking exactly one listener
// callback.
package command

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/go-uuid"

	libclu "github.com/nabbar/asynckv/cluster"
	corlog "github.com/nabbar/asynckv/corelog"
	libpool "github.com/nabbar/asynckv/connpool"
	liberr "github.com/nabbar/asynckv/errors"
	libevt "github.com/nabbar/asynckv/eventloop"
	libtmr "github.com/nabbar/asynckv/timer"
)

// Command is one in-flight request bound to a cluster, a loop, and (once
// resolved) a node and connection. A Command is touched only from its
// assigned loop's own goroutine once it leaves StateUnregistered — see
// eventloop.InLoop.
type Command struct {
	clusterRef *libclu.Cluster
	loop       *libevt.Loop

	partitionID []byte // nil: no partition, node must already be bound
	node        *libclu.Node
	began       bool // true once Cluster.Begin succeeded, for matching End

	flags Flags
	state State

	conn *libpool.Connection

	buf      []byte
	writeLen int
	writeOff int
	readLen  int

	socketTimeout time.Duration
	totalTimeout  time.Duration // relative; converted to totalDeadline at enqueue/start
	totalDeadline time.Time
	timerMgr      *libtmr.Manager

	iteration           int
	maxRetries          int
	recursionThreshold  int

	parser Parser
	log    corlog.Logger

	// traceID identifies this command in log output across its retries;
	// purely diagnostic, never consulted for correctness.
	traceID string

	kind     ListenerKind
	writeAck WriteAckFunc
	recordFn RecordFunc
	valueFn  ValueFunc
	groupFn  GroupMemberFunc
	udata    interface{}
}

// Options bundles everything NewCommand needs beyond the fixed wiring
// (cluster, loop, parser) that the owning client supplies once for every
// command it creates.
type Options struct {
	PartitionID []byte // nil if Node is pre-bound instead

	// Node pre-binds the target node instead of letting NewCommand resolve
	// one from PartitionID later. Supplying it transfers one reference: the
	// caller must have it already AddRef'd (or fresh off Resolve), and must
	// not Release it itself — NewCommand takes the count and deliver releases
	// it exactly once when the command finishes.
	Node   *libclu.Node
	Master bool
	Read   bool

	WriteBuf     []byte
	ReadCapacity int

	SocketTimeout time.Duration
	TotalTimeout  time.Duration
	MaxRetries    int

	RecursionThreshold int
	Log                corlog.Logger

	Kind     ListenerKind
	WriteAck WriteAckFunc
	RecordFn RecordFunc
	ValueFn  ValueFunc
	GroupFn  GroupMemberFunc
	UData    interface{}
}

// NewCommand builds a command ready for Execute. The write region of the
// internal buffer is copied from opts.WriteBuf; the read region follows it
// in the same allocation, sized opts.ReadCapacity, mirroring spec.md §4.2's
// "read region follows write region inside one allocation".
func NewCommand(clusterRef *libclu.Cluster, loop *libevt.Loop, parser Parser, opts Options) *Command {
	writeLen := len(opts.WriteBuf)
	buf := make([]byte, writeLen+opts.ReadCapacity)
	copy(buf, opts.WriteBuf)

	log := opts.Log
	if log == nil {
		log = corlog.Discard
	}

	traceID, _ := uuid.GenerateUUID()

	c := &Command{
		clusterRef:         clusterRef,
		loop:               loop,
		partitionID:        opts.PartitionID,
		node:               opts.Node,
		buf:                buf,
		writeLen:           writeLen,
		socketTimeout:      opts.SocketTimeout,
		totalTimeout:       opts.TotalTimeout,
		maxRetries:         opts.MaxRetries,
		recursionThreshold: opts.RecursionThreshold,
		parser:             parser,
		log:                log,
		traceID:            traceID,
		kind:               opts.Kind,
		writeAck:           opts.WriteAck,
		recordFn:           opts.RecordFn,
		valueFn:            opts.ValueFn,
		groupFn:            opts.GroupFn,
		udata:              opts.UData,
	}

	if opts.Master {
		c.flags |= FlagMaster
	}
	if opts.Read {
		c.flags |= FlagRead
	}

	// A caller-supplied Options.Node transfers one reference to the command:
	// deliver releases it unconditionally once the command completes, so the
	// command must hold its own count from construction, matching the count
	// selectNodeAndConnect takes on the partition-resolved path.
	if c.node != nil {
		c.node.AddRef()
	}

	c.timerMgr = libtmr.NewManager(loop.Reactor(), c.eventReceivedAndClear, c.onSocketTimerFired, c.onTotalTimerFired)
	return c
}

// State reports the command's current lifecycle state, chiefly for tests.
func (c *Command) State() State { return c.state }

// Flags reports the command's current flag bitmask, chiefly for tests
// asserting retry-alternation behaviour (FlagMaster toggling).
func (c *Command) Flags() Flags { return c.flags }

// HasTimer and UsingSocketTimer expose the timer manager's state under the
// flag names spec.md's data model uses, without duplicating that state in
// Command itself.
func (c *Command) HasTimer() bool         { return c.timerMgr.HasTimer() }
func (c *Command) UsingSocketTimer() bool { return c.timerMgr.UsingSocketTimer() }

// TraceID returns the command's diagnostic identifier, stable across its
// retries.
func (c *Command) TraceID() string { return c.traceID }

// SetGroupListener binds fn as this command's KindGroupMember listener.
// executor.Group uses this to wire its own per-member completion routing
// onto commands it did not itself construct, after NewCommand but before
// Execute.
func (c *Command) SetGroupListener(fn GroupMemberFunc) {
	c.groupFn = fn
}

func (c *Command) isMaster() bool {
	if c.flags&FlagRead == 0 {
		// Writes always target the master replica.
		return true
	}
	return c.flags&FlagMaster != 0
}

// Execute submits the command: inline, if the caller is already running on
// the command's own loop and that loop's recursion-guard counter is below
// threshold (spec.md §4.4's "submission" rule); otherwise enqueued onto the
// loop's task queue, with any relative total timeout converted to an
// absolute deadline at this moment. Returns a non-nil error only for the
// synchronous Internal failure case: the loop could not be enqueued to
// because it is already closed. In every other case — including permanent
// failures discovered later, like CLUSTER_CLOSED or a deadline that has
// already passed by the time the command is dequeued — the outcome is
// reported exclusively through the command's listener.
func (c *Command) Execute(ctx context.Context) error {
	if libevt.InLoop(ctx, c.loop) && c.loop.ErrorCount() < int32(c.recursionThreshold) {
		c.startInLoop(ctx)
		return nil
	}

	if c.totalTimeout > 0 && c.totalDeadline.IsZero() {
		c.totalDeadline = time.Now().Add(c.totalTimeout)
	}
	c.state = StateRegistered

	deadline := c.totalDeadline
	ok := c.loop.Post(ctx, func(taskCtx context.Context) {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			c.deliver(liberr.CodeTimeout.Error(), nil, nil)
			return
		}
		c.startInLoop(taskCtx)
	})

	if !ok {
		c.state = StateComplete
		return ErrQueueFull.Error()
	}
	return nil
}

// startInLoop implements spec.md §4.4's "in-loop start": increment
// cluster.pending, fail fast if this loop already closed this cluster, arm
// the timer, then proceed to node selection.
func (c *Command) startInLoop(ctx context.Context) {
	if !c.clusterRef.Begin(c.loop.Index()) {
		c.deliver(libclu.ErrClosed.Error(), nil, nil)
		return
	}
	c.began = true
	c.state = StateConnect

	if c.totalTimeout > 0 && c.totalDeadline.IsZero() {
		c.totalDeadline = time.Now().Add(c.totalTimeout)
	}
	c.timerMgr.Start(c.socketTimeout, c.totalDeadline)
	c.selectNodeAndConnect()
}

func (c *Command) selectNodeAndConnect() {
	if c.node == nil {
		if c.partitionID == nil {
			c.deliver(ErrNoNode.Error(), nil, nil)
			return
		}
		node, ok := c.clusterRef.Resolve(c.partitionID, c.isMaster())
		if !ok {
			c.deliver(libclu.ErrEmpty.Error(), nil, nil)
			return
		}
		c.node = node
		c.node.AddRef()
	}

	c.acquireConnection()
}

// acquireConnection implements spec.md §4.4's connection-acquisition loop:
// try the node's idle pool first, validating each candidate non-
// destructively; fall back to opening a new connection if the pool is
// empty or every idle candidate fails validation; surface
// NO_MORE_CONNECTIONS (after a retry attempt) if the pool is already at its
// open-connection limit.
func (c *Command) acquireConnection() {
	pool := c.node.Pool(c.loop.Index())

	for {
		conn, ok := pool.TryGet()
		if !ok {
			break
		}
		if libpool.Validate(conn) {
			c.conn = conn
			c.loop.ResetError()
			c.startWrite()
			return
		}
		pool.Release(conn)
	}

	if !pool.IncOpen() {
		if !c.Retry(true) {
			c.deliver(libpool.LimitExceededCode.Error(), nil, nil)
		}
		return
	}

	nc := &libpool.Connection{}
	c.loop.Reactor().Connect("tcp", c.node.Name(), func(conn net.Conn, err error) {
		if err != nil {
			pool.DecOpen()
			if !c.Retry(true) {
				c.deliver(liberr.CodeAsyncConnection.Error(err), nil, nil)
			}
			return
		}
		nc.Conn = conn
		nc.Touch()
		c.conn = nc
		c.loop.ResetError()
		c.startWrite()
	})
}

func (c *Command) startWrite() {
	c.state = StateWrite
	c.writeOff = 0
	c.registerWrite()
}

func (c *Command) registerWrite() {
	c.loop.Reactor().RegisterWrite(c.conn.Conn, c.buf[c.writeOff:c.writeLen], c.onWriteDone)
}

func (c *Command) onWriteDone(n int, err error) {
	if err != nil {
		c.releaseFaultyConn()
		if !c.Retry(false) {
			c.deliver(liberr.CodeAsyncConnection.Error(err), nil, nil)
		}
		return
	}

	c.writeOff += n
	if c.writeOff < c.writeLen {
		c.registerWrite()
		return
	}
	c.startRead()
}

func (c *Command) startRead() {
	c.state = StateRead
	c.readLen = 0
	c.flags &^= FlagEventReceived

	c.timerMgr.Cancel()
	c.timerMgr.Start(c.socketTimeout, c.totalDeadline)

	c.registerRead()
}

func (c *Command) registerRead() {
	c.loop.Reactor().RegisterRead(c.conn.Conn, c.buf[c.writeLen+c.readLen:], c.onReadDone)
}

func (c *Command) onReadDone(n int, err error) {
	c.flags |= FlagEventReceived

	if err != nil {
		c.releaseFaultyConn()
		if !c.Retry(true) {
			c.deliver(liberr.CodeAsyncConnection.Error(err), nil, nil)
		}
		return
	}
	if n == 0 {
		c.releaseFaultyConn()
		if !c.Retry(true) {
			c.deliver(liberr.CodeAsyncConnection.Errorf(), nil, nil)
		}
		return
	}

	c.readLen += n

	complete, code, record, value, perr := c.parser.Parse(c.kind, c.buf[c.writeLen:c.writeLen+c.readLen])
	if perr != nil {
		c.releaseFaultyConn()
		c.deliver(liberr.CodeClient.Error(perr), nil, nil)
		return
	}
	if !complete {
		c.registerRead()
		return
	}

	c.timerMgr.Cancel()

	ce := liberr.CodeError(code)
	if ce == liberr.CodeOK {
		c.deliver(nil, record, value)
		return
	}
	c.deliver(ce.Error(), nil, nil)
}

// releaseFaultyConn unregisters and releases (never returns to the pool) a
// connection that just failed a write, a read, or a real socket timeout.
func (c *Command) releaseFaultyConn() {
	if c.conn == nil {
		return
	}
	c.loop.Reactor().Unregister(c.conn.Conn)
	c.node.Pool(c.loop.Index()).Release(c.conn)
	c.conn = nil
}

func (c *Command) eventReceivedAndClear() bool {
	had := c.flags&FlagEventReceived != 0
	c.flags &^= FlagEventReceived
	return had
}

// onSocketTimerFired is the timer.Manager callback for a genuine socket
// idle timeout (no event received since the socket timer was armed): the
// connection is presumed wedged, so it is released and the command
// retries, alternating the target replica only for read-type commands —
// writes always target the master and have no prole to alternate to.
func (c *Command) onSocketTimerFired() {
	c.releaseFaultyConn()
	if !c.Retry(c.flags&FlagRead != 0) {
		c.deliver(liberr.CodeTimeout.Error(), nil, nil)
	}
}

// onTotalTimerFired is always terminal: the total deadline has been
// reached, full stop, regardless of how close the in-flight attempt was to
// finishing.
func (c *Command) onTotalTimerFired() {
	c.releaseFaultyConn()
	c.deliver(liberr.CodeTimeout.Error(), nil, nil)
}

// Retry implements spec.md §4.5's retry policy: bump the iteration
// counter, fail if it now exceeds maxRetries or the total deadline has
// already passed, otherwise re-arm the timer (Manager.Start re-applies the
// same choice-at-start rule, which is exactly the retry transition rule:
// prefer the socket timer if it is still shorter than the remaining window
// to the deadline, fall back to the total timer otherwise), optionally
// toggle FlagMaster, and re-enqueue node selection to the tail of the
// loop's own queue. Returns false, performing none of this, when the retry
// budget or deadline is exhausted — the caller must then deliver a
// terminal error itself.
func (c *Command) Retry(alternate bool) bool {
	c.iteration++
	if c.iteration > c.maxRetries {
		return false
	}
	if !c.totalDeadline.IsZero() && !time.Now().Before(c.totalDeadline) {
		return false
	}

	c.timerMgr.Cancel()
	c.timerMgr.Start(c.socketTimeout, c.totalDeadline)

	if alternate {
		c.flags ^= FlagMaster
	}

	c.state = StateConnect
	if c.node != nil {
		// force re-resolution; a faulty node may no longer be the right
		// target. Release the count taken when c.node was bound, since
		// selectNodeAndConnect acquires a fresh one for whatever it resolves
		// (or re-resolves) to next.
		c.node.Release()
		c.node = nil
	}

	return c.loop.Post(context.Background(), func(context.Context) {
		c.selectNodeAndConnect()
	})
}

// deliver is the at-most-one-callback funnel (spec.md §4.6): idempotent
// against being called twice, it stops the timer, disposes of any
// connection (returning it to the pool unless its error code is in the
// must-close set), releases the cluster pending count and the node
// reference, invokes exactly one listener callback matching the command's
// ListenerKind, and frees the command's buffer.
func (c *Command) deliver(err liberr.Error, record *Record, value interface{}) {
	if c.state == StateComplete {
		return
	}
	c.state = StateComplete
	c.timerMgr.Cancel()

	if err != nil {
		c.loop.IncError()
		c.log.Warning("command failed", corlog.Fields{
			"trace":     c.traceID,
			"code":      err.GetCode().Uint16(),
			"iteration": c.iteration,
		})
	}

	if c.conn != nil {
		c.loop.Reactor().Unregister(c.conn.Conn)
		pool := c.node.Pool(c.loop.Index())
		mustClose := err != nil && liberr.MustCloseConnection(err.GetCode())
		if mustClose || !pool.Put(c.conn) {
			pool.Release(c.conn)
		}
		c.conn = nil
	}

	if c.began {
		c.clusterRef.End(c.loop.Index())
		c.began = false
	}
	if c.node != nil {
		c.node.Release()
		c.node = nil
	}

	var e error
	if err != nil {
		e = err
	}

	switch c.kind {
	case KindWriteAck:
		if c.writeAck != nil {
			c.writeAck(e, c.udata, c.loop)
		}
	case KindRecord:
		if c.recordFn != nil {
			c.recordFn(e, record, c.udata, c.loop)
		}
	case KindValue:
		if c.valueFn != nil {
			c.valueFn(e, value, c.udata, c.loop)
		}
	case KindGroupMember:
		if c.groupFn != nil {
			c.groupFn(e, c.udata, c.loop)
		}
	}

	c.buf = nil
}
