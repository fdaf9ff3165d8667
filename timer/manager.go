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

// Package timer is the per-command timer manager (C3): at most one of a
// socket-idle timer or a total-deadline timer is ever armed for a command,
// with a well-defined transition rule between them. All scheduling goes
// through a reactor.Reactor, never a concrete timer library, so the same
// Manager logic runs identically against the reference reactor/loopsim
// implementation or a production one.
package timer

import (
	"time"

	librtr "github.com/nabbar/asynckv/reactor"
)

// Manager owns the at-most-one-armed-timer state for a single command.
// Not safe for concurrent use — like everything else in the command state
// machine, a Manager is touched only from its command's owning loop (see
// eventloop.InLoop).
type Manager struct {
	rtr librtr.Reactor

	socketTimeout time.Duration
	totalDeadline time.Time // zero value means "none"

	usingSocket bool
	handle      librtr.TimerHandle

	eventReceivedAndClear func() bool
	onSocketTimeout       func()
	onTotalTimeout        func()
}

// NewManager returns a Manager driven by r. eventReceivedAndClear must
// report (and clear) whether a read event arrived since the socket timer
// was last armed — the command sets this flag from its reactor read
// callback. onSocketTimeout fires when the socket timer expires with no
// event received (a genuine idle timeout: the caller should close the
// connection and retry). onTotalTimeout fires when the total deadline is
// reached; it is always terminal.
func NewManager(r librtr.Reactor, eventReceivedAndClear func() bool, onSocketTimeout, onTotalTimeout func()) *Manager {
	return &Manager{
		rtr:                   r,
		eventReceivedAndClear: eventReceivedAndClear,
		onSocketTimeout:       onSocketTimeout,
		onTotalTimeout:        onTotalTimeout,
	}
}

// UsingSocketTimer reports whether the currently-armed timer is the socket
// one (USING_SOCKET_TIMER in spec.md's flag vocabulary).
func (m *Manager) UsingSocketTimer() bool { return m.usingSocket }

// HasTimer reports whether any timer is currently armed (HAS_TIMER).
func (m *Manager) HasTimer() bool { return m.handle != nil }

// Start arms the appropriate timer per spec.md §4.3's choice-at-start
// rule: socket timer if both are set and the socket timeout is strictly
// shorter than the remaining time to the total deadline, total timer
// otherwise (when set), no timer at all if neither is set. socketTimeout
// of 0 means "none"; a zero totalDeadline means "none".
func (m *Manager) Start(socketTimeout time.Duration, totalDeadline time.Time) {
	m.socketTimeout = socketTimeout
	m.totalDeadline = totalDeadline
	m.arm()
}

func (m *Manager) arm() {
	hasTotal := !m.totalDeadline.IsZero()
	hasSocket := m.socketTimeout > 0

	switch {
	case hasTotal && hasSocket && m.socketTimeout < time.Until(m.totalDeadline):
		m.usingSocket = true
		m.handle = m.rtr.ArmTimer(m.socketTimeout, m.fireSocket)
	case hasTotal:
		m.usingSocket = false
		m.handle = m.rtr.ArmTimer(remaining(m.totalDeadline), m.fireTotal)
	case hasSocket:
		m.usingSocket = true
		m.handle = m.rtr.ArmTimer(m.socketTimeout, m.fireSocket)
	default:
		m.usingSocket = false
		m.handle = nil
	}
}

func remaining(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}

// fireSocket implements spec.md §4.3's socket-timer-fired path.
func (m *Manager) fireSocket() {
	if !m.eventReceivedAndClear() {
		// No event arrived since arming: a real socket timeout.
		m.handle = nil
		m.onSocketTimeout()
		return
	}

	hasTotal := !m.totalDeadline.IsZero()

	switch {
	case hasTotal && !time.Now().Before(m.totalDeadline):
		m.usingSocket = false
		m.handle = nil
		m.onTotalTimeout()
	case hasTotal && time.Until(m.totalDeadline) <= m.socketTimeout:
		m.usingSocket = false
		m.handle = m.rtr.ArmTimer(remaining(m.totalDeadline), m.fireTotal)
	default:
		m.handle = m.rtr.ArmTimer(m.socketTimeout, m.fireSocket)
	}
}

func (m *Manager) fireTotal() {
	m.handle = nil
	m.onTotalTimeout()
}

// Cancel stops whatever timer is currently armed. A no-op if none is.
func (m *Manager) Cancel() {
	if m.handle != nil {
		m.handle.Stop()
		m.handle = nil
	}
}
