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

// Package corelog is the structured logging surface for the command engine.
// It is a deliberately small cousin of a full logging framework: one level
// type, one fields type, and a logrus-backed implementation, used only at
// cold-path edges (loop lifecycle, pool open/close/reap, retries, shutdown
// progress) and never on the command hot path.
package corelog

import (
	"github.com/sirupsen/logrus"
)

// Level mirrors logrus' severity levels under a package-local name, so
// callers never need to import logrus directly to configure the engine.
type Level uint32

const (
	PanicLevel Level = Level(logrus.PanicLevel)
	FatalLevel Level = Level(logrus.FatalLevel)
	ErrorLevel Level = Level(logrus.ErrorLevel)
	WarnLevel  Level = Level(logrus.WarnLevel)
	InfoLevel  Level = Level(logrus.InfoLevel)
	DebugLevel Level = Level(logrus.DebugLevel)
)

// Fields is a bag of structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// Logger is the logging surface the engine's packages depend on. It is
// satisfied by the logrus-backed implementation New returns (see logger.go)
// and by any test double a caller
// wants to substitute.
type Logger interface {
	// SetLevel changes the minimal level of message that is emitted.
	SetLevel(lvl Level)
	// GetLevel returns the minimal level of message that is emitted.
	GetLevel() Level

	// WithFields returns a derived Logger that always carries field in
	// addition to whatever fields the caller attaches per-entry.
	WithFields(field Fields) Logger

	// Debug adds an entry at DebugLevel.
	Debug(message string, field Fields)
	// Info adds an entry at InfoLevel.
	Info(message string, field Fields)
	// Warning adds an entry at WarnLevel.
	Warning(message string, field Fields)
	// Error adds an entry at ErrorLevel.
	Error(message string, field Fields)
}
