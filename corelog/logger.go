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

package corelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// entry is the logrus-backed Logger implementation.
type entry struct {
	log *logrus.Logger
	fld Fields
}

// New returns a Logger writing JSON-less text entries to stderr at InfoLevel,
// matching logrus' own defaults.
func New() Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetLevel(logrus.InfoLevel)

	return &entry{log: l, fld: make(Fields)}
}

// NewWithLogrus wraps an already-configured *logrus.Logger, letting a host
// application share its own logrus instance with the engine instead of
// getting a second, independently-configured one.
func NewWithLogrus(l *logrus.Logger) Logger {
	if l == nil {
		return New()
	}
	return &entry{log: l, fld: make(Fields)}
}

func (e *entry) SetLevel(lvl Level) {
	e.log.SetLevel(logrus.Level(lvl))
}

func (e *entry) GetLevel() Level {
	return Level(e.log.GetLevel())
}

func (e *entry) WithFields(field Fields) Logger {
	merged := make(Fields, len(e.fld)+len(field))
	for k, v := range e.fld {
		merged[k] = v
	}
	for k, v := range field {
		merged[k] = v
	}
	return &entry{log: e.log, fld: merged}
}

func (e *entry) fields(field Fields) logrus.Fields {
	f := make(logrus.Fields, len(e.fld)+len(field))
	for k, v := range e.fld {
		f[k] = v
	}
	for k, v := range field {
		f[k] = v
	}
	return f
}

func (e *entry) Debug(message string, field Fields) {
	e.log.WithFields(e.fields(field)).Debug(message)
}

func (e *entry) Info(message string, field Fields) {
	e.log.WithFields(e.fields(field)).Info(message)
}

func (e *entry) Warning(message string, field Fields) {
	e.log.WithFields(e.fields(field)).Warn(message)
}

func (e *entry) Error(message string, field Fields) {
	e.log.WithFields(e.fields(field)).Error(message)
}

// Discard is a Logger that drops every entry, used as the default when a
// caller does not supply one (see client.New).
var Discard Logger = discard{}

type discard struct{}

func (discard) SetLevel(Level)            {}
func (discard) GetLevel() Level           { return InfoLevel }
func (discard) WithFields(Fields) Logger  { return discard{} }
func (discard) Debug(string, Fields)      {}
func (discard) Info(string, Fields)       {}
func (discard) Warning(string, Fields)    {}
func (discard) Error(string, Fields)      {}
