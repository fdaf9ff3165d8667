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
	liberr "github.com/nabbar/asynckv/errors"
)

const (
	codeBase       = liberr.CodeError(liberr.MinPkgCommand)
	codeNoNode     = liberr.CodeError(liberr.MinPkgCommand + 1)
	codeQueueFull  = liberr.CodeError(liberr.MinPkgCommand + 2)
)

func init() {
	liberr.RegisterIdFctMessage(codeBase, func(code liberr.CodeError) string {
		switch code {
		case codeNoNode:
			return "command has neither a partition key nor a bound node"
		case codeQueueFull:
			return "failed to queue command: loop is closed"
		}
		return liberr.UnknownMessage
	})
}

// ErrNoNode is surfaced when a command carries no partition id and no
// pre-bound node, so node selection has nothing to consult.
const ErrNoNode = codeNoNode

// ErrQueueFull is the Internal-category error (spec.md §7) surfaced
// synchronously from Execute when posting to the assigned loop fails
// because that loop has already been closed.
const ErrQueueFull = codeQueueFull
