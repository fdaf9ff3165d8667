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
	liberr "github.com/nabbar/asynckv/errors"
)

const (
	codeBase    = liberr.CodeError(liberr.MinPkgCluster)
	codeEmpty   = liberr.CodeError(liberr.MinPkgCluster + 1)
	codeClosed  = liberr.CodeError(liberr.MinPkgCluster + 2)
)

func init() {
	liberr.RegisterIdFctMessage(codeBase, func(code liberr.CodeError) string {
		switch code {
		case codeEmpty:
			return "cluster is empty"
		case codeClosed:
			return "cluster has been closed"
		}
		return liberr.UnknownMessage
	})
}

// ErrEmpty is surfaced when partition resolution finds no owning node.
const ErrEmpty = codeEmpty

// ErrClosed is surfaced when a command is submitted against a loop already
// marked closed (pending[idx] == -1) for this cluster.
const ErrClosed = codeClosed
