/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

package errors

// Stable error identifiers surfaced to user listeners. These are the only
// codes the core itself produces; FoldServerCode folds every non-zero raw
// server result code into CodeClient (negative) or CodeServer (positive).
const (
	CodeOK                CodeError = 0
	CodeTimeout           CodeError = MinAvailable + 1
	CodeNoMoreConnections CodeError = MinAvailable + 2
	CodeAsyncConnection   CodeError = MinAvailable + 3
	CodeTLSError          CodeError = MinAvailable + 4
	CodeClientAbort       CodeError = MinAvailable + 5
	CodeClient            CodeError = MinAvailable + 6
	CodeServer            CodeError = MinAvailable + 7
	CodeCluster           CodeError = MinAvailable + 8
	CodeQueryAborted      CodeError = MinAvailable + 9
	CodeScanAborted       CodeError = MinAvailable + 10
	CodeNotAuthenticated  CodeError = MinAvailable + 11
	CodeUDF               CodeError = MinAvailable + 12
)

func init() {
	RegisterIdFctMessage(CodeTimeout, func(code CodeError) string {
		switch code {
		case CodeTimeout:
			return "timeout"
		case CodeNoMoreConnections:
			return "max node/event loop async connections would be exceeded"
		case CodeAsyncConnection:
			return "async connection error"
		case CodeTLSError:
			return "tls error"
		case CodeClientAbort:
			return "client abort"
		case CodeClient:
			return "client error"
		case CodeServer:
			return "server error"
		case CodeCluster:
			return "cluster error"
		case CodeQueryAborted:
			return "query aborted"
		case CodeScanAborted:
			return "scan aborted"
		case CodeNotAuthenticated:
			return "not authenticated"
		case CodeUDF:
			return "udf error"
		}
		return UnknownMessage
	})
}

// FoldServerCode maps a raw, server-provided result code onto one of the
// core's stable codes: zero is CodeOK, every negative code is a client
// fault (CodeClient) and every positive code a server fault (CodeServer).
// No raw code is mapped to a more specific stable code such as
// CodeQueryAborted or CodeUDF. This
// mirrors how the wire protocol distinguishes driver-local failures (which
// it encodes as negative) from node-reported failures (positive).
func FoldServerCode(raw int32) CodeError {
	switch {
	case raw == 0:
		return CodeOK
	case raw < 0:
		return CodeClient
	default:
		return CodeServer
	}
}

// closingSet is the set of result codes for which a response may have left
// unread bytes on the socket; connections seeing one of these codes must be
// released rather than returned to the pool.
var closingSet = map[CodeError]bool{
	CodeQueryAborted:     true,
	CodeScanAborted:      true,
	CodeAsyncConnection:  true,
	CodeTLSError:         true,
	CodeClientAbort:      true,
	CodeClient:           true,
	CodeNotAuthenticated: true,
}

// MustCloseConnection reports whether a response carrying this code may
// have left unread data on the wire, in which case the connection must be
// released instead of returned to its pool.
func MustCloseConnection(code CodeError) bool {
	return closingSet[code]
}
