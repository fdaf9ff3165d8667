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

package eventloop

import "context"

// loopTokenKey is the context key Loop.Post stamps onto every task's
// context. Go has no portable way to ask "is the current
// goroutine the one that owns loop L" (unlike pthread_equal in the original
// C client), so ownership is instead proven by provenance: a context value
// set exactly once, at the point Post wraps a task with its execution context.
type loopTokenKey struct{}

func withToken(ctx context.Context, l *Loop) context.Context {
	return context.WithValue(ctx, loopTokenKey{}, l)
}

// InLoop reports whether ctx carries the token stamped by l's own Post.
// Code holding such a ctx may touch l's loop-affine state
// (cluster.pending[l.Index()], direct connpool push/pop) without further
// synchronization, exactly as code running on the owning OS thread could
// in the original implementation.
func InLoop(ctx context.Context, l *Loop) bool {
	v, _ := ctx.Value(loopTokenKey{}).(*Loop)
	return v != nil && v == l
}

// AnyLoop reports whether ctx carries a token from any loop at all,
// regardless of which one. cluster.Close uses this to decide whether the
// calling goroutine is already executing on some loop's dispatch frame —
// if so, it must not block waiting for that same cluster's shutdown to
// finish, since one of the loops it is waiting on may be the very one it
// is running on (self-deadlock).
func AnyLoop(ctx context.Context) bool {
	return ctx.Value(loopTokenKey{}) != nil
}
