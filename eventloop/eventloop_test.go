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

package eventloop_test

import (
	"context"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libevt "github.com/nabbar/asynckv/eventloop"
	librtr "github.com/nabbar/asynckv/reactor"
	"github.com/nabbar/asynckv/reactor/loopsim"
)

func loopsimFactory(index uint32) (librtr.Reactor, io.Closer) {
	l := loopsim.New(16)
	return l, l
}

var _ = Describe("Registry", func() {
	It("rejects zero capacity", func() {
		reg := libevt.NewRegistry(nil)
		Expect(reg.CreateInternalLoops(0, loopsimFactory)).To(HaveOccurred())
	})

	It("creates internal loops and reports their length", func() {
		reg := libevt.NewRegistry(nil)
		Expect(reg.CreateInternalLoops(3, loopsimFactory)).To(Succeed())
		Expect(reg.Len()).To(Equal(3))
	})

	It("rejects a nil external reactor", func() {
		reg := libevt.NewRegistry(nil)
		_, err := reg.RegisterExternalLoop(nil)
		Expect(err).To(HaveOccurred())
	})

	It("registers an external loop without taking ownership of its teardown", func() {
		reg := libevt.NewRegistry(nil)
		l := loopsim.New(4)
		defer l.Close()

		loop, err := reg.RegisterExternalLoop(l)
		Expect(err).ToNot(HaveOccurred())
		Expect(loop.External()).To(BeTrue())
		Expect(reg.Len()).To(Equal(1))
	})

	It("round-robins Next across every registered loop", func() {
		reg := libevt.NewRegistry(nil)
		Expect(reg.CreateInternalLoops(3, loopsimFactory)).To(Succeed())
		defer reg.CloseAll(context.Background())

		seen := map[uint32]int{}
		for i := 0; i < 9; i++ {
			l, ok := reg.Next()
			Expect(ok).To(BeTrue())
			seen[l.Index()]++
		}
		Expect(seen).To(HaveLen(3))
		for _, c := range seen {
			Expect(c).To(Equal(3))
		}
	})

	It("reports false from Next on an empty registry", func() {
		reg := libevt.NewRegistry(nil)
		_, ok := reg.Next()
		Expect(ok).To(BeFalse())
	})

	It("finds a loop by index", func() {
		reg := libevt.NewRegistry(nil)
		Expect(reg.CreateInternalLoops(2, loopsimFactory)).To(Succeed())
		defer reg.CloseAll(context.Background())

		l, ok := reg.Find(1)
		Expect(ok).To(BeTrue())
		Expect(l.Index()).To(Equal(uint32(1)))

		_, ok = reg.Find(99)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Loop", func() {
	var reg *libevt.Registry
	var loop *libevt.Loop

	BeforeEach(func() {
		reg = libevt.NewRegistry(nil)
		Expect(reg.CreateInternalLoops(1, loopsimFactory)).To(Succeed())
		loop, _ = reg.Find(0)
	})

	AfterEach(func() {
		_ = reg.CloseAll(context.Background())
	})

	It("stamps a token that InLoop recognises only for its own loop", func() {
		done := make(chan bool, 1)
		Expect(loop.Post(context.Background(), func(ctx context.Context) {
			done <- libevt.InLoop(ctx, loop)
		})).To(BeTrue())
		Eventually(done).Should(Receive(BeTrue()))

		Expect(libevt.InLoop(context.Background(), loop)).To(BeFalse())
		Expect(libevt.AnyLoop(context.Background())).To(BeFalse())
	})

	It("reports AnyLoop true for a token from any loop", func() {
		done := make(chan bool, 1)
		Expect(loop.Post(context.Background(), func(ctx context.Context) {
			done <- libevt.AnyLoop(ctx)
		})).To(BeTrue())
		Eventually(done).Should(Receive(BeTrue()))
	})

	It("Dispatch runs inline when already on the loop below threshold", func() {
		ran := make(chan bool, 2)
		Expect(loop.Post(context.Background(), func(ctx context.Context) {
			ok := loop.Dispatch(ctx, 5, func(context.Context) { ran <- true })
			ran <- ok
		})).To(BeTrue())

		Eventually(ran).Should(Receive(BeTrue()))
		Eventually(ran).Should(Receive(BeTrue()))
	})

	It("Dispatch posts instead of running inline when off-loop", func() {
		ran := make(chan bool, 1)
		ok := loop.Dispatch(context.Background(), 5, func(context.Context) { ran <- true })
		Expect(ok).To(BeTrue())
		Eventually(ran).Should(Receive(BeTrue()))
	})

	It("tracks and resets the recursion-guard error counter", func() {
		Expect(loop.ErrorCount()).To(Equal(int32(0)))
		Expect(loop.IncError()).To(Equal(int32(1)))
		Expect(loop.IncError()).To(Equal(int32(2)))
		loop.ResetError()
		Expect(loop.ErrorCount()).To(Equal(int32(0)))
	})

	It("refuses to enqueue once closed", func() {
		Expect(reg.CloseAll(context.Background())).To(Succeed())
		ok := loop.Post(context.Background(), func(context.Context) {})
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Reactor surface via loopsim", func() {
	It("delivers connect, write and read callbacks on the loop goroutine", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			c, _ := ln.Accept()
			accepted <- c
		}()

		reg := libevt.NewRegistry(nil)
		Expect(reg.CreateInternalLoops(1, loopsimFactory)).To(Succeed())
		defer reg.CloseAll(context.Background())

		loop, _ := reg.Find(0)
		connected := make(chan net.Conn, 1)
		loop.Reactor().Connect("tcp", ln.Addr().String(), func(c net.Conn, err error) {
			Expect(err).ToNot(HaveOccurred())
			connected <- c
		})

		var cliConn net.Conn
		Eventually(connected, time.Second).Should(Receive(&cliConn))
		var srvConn net.Conn
		Eventually(accepted, time.Second).Should(Receive(&srvConn))
		defer cliConn.Close()
		defer srvConn.Close()
	})
})
