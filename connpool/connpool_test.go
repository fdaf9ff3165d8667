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

package connpool_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libpool "github.com/nabbar/asynckv/connpool"
)

func pipePair() (net.Conn, net.Conn) {
	c1, c2 := net.Pipe()
	return c1, c2
}

var _ = Describe("Pool", func() {
	It("pops idle connections LIFO", func() {
		p := libpool.NewPool(10, 10)

		a, _ := pipePair()
		b, _ := pipePair()
		defer a.Close()
		defer b.Close()

		ca := &libpool.Connection{Conn: a}
		cb := &libpool.Connection{Conn: b}

		Expect(p.Put(ca)).To(BeTrue())
		Expect(p.Put(cb)).To(BeTrue())

		got, ok := p.TryGet()
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(cb))

		got, ok = p.TryGet()
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(ca))

		_, ok = p.TryGet()
		Expect(ok).To(BeFalse())
	})

	It("refuses Put beyond idle capacity", func() {
		p := libpool.NewPool(10, 1)

		a, _ := pipePair()
		b, _ := pipePair()
		defer a.Close()
		defer b.Close()

		Expect(p.Put(&libpool.Connection{Conn: a})).To(BeTrue())
		Expect(p.Put(&libpool.Connection{Conn: b})).To(BeFalse())
	})

	It("enforces the open-connection limit via IncOpen/DecOpen", func() {
		p := libpool.NewPool(2, 10)

		Expect(p.IncOpen()).To(BeTrue())
		Expect(p.IncOpen()).To(BeTrue())
		Expect(p.IncOpen()).To(BeFalse())
		Expect(p.OpenCount()).To(Equal(int32(2)))

		p.DecOpen()
		Expect(p.OpenCount()).To(Equal(int32(1)))
		Expect(p.IncOpen()).To(BeTrue())
	})

	It("Release closes the connection and decrements open count", func() {
		p := libpool.NewPool(1, 10)
		Expect(p.IncOpen()).To(BeTrue())

		a, b := pipePair()
		defer b.Close()
		c := &libpool.Connection{Conn: a}

		p.Release(c)
		Expect(p.OpenCount()).To(Equal(int32(0)))

		// a closed pipe errors on further writes.
		_, err := a.Write([]byte("x"))
		Expect(err).To(HaveOccurred())
	})

	It("Release tolerates a nil connection", func() {
		p := libpool.NewPool(1, 10)
		Expect(func() { p.Release(nil) }).ToNot(Panic())
	})
})

var _ = Describe("Connection idle tracking", func() {
	It("Touch resets IdleFor to near zero", func() {
		a, b := pipePair()
		defer a.Close()
		defer b.Close()

		c := &libpool.Connection{Conn: a}
		c.Touch()
		time.Sleep(5 * time.Millisecond)
		Expect(c.IdleFor()).To(BeNumerically(">=", 5*time.Millisecond))

		c.Touch()
		Expect(c.IdleFor()).To(BeNumerically("<", 5*time.Millisecond))
	})
})

var _ = Describe("Validate", func() {
	It("accepts a connection with nothing pending to read", func() {
		a, b := pipePair()
		defer a.Close()
		defer b.Close()

		Expect(libpool.Validate(&libpool.Connection{Conn: a})).To(BeTrue())
	})

	It("rejects a connection with unread data buffered", func() {
		a, b := pipePair()
		defer a.Close()
		defer b.Close()

		done := make(chan struct{})
		go func() {
			_, _ = b.Write([]byte("x"))
			close(done)
		}()
		// net.Pipe is unbuffered: the write completes only once Validate reads.
		time.Sleep(10 * time.Millisecond)

		Expect(libpool.Validate(&libpool.Connection{Conn: a})).To(BeFalse())
		Eventually(done).Should(BeClosed())
	})

	It("rejects a nil connection", func() {
		Expect(libpool.Validate(nil)).To(BeFalse())
		Expect(libpool.Validate(&libpool.Connection{})).To(BeFalse())
	})
})

var _ = Describe("Reaper", func() {
	It("sweeps connections idle past maxIdle and leaves fresh ones", func() {
		reaper := libpool.NewReaper(nil, 20*time.Millisecond)
		p := libpool.NewPool(10, 10)
		reaper.Watch(p)

		stale, staleB := pipePair()
		defer staleB.Close()
		fresh, freshB := pipePair()
		defer fresh.Close()
		defer freshB.Close()

		Expect(p.IncOpen()).To(BeTrue())
		Expect(p.IncOpen()).To(BeTrue())

		staleConn := &libpool.Connection{Conn: stale}
		staleConn.Touch()
		Expect(p.Put(staleConn)).To(BeTrue())

		time.Sleep(30 * time.Millisecond)

		freshConn := &libpool.Connection{Conn: fresh}
		freshConn.Touch()
		Expect(p.Put(freshConn)).To(BeTrue())

		reaper.Start(10 * time.Millisecond)
		defer reaper.Stop()

		Eventually(func() int32 { return p.OpenCount() }, time.Second, 10*time.Millisecond).Should(Equal(int32(1)))

		_, ok := p.TryGet()
		Expect(ok).To(BeTrue())
	})
})
