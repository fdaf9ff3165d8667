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

// Package client glues the engine's pieces (event-loop registry, cluster,
// connection pools, command construction) behind one constructor, so a
// caller never has to wire eventloop/cluster/connpool/command by hand.
package client

import (
	"context"
	"fmt"
	"io"

	libclu "github.com/nabbar/asynckv/cluster"
	libcmd "github.com/nabbar/asynckv/command"
	libcfg "github.com/nabbar/asynckv/config"
	libpool "github.com/nabbar/asynckv/connpool"
	corlog "github.com/nabbar/asynckv/corelog"
	libevt "github.com/nabbar/asynckv/eventloop"
	libexe "github.com/nabbar/asynckv/executor"
	librtr "github.com/nabbar/asynckv/reactor"
	"github.com/nabbar/asynckv/reactor/loopsim"
)

// Client is the engine's top-level handle: one event-loop registry, one
// cluster (pending-counters plus node/partition registry), and the
// connection-pool reaper shared by every node it creates.
type Client struct {
	cfg    libcfg.Config
	log    corlog.Logger
	parser libcmd.Parser

	registry *libevt.Registry
	cluster  *libclu.Cluster
	reaper   *libpool.Reaper
}

// New builds a Client around cfg. If rtr is non-nil it is registered as a
// single already-running external loop (the caller keeps driving it and
// owns its teardown); otherwise New spins up cfg.LoopCount internal loops,
// each backed by its own reactor/loopsim.Loop sized to cfg.LoopQueueDepth,
// and the registry takes ownership of joining them at Close.
//
// parser decodes wire replies for every command this Client builds; it is
// supplied once here rather than per-command since a single Client talks
// one protocol.
func New(ctx context.Context, cfg libcfg.Config, rtr librtr.Reactor, parser libcmd.Parser, log corlog.Logger) (*Client, error) {
	cfg.Normalize()

	if log == nil {
		log = corlog.Discard
	}

	reg := libevt.NewRegistry(log)

	if rtr != nil {
		if _, err := reg.RegisterExternalLoop(rtr); err != nil {
			return nil, err
		}
	} else {
		factory := func(index uint32) (librtr.Reactor, io.Closer) {
			l := loopsim.New(cfg.LoopQueueDepth)
			return l, l
		}
		if err := reg.CreateInternalLoops(cfg.LoopCount, factory); err != nil {
			return nil, err
		}
	}

	cl := libclu.New(ctx, log, reg.Len(), nil)

	reap := libpool.NewReaper(log, cfg.MaxSocketIdle)
	reap.Start(cfg.IdleReapInterval)

	c := &Client{
		cfg:      cfg,
		log:      log,
		parser:   parser,
		registry: reg,
		cluster:  cl,
		reaper:   reap,
	}

	log.Info("client started", corlog.Fields{"loops": reg.Len()})
	return c, nil
}

// AddNode registers a cluster member, allocating it one connection pool per
// event loop, and binds it as the sole resolution target for every
// partition (full partition-map computation is out of scope; see
// cluster.PartitionMap). Calling AddNode again replaces the resolution
// target; multi-node partition ownership is left to a caller-supplied
// cluster.PartitionMap via a future constructor option.
func (c *Client) AddNode(name string) *libclu.Node {
	n := libclu.NewNode(name, c.registry.Len(), c.cfg.PoolOpenLimit, c.cfg.PoolIdleCapacity)
	c.cluster.AddNode(n)
	c.cluster.SetPartitions(libclu.NewStaticMap(n))

	for i := 0; i < c.registry.Len(); i++ {
		c.reaper.Watch(n.Pool(uint32(i)))
	}

	c.log.Info("node added", corlog.Fields{"node": name})
	return n
}

// NewCommand builds a command bound to this Client's cluster and parser,
// assigned to the next loop in round-robin order, applying cfg's defaults
// for any zero-valued timeout/retry field in opts.
func (c *Client) NewCommand(opts libcmd.Options) (*libcmd.Command, error) {
	loop, ok := c.registry.Next()
	if !ok {
		return nil, fmt.Errorf("asynckv/client: no event loop registered")
	}

	if opts.SocketTimeout <= 0 {
		opts.SocketTimeout = c.cfg.DefaultSocketTimeout
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = c.cfg.DefaultTotalTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = c.cfg.DefaultMaxRetries
	}
	if opts.RecursionThreshold <= 0 {
		opts.RecursionThreshold = c.cfg.RecursionGuardThreshold
	}
	if opts.Log == nil {
		opts.Log = c.log
	}

	return libcmd.NewCommand(c.cluster, loop, c.parser, opts), nil
}

// NewGroup builds an executor.Group coordinating cmds (every one already
// built via NewCommand with KindGroupMember), launching at most
// maxConcurrent at a time.
func (c *Client) NewGroup(ctx context.Context, cmds []*libcmd.Command, maxConcurrent int, completeFn func(*libexe.Group)) *libexe.Group {
	return libexe.NewGroup(ctx, cmds, maxConcurrent, completeFn)
}

// Close drains every in-flight command against this Client's cluster,
// stops the idle reaper, and joins the goroutines of every internally-
// created loop. onDestroy, if non-nil, runs exactly once, after the last
// loop has finalised. The reaper stop, the loop joins and onDestroy run on
// their own goroutine, since a loop cannot join itself, so Close may return
// before they are done.
func (c *Client) Close(ctx context.Context, onDestroy func()) {
	loops := make([]*libevt.Loop, 0, c.registry.Len())
	for i := 0; i < c.registry.Len(); i++ {
		if l, ok := c.registry.Find(uint32(i)); ok {
			loops = append(loops, l)
		}
	}

	c.cluster.Close(ctx, loops, func() {
		go func() {
			c.reaper.Stop()
			_ = c.registry.CloseAll(ctx)
			c.log.Info("client closed", corlog.Fields{})
			if onDestroy != nil {
				onDestroy()
			}
		}()
	})
}
