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

package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"golang.org/x/sync/singleflight"

	libatm "github.com/nabbar/asynckv/atomic"
)

// Loader loads a Config from a file and keeps it current via viper's
// fsnotify-backed watch. Callers read the live value through Current and
// optionally register OnChange to react to a reload.
type Loader struct {
	v   *viper.Viper
	cur libatm.Value[Config]

	mu  sync.Mutex
	cbs []func(Config)

	// sf collapses the burst of fsnotify events a single save often
	// produces (write + chmod on most editors) into one actual reload.
	sf singleflight.Group
}

// NewLoader reads path (any format viper supports: yaml, json, toml, ...)
// into a Config, applying Normalize, and arms a watch so subsequent edits
// to path are picked up without restarting the process.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	l := &Loader{
		v:   v,
		cur: libatm.NewValue[Config](),
	}

	if err := l.reload(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(in fsnotify.Event) {
		_ = l.reload()
	})
	v.WatchConfig()

	return l, nil
}

// NewStatic wraps an already-built Config with no file or watch behind it,
// for callers (and tests) that configure the engine purely in code.
func NewStatic(c Config) *Loader {
	c.Normalize()

	l := &Loader{cur: libatm.NewValue[Config]()}
	l.cur.Store(c)

	return l
}

func (l *Loader) reload() error {
	_, err, _ := l.sf.Do("reload", func() (interface{}, error) {
		var c Config

		if err := l.v.Unmarshal(&c); err != nil {
			return nil, err
		}

		c.Normalize()
		l.cur.Store(c)

		l.mu.Lock()
		cbs := append([]func(Config){}, l.cbs...)
		l.mu.Unlock()

		for _, cb := range cbs {
			cb(c)
		}

		return c, nil
	})

	return err
}

// Current returns the most recently loaded Config.
func (l *Loader) Current() Config {
	return l.cur.Load()
}

// OnChange registers a callback fired, synchronously and on the watcher's
// own goroutine, every time the backing file reloads successfully.
func (l *Loader) OnChange(fn func(Config)) {
	l.mu.Lock()
	l.cbs = append(l.cbs, fn)
	l.mu.Unlock()
}
