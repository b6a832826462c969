// Copyright 2024 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scraper

import (
	"sync"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/multierr"
)

// client is one connection. Callers hold its lock for a whole round trip.
type client struct {
	sync.Mutex
	g         *gosnmp.GoSNMP
	connected bool
	// Set once the client is evicted from the cache.
	released bool
}

func (c *client) connect() error {
	if c.connected {
		return nil
	}
	if err := c.g.Connect(); err != nil {
		return err
	}
	c.connected = true
	return nil
}

func (c *client) close() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.g.Conn.Close()
}

// clientCache keeps one client per distinct target.
type clientCache struct {
	mu        sync.Mutex
	newClient func(*Target) *gosnmp.GoSNMP
	clients   map[string]*client
}

func newClientCache(newClient func(*Target) *gosnmp.GoSNMP) *clientCache {
	return &clientCache{
		newClient: newClient,
		clients:   make(map[string]*client),
	}
}

func (c *clientCache) get(t *Target) *client {
	key := t.key()
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl
	}
	cl := &client{g: c.newClient(t)}
	c.clients[key] = cl
	return cl
}

// release evicts the client of t and closes its connection once the
// request holding it, if any, is done.
func (c *clientCache) release(t *Target) error {
	key := t.key()
	c.mu.Lock()
	cl, ok := c.clients[key]
	delete(c.clients, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	cl.Lock()
	defer cl.Unlock()
	cl.released = true
	return cl.close()
}

func (c *clientCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

func (c *clientCache) closeAll() error {
	c.mu.Lock()
	clients := c.clients
	c.clients = make(map[string]*client)
	c.mu.Unlock()

	var err error
	for _, cl := range clients {
		cl.Lock()
		cl.released = true
		err = multierr.Append(err, cl.close())
		cl.Unlock()
	}
	return err
}
