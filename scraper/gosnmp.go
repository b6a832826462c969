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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/gosnmp/gosnmp"
	"go.uber.org/atomic"
)

// GoSNMPSession sends requests with gosnmp. Requests run on a bounded
// goroutine pool; each target gets its own connection, so requests to one
// target are serialised while different targets proceed in parallel.
type GoSNMPSession struct {
	logger     *slog.Logger
	srcAddress string
	debug      bool
	pool       gopool.Pool
	clients    *clientCache
	nextID     atomic.Uint32

	mu        sync.RWMutex
	options   []func(*gosnmp.GoSNMP)
	listening bool
	closed    bool
}

func NewGoSNMPSession(logger *slog.Logger, srcAddress string, workers int32, debug bool) *GoSNMPSession {
	if workers < 1 {
		workers = 1
	}
	s := &GoSNMPSession{
		logger:     logger,
		srcAddress: srcAddress,
		debug:      debug,
		pool:       gopool.NewPool("snmp-session", workers, gopool.NewConfig()),
	}
	s.pool.SetPanicHandler(func(_ context.Context, r interface{}) {
		s.logger.Error("Panic while handling SNMP request", "panic", r)
	})
	s.clients = newClientCache(s.newClient)
	return s
}

// SetOptions registers functions applied to every connection created from
// now on, e.g. to hook metrics into OnSent and OnRecv.
func (s *GoSNMPSession) SetOptions(fns ...func(*gosnmp.GoSNMP)) {
	s.mu.Lock()
	s.options = append(s.options, fns...)
	s.mu.Unlock()
}

func (s *GoSNMPSession) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session already closed")
	}
	s.listening = true
	return nil
}

// Close stops accepting requests and closes all connections once their
// outstanding request is done.
func (s *GoSNMPSession) Close() error {
	s.mu.Lock()
	s.listening = false
	s.closed = true
	s.mu.Unlock()
	return s.clients.closeAll()
}

func (s *GoSNMPSession) Send(req BulkRequest, target *Target, cb Callback) {
	id := s.nextID.Inc()
	s.mu.RLock()
	listening := s.listening
	s.mu.RUnlock()
	if !listening {
		s.pool.Go(func() { cb(nil, ErrNotListening) })
		return
	}
	s.pool.Go(func() {
		packet, err := s.roundTrip(id, req, target)
		cb(packet, err)
	})
}

// Clients returns the number of targets with a cached connection.
func (s *GoSNMPSession) Clients() int {
	return s.clients.len()
}

// Release closes the connection of target. A request using it finishes
// first.
func (s *GoSNMPSession) Release(target *Target) {
	if err := s.clients.release(target); err != nil {
		s.logger.Debug("Error closing connection", "target", target.String(), "err", err)
	}
}

func (s *GoSNMPSession) roundTrip(id uint32, req BulkRequest, target *Target) (*gosnmp.SnmpPacket, error) {
	logger := s.logger.With("request_id", id, "target", target.String())
	c := s.clients.get(target)
	c.Lock()
	// Released between get and Lock, use a fresh client.
	for c.released {
		c.Unlock()
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			return nil, ErrNotListening
		}
		c = s.clients.get(target)
		c.Lock()
	}
	defer c.Unlock()

	st := time.Now()
	if err := c.connect(); err != nil {
		if err == context.Canceled {
			return nil, fmt.Errorf("%w: cancelled after %s connecting to target %s", ErrTimeout, time.Since(st), target)
		}
		return nil, fmt.Errorf("error connecting to target %s: %w", target, err)
	}
	logger.Debug("Sending bulk request", "oids", req.OIDs, "max_repetitions", req.MaxRepetitions)
	packet, err := c.g.GetBulk(req.OIDs, req.NonRepeaters, req.MaxRepetitions)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s requesting target %s: %v", ErrTimeout, time.Since(st), target, err)
		}
		// Reconnect on the next request, the connection may be broken.
		if cerr := c.close(); cerr != nil {
			logger.Debug("Error closing connection", "err", cerr)
		}
		return nil, fmt.Errorf("error requesting target %s: %w", target, err)
	}
	logger.Debug("Bulk request completed", "pdus", len(packet.Variables), "duration_seconds", time.Since(st).Seconds())
	return packet, nil
}

func (s *GoSNMPSession) newClient(t *Target) *gosnmp.GoSNMP {
	g := &gosnmp.GoSNMP{
		LocalAddr: s.srcAddress,
		Context:   context.Background(),
	}
	t.configureSNMP(g)
	if s.debug {
		g.Logger = gosnmp.NewLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))
	}
	s.mu.RLock()
	for _, fn := range s.options {
		fn(g)
	}
	s.mu.RUnlock()
	return g
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	// gosnmp reports exhausted retries as a plain "request timeout" error.
	return strings.Contains(err.Error(), "timeout")
}
