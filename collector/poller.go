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

package collector

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/prometheus/iftable_collector/bus"
	"github.com/prometheus/iftable_collector/config"
	"github.com/prometheus/iftable_collector/scraper"
)

// JoinStatus is the result of joining a topic.
type JoinStatus int

const (
	// Up means the topic was newly joined.
	Up JoinStatus = iota
	// Down means the topic was already joined.
	Down
)

func (s JoinStatus) String() string {
	if s == Up {
		return "up"
	}
	return "down"
}

func (s JoinStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeviceStatus is a point in time view of a poller.
type DeviceStatus struct {
	ID            string    `json:"id"`
	Address       string    `json:"address"`
	Target        string    `json:"target"`
	PollInterval  string    `json:"poll_interval"`
	Topics        []string  `json:"topics"`
	Busy          bool      `json:"busy"`
	LastCycle     time.Time `json:"last_cycle,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	RowsPublished uint64    `json:"rows_published"`
}

type pollerTable struct {
	table  *config.Table
	mapper *RowMapper
}

// DevicePoller polls the tables of one device and publishes every row as
// an event on the device topic.
type DevicePoller struct {
	device    config.Device
	target    *scraper.Target
	tables    []pollerTable
	walker    *TableWalker
	publisher bus.Publisher
	logger    *slog.Logger
	metrics   Metrics
	clock     clock.Clock

	busy          atomic.Bool
	rowsPublished atomic.Uint64
	releaseOnce   sync.Once

	mu        sync.Mutex
	topics    map[string]struct{}
	closed    bool
	lastCycle time.Time
	lastErr   error
}

func NewDevicePoller(device config.Device, target *scraper.Target, tables []*config.Table, walker *TableWalker, publisher bus.Publisher, logger *slog.Logger, metrics Metrics, clk clock.Clock) *DevicePoller {
	p := &DevicePoller{
		device:    device,
		target:    target,
		walker:    walker,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		clock:     clk,
		topics:    map[string]struct{}{},
	}
	for _, t := range tables {
		p.tables = append(p.tables, pollerTable{table: t, mapper: NewRowMapper(t)})
	}
	return p
}

// Topic is the topic rows of this device are published under.
func (p *DevicePoller) Topic() string {
	return p.device.Address
}

// Execute starts a poll cycle and returns without waiting for it. Errors
// are logged, never returned. A cycle is skipped while the previous one is
// still running.
func (p *DevicePoller) Execute() {
	if p.isClosed() {
		return
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug("Previous poll cycle still running, skipping")
		p.metrics.SkippedCycles.Inc()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic while starting poll cycle", "panic", r)
			p.metrics.DevicePanics.Inc()
			p.addErr(fmt.Errorf("panic starting poll cycle: %v", r))
			p.endCycle()
		}
	}()
	p.setErr(nil)
	p.logger.Debug("Starting poll cycle", "tables", len(p.tables))
	p.walkTable(0, p.clock.Now())
}

// endCycle marks the cycle as done. The connection of a closed poller is
// released once its last walk has finished.
func (p *DevicePoller) endCycle() {
	p.busy.Store(false)
	if p.isClosed() {
		p.release()
	}
}

func (p *DevicePoller) release() {
	p.releaseOnce.Do(func() {
		p.walker.Release(p.target)
		p.logger.Debug("Released connection", "target", p.target.String())
	})
}

func (p *DevicePoller) walkTable(i int, start time.Time) {
	if i >= len(p.tables) {
		p.mu.Lock()
		p.lastCycle = start
		p.mu.Unlock()
		p.logger.Debug("Poll cycle completed", "duration_seconds", p.clock.Since(start).Seconds())
		p.endCycle()
		return
	}
	if p.isClosed() {
		p.endCycle()
		return
	}
	t := p.tables[i]
	p.walker.Walk(p.target, t.table.Oid, func(res WalkResult) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic while handling table walk", "table", t.table.Name, "panic", r)
				p.metrics.DevicePanics.Inc()
				p.addErr(fmt.Errorf("panic handling table %s: %v", t.table.Name, r))
				p.endCycle()
			}
		}()
		p.handleTable(t, res)
		p.walkTable(i+1, start)
	})
}

func (p *DevicePoller) handleTable(t pollerTable, res WalkResult) {
	if res.Err != nil {
		p.logger.Warn("Error walking table, skipping publish for this cycle", "table", t.table.Name, "err", res.Err)
		p.addErr(res.Err)
		return
	}
	rows := t.mapper.Map(res.PDUs, p.logger, p.metrics)
	indices := make([]int, 0, len(rows))
	for index := range rows {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	now := p.clock.Now()
	published := 0
	for _, index := range indices {
		if p.isClosed() {
			p.logger.Debug("Poller closed, dropping remaining rows", "table", t.table.Name)
			return
		}
		e := bus.Event{
			Source:  p.device.Address,
			Device:  p.device.ID,
			Table:   t.table.Name,
			Index:   index,
			Time:    now,
			Message: p.message(t.table, rows[index]),
		}
		if err := p.publisher.Publish(p.Topic(), e); err != nil {
			p.logger.Error("Error publishing row", "table", t.table.Name, "index", index, "err", err)
			p.metrics.PublishErrors.Inc()
			continue
		}
		published++
		p.metrics.RowsPublished.Inc()
		p.rowsPublished.Inc()
	}
	p.logger.Debug("Published table", "table", t.table.Name, "rows", len(rows), "published", published)
}

// message orders the row by column, with the device address last.
func (p *DevicePoller) message(table *config.Table, row Row) bus.Message {
	m := make(bus.Message, 0, len(row)+1)
	for _, c := range table.Columns {
		if v, ok := row[c.Name]; ok {
			m = append(m, bus.Field{Key: c.Name, Value: v})
		}
	}
	return append(m, bus.Field{Key: "source", Value: p.device.Address})
}

func (p *DevicePoller) setErr(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

// addErr records an error of the current cycle.
func (p *DevicePoller) addErr(err error) {
	p.mu.Lock()
	p.lastErr = multierr.Append(p.lastErr, err)
	p.mu.Unlock()
}

func (p *DevicePoller) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Join subscribes topicID to the events of this device.
func (p *DevicePoller) Join(topicID string) JoinStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.topics[topicID]; ok {
		return Down
	}
	p.topics[topicID] = struct{}{}
	p.logger.Info("Joined topic", "topic", topicID)
	return Up
}

func (p *DevicePoller) Leave(topicID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.topics[topicID]; !ok {
		p.logger.Warn("Leaving topic that was not joined", "topic", topicID)
		return
	}
	delete(p.topics, topicID)
	p.logger.Info("Left topic", "topic", topicID)
}

// Close releases all subscriptions. Nothing is published afterwards, a
// walk still running completes without publishing and the device
// connection is released after it.
func (p *DevicePoller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.topics = map[string]struct{}{}
	p.mu.Unlock()
	p.logger.Debug("Poller closed")
	if !p.busy.Load() {
		p.release()
	}
}

func (p *DevicePoller) Status() DeviceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := DeviceStatus{
		ID:            p.device.ID,
		Address:       p.device.Address,
		Target:        p.target.String(),
		PollInterval:  p.device.PollInterval.String(),
		Topics:        make([]string, 0, len(p.topics)),
		Busy:          p.busy.Load(),
		LastCycle:     p.lastCycle,
		RowsPublished: p.rowsPublished.Load(),
	}
	for topic := range p.topics {
		s.Topics = append(s.Topics, topic)
	}
	sort.Strings(s.Topics)
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}
