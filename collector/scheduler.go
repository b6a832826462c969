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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"github.com/prometheus/iftable_collector/bus"
	"github.com/prometheus/iftable_collector/config"
	"github.com/prometheus/iftable_collector/scraper"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for event timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

type scheduled struct {
	poller *DevicePoller
	// Poll every this many ticks.
	every     int
	countdown int
}

// Scheduler polls all registered devices on a shared timer.
type Scheduler struct {
	cfg       *config.Config
	walker    *TableWalker
	publisher bus.Publisher
	logger    *slog.Logger
	metrics   Metrics
	clock     clock.Clock

	mu      sync.RWMutex
	devices map[string]*scheduled
	cron    *cron.Cron
}

func NewScheduler(cfg *config.Config, session scraper.Session, publisher bus.Publisher, logger *slog.Logger, metrics Metrics, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		walker:    NewTableWalker(session, cfg.WalkParams.MaxRepetitions, logger, metrics),
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		clock:     clock.New(),
		devices:   map[string]*scheduled{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ticksPerPoll is how many timer periods make up one poll interval.
func ticksPerPoll(pollInterval, period time.Duration) int {
	if pollInterval <= period || period <= 0 {
		return 1
	}
	n := int(pollInterval / period)
	if pollInterval%period != 0 {
		n++
	}
	return n
}

// Register starts polling a device. A device registered under the same id
// before is replaced, and its subscriptions are released.
func (s *Scheduler) Register(id, address string, community config.Secret, port int, pollInterval time.Duration) error {
	target, err := scraper.NewTarget(address, port, community, s.cfg.WalkParams)
	if err != nil {
		return fmt.Errorf("error registering device %s: %w", id, err)
	}
	device := config.Device{
		ID:           id,
		Address:      address,
		Port:         port,
		Community:    community,
		PollInterval: pollInterval,
	}
	logger := s.logger.With("device", id, "address", address)
	p := NewDevicePoller(device, target, s.cfg.Tables, s.walker, s.publisher, logger, s.metrics, s.clock)

	s.mu.Lock()
	old, ok := s.devices[id]
	s.devices[id] = &scheduled{
		poller: p,
		every:  ticksPerPoll(pollInterval, s.cfg.Scheduler.Interval),
	}
	s.metrics.RegisteredDevices.Set(float64(len(s.devices)))
	s.mu.Unlock()

	if ok {
		logger.Warn("Device already registered, replacing it", "previous_address", old.poller.device.Address)
		old.poller.Close()
	}
	logger.Info("Registered device", "target", target.String(), "poll_interval", pollInterval)
	return nil
}

// Deregister stops polling a device. Unknown ids are ignored.
func (s *Scheduler) Deregister(id string) {
	s.mu.Lock()
	d, ok := s.devices[id]
	delete(s.devices, id)
	s.metrics.RegisteredDevices.Set(float64(len(s.devices)))
	s.mu.Unlock()
	if !ok {
		return
	}
	d.poller.Close()
	s.logger.Info("Deregistered device", "device", id)
}

// OnDeviceAdded registers a device announced by the inventory. Devices
// without community or poll interval are not polled.
func (s *Scheduler) OnDeviceAdded(d config.Device) {
	if d.Community == "" || d.PollInterval <= 0 {
		s.logger.Warn("Ignoring device without community or poll interval", "device", d.ID, "address", d.Address)
		return
	}
	if err := s.Register(d.ID, d.Address, d.Community, d.Port, d.PollInterval); err != nil {
		s.logger.Error("Error adding device", "device", d.ID, "err", err)
	}
}

func (s *Scheduler) OnDeviceRemoved(id string) {
	s.Deregister(id)
}

// Start runs Tick every scheduler interval until Stop.
func (s *Scheduler) Start() {
	l := cronLogger{logger: s.logger}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(l)), cron.WithLogger(l))
	s.cron.Schedule(cron.Every(s.cfg.Scheduler.Interval), cron.FuncJob(s.Tick))
	s.cron.Start()
	s.logger.Info("Scheduler started", "interval", s.cfg.Scheduler.Interval)
}

// Stop stops the timer. Walks in flight are not cancelled. The returned
// context is done once a running Tick has returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.logger.Info("Scheduler stopped")
	return c.Stop()
}

// Tick runs one cycle, executing every device that is due.
func (s *Scheduler) Tick() {
	var due []*DevicePoller
	s.mu.Lock()
	for _, d := range s.devices {
		if d.countdown <= 0 {
			due = append(due, d.poller)
			d.countdown = d.every
		}
		d.countdown--
	}
	s.mu.Unlock()

	s.logger.Debug("Scheduler tick", "due", len(due))
	for _, p := range due {
		s.execute(p)
	}
}

func (s *Scheduler) execute(p *DevicePoller) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while polling device", "device", p.device.ID, "panic", r)
			s.metrics.DevicePanics.Inc()
		}
	}()
	p.Execute()
}

// Poller returns the poller of a registered device.
func (s *Scheduler) Poller(id string) (*DevicePoller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, false
	}
	return d.poller, true
}

func (s *Scheduler) Join(deviceID, topicID string) (JoinStatus, error) {
	p, ok := s.Poller(deviceID)
	if !ok {
		return Down, fmt.Errorf("unknown device %q", deviceID)
	}
	return p.Join(topicID), nil
}

func (s *Scheduler) Leave(deviceID, topicID string) error {
	p, ok := s.Poller(deviceID)
	if !ok {
		return fmt.Errorf("unknown device %q", deviceID)
	}
	p.Leave(topicID)
	return nil
}

// Devices returns the status of all registered devices, sorted by id.
func (s *Scheduler) Devices() []DeviceStatus {
	s.mu.RLock()
	pollers := make([]*DevicePoller, 0, len(s.devices))
	for _, d := range s.devices {
		pollers = append(pollers, d.poller)
	}
	s.mu.RUnlock()

	statuses := make([]DeviceStatus, 0, len(pollers))
	for _, p := range pollers {
		statuses = append(statuses, p.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
