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

package bus

import (
	"fmt"
	"log/slog"
	"sync"
)

// LogPublisher writes events to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(topic string, e Event) error {
	body, err := Encode(e)
	if err != nil {
		return fmt.Errorf("error encoding event: %w", err)
	}
	p.logger.Info("Event", "topic", topic, "event", string(body))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Published is an event together with its topic.
type Published struct {
	Topic string
	Event Event
}

// MemoryPublisher keeps published events in memory. Setting Err makes
// Publish fail.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(topic string, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, Published{Topic: topic, Event: e})
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}

// SetErr changes the error returned by Publish.
func (p *MemoryPublisher) SetErr(err error) {
	p.mu.Lock()
	p.Err = err
	p.mu.Unlock()
}

func (p *MemoryPublisher) Close() error { return nil }
