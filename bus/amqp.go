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

	"github.com/cenkalti/backoff/v4"
	"github.com/streadway/amqp"
	"go.uber.org/multierr"
)

// AMQPPublisher publishes events to a topic exchange, using the topic as
// routing key.
type AMQPPublisher struct {
	logger   *slog.Logger
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// DialAMQP connects to the broker at url, retrying with exponential backoff
// up to retries times, and declares the exchange.
func DialAMQP(url, exchange string, retries int, logger *slog.Logger) (*AMQPPublisher, error) {
	var conn *amqp.Connection
	op := func() error {
		var err error
		conn, err = amqp.Dial(url)
		if err != nil {
			logger.Warn("Error connecting to broker, retrying", "err", err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries))); err != nil {
		return nil, fmt.Errorf("error connecting to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error declaring exchange %q: %w", exchange, err)
	}
	logger.Info("Connected to broker", "exchange", exchange)
	return &AMQPPublisher{
		logger:   logger,
		exchange: exchange,
		conn:     conn,
		channel:  ch,
	}, nil
}

func (p *AMQPPublisher) Publish(topic string, e Event) error {
	body, err := Encode(e)
	if err != nil {
		return fmt.Errorf("error encoding event: %w", err)
	}
	// amqp.Channel is not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return fmt.Errorf("publisher closed")
	}
	return p.channel.Publish(p.exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   e.Time,
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	err := multierr.Append(p.channel.Close(), p.conn.Close())
	p.channel = nil
	p.conn = nil
	return err
}
