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
	"errors"

	"github.com/gosnmp/gosnmp"
)

var (
	// ErrTimeout is wrapped by errors for requests that got no response in time.
	ErrTimeout = errors.New("request timeout")
	// ErrNotListening is returned for requests sent before Listen or after Close.
	ErrNotListening = errors.New("session is not listening")
)

// BulkRequest is a single GETBULK round trip.
type BulkRequest struct {
	OIDs           []string
	NonRepeaters   uint8
	MaxRepetitions uint32
}

// Callback receives the outcome of one request. It is called exactly once,
// never on the goroutine that called Send.
type Callback func(*gosnmp.SnmpPacket, error)

// Session is the transport shared by all walks. It must be safe for
// concurrent use; responses are delivered through the callback of the
// request they answer.
type Session interface {
	Listen() error
	Send(BulkRequest, *Target, Callback)
	// Release drops the connection of a target that is no longer polled.
	// A later Send to the same target opens a new one.
	Release(*Target)
	Close() error
}
