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
	"fmt"
	"strings"
	"sync"

	"github.com/gosnmp/gosnmp"
)

// NewMockSession returns a listening session answering from scripted
// responses, keyed by target address and requested OID. Unscripted requests
// time out.
func NewMockSession() *MockSession {
	return &MockSession{
		responses: make(map[string]mockResponse),
		calls:     make(map[string][]string),
		released:  make(map[string]int),
		listening: true,
	}
}

type mockResponse struct {
	packet *gosnmp.SnmpPacket
	err    error
}

type MockSession struct {
	mu        sync.Mutex
	responses map[string]mockResponse
	calls     map[string][]string
	released  map[string]int
	listening bool
}

func mockKey(address, oid string) string {
	return address + " " + strings.TrimPrefix(oid, ".")
}

// AddResponse scripts a successful response.
func (m *MockSession) AddResponse(address, oid string, variables ...gosnmp.SnmpPDU) {
	m.AddPacket(address, oid, &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		PDUType:   gosnmp.GetResponse,
		Error:     gosnmp.NoError,
		Variables: variables,
	})
}

func (m *MockSession) AddPacket(address, oid string, packet *gosnmp.SnmpPacket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[mockKey(address, oid)] = mockResponse{packet: packet}
}

func (m *MockSession) AddError(address, oid string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[mockKey(address, oid)] = mockResponse{err: err}
}

// Calls returns the OIDs requested from address, in order.
func (m *MockSession) Calls(address string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls[address]...)
}

// Released returns how often the target at address was released.
func (m *MockSession) Released(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[address]
}

func (m *MockSession) Release(target *Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released[target.Address]++
}

func (m *MockSession) Listen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listening = true
	return nil
}

func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listening = false
	return nil
}

func (m *MockSession) Send(req BulkRequest, target *Target, cb Callback) {
	oid := ""
	if len(req.OIDs) > 0 {
		oid = strings.TrimPrefix(req.OIDs[0], ".")
	}
	m.mu.Lock()
	m.calls[target.Address] = append(m.calls[target.Address], oid)
	resp, ok := m.responses[mockKey(target.Address, oid)]
	listening := m.listening
	m.mu.Unlock()

	go func() {
		switch {
		case !listening:
			cb(nil, ErrNotListening)
		case !ok:
			cb(nil, fmt.Errorf("%w: no response to %s from %s", ErrTimeout, oid, target))
		default:
			cb(resp.packet, resp.err)
		}
	}()
}
