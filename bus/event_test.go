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
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKeepsOrder(t *testing.T) {
	m := Message{
		{Key: "ifIndex", Value: int64(2)},
		{Key: "ifDescr", Value: "eth1"},
		{Key: "ifInOctets", Value: uint64(12345)},
		{Key: "source", Value: "10.0.0.1"},
	}
	b, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"ifIndex":2,"ifDescr":"eth1","ifInOctets":12345,"source":"10.0.0.1"}`, string(b))

	v, ok := m.Get("ifDescr")
	assert.True(t, ok)
	assert.Equal(t, "eth1", v)
	_, ok = m.Get("ifAlias")
	assert.False(t, ok)
}

func TestEncode(t *testing.T) {
	e := Event{
		Source: "10.0.0.1",
		Device: "r1",
		Table:  "ifTable",
		Index:  1,
		Time:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Message: Message{
			{Key: "ifIndex", Value: int64(1)},
			{Key: "source", Value: "10.0.0.1"},
		},
	}
	b, err := Encode(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"10.0.0.1","device":"r1","table":"ifTable","index":1,
		"time":"2024-01-02T03:04:05Z","message":{"ifIndex":1,"source":"10.0.0.1"}}`, string(b))
}

func TestEmptyMessage(t *testing.T) {
	b, err := Message(nil).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	require.NoError(t, p.Publish("10.0.0.1", Event{Index: 1}))
	p.SetErr(errors.New("broker down"))
	assert.Error(t, p.Publish("10.0.0.1", Event{Index: 2}))
	p.SetErr(nil)
	require.NoError(t, p.Publish("10.0.0.2", Event{Index: 3}))

	events := p.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "10.0.0.1", events[0].Topic)
	assert.Equal(t, 3, events[1].Event.Index)
	assert.NoError(t, p.Close())
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, p.Publish("10.0.0.1", Event{Source: "10.0.0.1", Table: "ifTable"}))
	assert.Contains(t, buf.String(), "topic=10.0.0.1")
	assert.Contains(t, buf.String(), `\"table\":\"ifTable\"`)
}
