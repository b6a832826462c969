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
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Field is one column of a published row.
type Field struct {
	Key   string
	Value interface{}
}

// Message is a row as an ordered list of fields. It marshals to a JSON
// object keeping the field order.
type Message []Field

func (m Message) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of the field named key.
func (m Message) Get(key string) (interface{}, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Event is one table row of one device, as sent to subscribers.
type Event struct {
	// Source is the address of the polled device.
	Source  string    `json:"source"`
	Device  string    `json:"device"`
	Table   string    `json:"table"`
	Index   int       `json:"index"`
	Time    time.Time `json:"time"`
	Message Message   `json:"message"`
}

// Encode returns the wire form of an event.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to the subscribers of a topic.
type Publisher interface {
	Publish(topic string, e Event) error
	Close() error
}
