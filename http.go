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

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"

	jsoniter "github.com/json-iterator/go"
	"go.yaml.in/yaml/v2"

	"github.com/prometheus/iftable_collector/collector"
	"github.com/prometheus/iftable_collector/config"
)

const landingPage = `<html>
<head><title>IfTable Collector</title></head>
<body>
<h1>IfTable Collector</h1>
<p><a href="/devices">Devices</a></p>
<p><a href="/config">Config</a></p>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>`

// devices is the part of the scheduler exposed over HTTP.
type devices interface {
	Devices() []collector.DeviceStatus
	Join(deviceID, topicID string) (collector.JoinStatus, error)
	Leave(deviceID, topicID string) error
}

type topicResponse struct {
	Device string                `json:"device"`
	Topic  string                `json:"topic"`
	Status *collector.JoinStatus `json:"status,omitempty"`
}

func newHandler(sc *config.SafeConfig, d devices, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingPage))
	})
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		c, err := yaml.Marshal(sc.Get())
		if err != nil {
			logger.Error("Error marshaling configuration", "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write(c)
	})
	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, d.Devices())
	})
	mux.HandleFunc("/topics/join", func(w http.ResponseWriter, r *http.Request) {
		device, topic, ok := topicParams(w, r)
		if !ok {
			return
		}
		status, err := d.Join(device, topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Debug("Topic join", "device", device, "topic", topic, "status", status)
		writeJSON(w, logger, topicResponse{Device: device, Topic: topic, Status: &status})
	})
	mux.HandleFunc("/topics/leave", func(w http.ResponseWriter, r *http.Request) {
		device, topic, ok := topicParams(w, r)
		if !ok {
			return
		}
		if err := d.Leave(device, topic); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, logger, topicResponse{Device: device, Topic: topic})
	})
	return mux
}

func topicParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		return "", "", false
	}
	device := r.URL.Query().Get("device")
	topic := r.URL.Query().Get("topic")
	if device == "" || topic == "" {
		http.Error(w, "'device' and 'topic' parameters must be specified", http.StatusBadRequest)
		return "", "", false
	}
	return device, topic, true
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v interface{}) {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		logger.Error("Error encoding response", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}
