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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/promslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/iftable_collector/bus"
	"github.com/prometheus/iftable_collector/collector"
	"github.com/prometheus/iftable_collector/config"
	"github.com/prometheus/iftable_collector/scraper"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig
	cfg.WalkParams.Auth.Community = "mysecret"
	cfg.Tables = []*config.Table{config.IfTable}
	sc := &config.SafeConfig{C: &cfg}

	logger := promslog.NewNopLogger()
	reg := prometheus.NewRegistry()
	sched := collector.NewScheduler(&cfg, scraper.NewMockSession(), bus.NewMemoryPublisher(), logger, collector.NewMetrics(reg))
	require.NoError(t, sched.Register("r1", "10.0.0.1", "public", 161, time.Minute))

	srv := httptest.NewServer(newHandler(sc, sched, http.NotFoundHandler(), logger))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestTopicHandlers(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/topics/join?device=r1&topic=alarms", status: 200, body: `{"device":"r1","topic":"alarms","status":"up"}`},
		{path: "/topics/join?device=r1&topic=alarms", status: 200, body: `{"device":"r1","topic":"alarms","status":"down"}`},
		{path: "/topics/leave?device=r1&topic=alarms", status: 200, body: `{"device":"r1","topic":"alarms"}`},
		{path: "/topics/leave?device=r1&topic=alarms", status: 200, body: `{"device":"r1","topic":"alarms"}`},
		{path: "/topics/join?device=r1&topic=alarms", status: 200, body: `{"device":"r1","topic":"alarms","status":"up"}`},
		{path: "/topics/join?device=r9&topic=alarms", status: 404},
		{path: "/topics/leave?device=r9&topic=alarms", status: 404},
		{path: "/topics/join?device=r1", status: 400},
		{path: "/topics/leave?topic=alarms", status: 400},
	}
	for _, c := range cases {
		status, body := get(t, srv.URL+c.path)
		assert.Equal(t, c.status, status, c.path)
		if c.body != "" {
			assert.JSONEq(t, c.body, body, c.path)
		}
	}
}

func TestDevicesHandler(t *testing.T) {
	srv := newTestServer(t)
	_, _ = get(t, srv.URL+"/topics/join?device=r1&topic=alarms")

	status, body := get(t, srv.URL+"/devices")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, `"id":"r1"`)
	assert.Contains(t, body, `"target":"udp://10.0.0.1:161"`)
	assert.Contains(t, body, `"topics":["alarms"]`)
	assert.NotContains(t, body, "public")
}

func TestConfigHandlerHidesSecrets(t *testing.T) {
	srv := newTestServer(t)
	status, body := get(t, srv.URL+"/config")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "<secret>")
	assert.NotContains(t, body, "mysecret")
	assert.Contains(t, body, "name: ifTable")
}

func TestLandingPage(t *testing.T) {
	srv := newTestServer(t)
	status, body := get(t, srv.URL+"/")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "/devices")
	status, _ = get(t, srv.URL+"/nothing")
	assert.Equal(t, 404, status)
}

func TestTopicMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/topics/join?device=r1&topic=alarms", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPprofHandlers(t *testing.T) {
	srv := newTestServer(t)
	status, body := get(t, srv.URL+"/debug/pprof/")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "goroutine")
	status, _ = get(t, srv.URL+"/debug/pprof/cmdline")
	assert.Equal(t, 200, status)
}
