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
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/iftable_collector/config"
)

func TestNewTarget(t *testing.T) {
	wp := config.DefaultWalkParams
	v1 := config.DefaultWalkParams
	v1.Version = 1

	cases := []struct {
		name      string
		address   string
		port      int
		community config.Secret
		wp        config.WalkParams
		expected  *Target
		shouldErr bool
	}{
		{
			name:    "defaults",
			address: "10.0.0.1",
			wp:      wp,
			expected: &Target{Transport: "udp", Address: "10.0.0.1", Port: 161, Community: "public",
				Version: gosnmp.Version2c, Retries: 0, Timeout: 15 * time.Second},
		},
		{
			name:      "explicit port and community",
			address:   "10.0.0.1",
			port:      1161,
			community: "private",
			wp:        wp,
			expected: &Target{Transport: "udp", Address: "10.0.0.1", Port: 1161, Community: "private",
				Version: gosnmp.Version2c, Retries: 0, Timeout: 15 * time.Second},
		},
		{
			name:    "transport and port in address",
			address: "tcp://router.example.com:2161",
			port:    1161,
			wp:      v1,
			expected: &Target{Transport: "tcp", Address: "router.example.com", Port: 2161, Community: "public",
				Version: gosnmp.Version1, Retries: 0, Timeout: 15 * time.Second},
		},
		{
			name:    "ipv6",
			address: "[::1]:161",
			wp:      wp,
			expected: &Target{Transport: "udp", Address: "::1", Port: 161, Community: "public",
				Version: gosnmp.Version2c, Retries: 0, Timeout: 15 * time.Second},
		},
		{
			name:      "bad port",
			address:   "10.0.0.1:snmp",
			wp:        wp,
			shouldErr: true,
		},
		{
			name:      "port out of range",
			address:   "10.0.0.1",
			port:      70000,
			wp:        wp,
			shouldErr: true,
		},
		{
			name:      "empty address",
			address:   "",
			wp:        wp,
			shouldErr: true,
		},
		{
			name:      "unsupported transport",
			address:   "icmp://10.0.0.1",
			wp:        wp,
			shouldErr: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			target, err := NewTarget(c.address, c.port, c.community, c.wp)
			if c.shouldErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expected, target)
		})
	}
}

func TestTargetStringHidesCommunity(t *testing.T) {
	target, err := NewTarget("10.0.0.1", 0, "mysecret", config.DefaultWalkParams)
	require.NoError(t, err)
	assert.Equal(t, "udp://10.0.0.1:161", target.String())
	assert.NotContains(t, target.String(), "mysecret")
}

func TestConfigureSNMP(t *testing.T) {
	target, err := NewTarget("tcp://10.0.0.1:1161", 0, "private", config.DefaultWalkParams)
	require.NoError(t, err)
	g := &gosnmp.GoSNMP{}
	target.configureSNMP(g)
	assert.Equal(t, "tcp", g.Transport)
	assert.Equal(t, "10.0.0.1", g.Target)
	assert.Equal(t, uint16(1161), g.Port)
	assert.Equal(t, "private", g.Community)
	assert.Equal(t, gosnmp.Version2c, g.Version)
	assert.Equal(t, 0, g.Retries)
	assert.Equal(t, 15*time.Second, g.Timeout)
}
