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
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/prometheus/iftable_collector/config"
)

// Target is where and how requests for one device are sent.
type Target struct {
	Transport string
	Address   string
	Port      uint16
	Community config.Secret
	Version   gosnmp.SnmpVersion
	Retries   int
	Timeout   time.Duration
}

// NewTarget resolves a device address against the walk parameters. The
// address may carry a transport prefix and a port, as in "tcp://host:1161";
// a port embedded in the address wins over port, and a zero port falls back
// to the walk parameters.
func NewTarget(address string, port int, community config.Secret, wp config.WalkParams) (*Target, error) {
	t := &Target{
		Transport: "udp",
		Community: community,
		Version:   gosnmp.Version2c,
		Retries:   wp.Retries,
		Timeout:   wp.Timeout,
	}
	if wp.Version == 1 {
		t.Version = gosnmp.Version1
	}
	if t.Community == "" {
		t.Community = wp.Auth.Community
	}
	if s := strings.SplitN(address, "://", 2); len(s) == 2 {
		t.Transport = s[0]
		address = s[1]
	}
	if t.Transport != "udp" && t.Transport != "tcp" {
		return nil, fmt.Errorf("unsupported transport %q for target %q", t.Transport, address)
	}
	if port == 0 {
		port = wp.Port
	}
	if port == 0 {
		port = 161
	}
	if host, _port, err := net.SplitHostPort(address); err == nil {
		address = host
		p, err := strconv.Atoi(_port)
		if err != nil {
			return nil, fmt.Errorf("error converting port number to int for target %q: %w", address, err)
		}
		port = p
	}
	if address == "" {
		return nil, fmt.Errorf("target address is empty")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d for target %q", port, address)
	}
	t.Address = address
	t.Port = uint16(port)
	return t, nil
}

// String identifies the target in logs; it never includes the community.
func (t *Target) String() string {
	return fmt.Sprintf("%s://%s", t.Transport, net.JoinHostPort(t.Address, strconv.Itoa(int(t.Port))))
}

// key identifies the connection a target can share with other targets.
func (t *Target) key() string {
	return fmt.Sprintf("%s/%s/%d/%d/%d", t, t.Community, t.Version, t.Retries, t.Timeout)
}

func (t *Target) configureSNMP(g *gosnmp.GoSNMP) {
	g.Transport = t.Transport
	g.Target = t.Address
	g.Port = t.Port
	g.Community = string(t.Community)
	g.Version = t.Version
	g.Retries = t.Retries
	g.Timeout = t.Timeout
}
