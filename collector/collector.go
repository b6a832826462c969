// Copyright 2018 The Prometheus Authors
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

package collector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func oidToList(oid string) []int {
	result := []int{}
	for _, x := range strings.Split(strings.TrimPrefix(oid, "."), ".") {
		o, _ := strconv.Atoi(x)
		result = append(result, o)
	}
	return result
}

// parseOid is oidToList for OIDs coming off the wire, which may be garbage.
func parseOid(oid string) ([]int, error) {
	oid = strings.TrimPrefix(oid, ".")
	if oid == "" {
		return nil, fmt.Errorf("empty oid")
	}
	parts := strings.Split(oid, ".")
	result := make([]int, 0, len(parts))
	for _, x := range parts {
		o, err := strconv.Atoi(x)
		if err != nil || o < 0 {
			return nil, fmt.Errorf("invalid oid %q", oid)
		}
		result = append(result, o)
	}
	return result, nil
}

func listToOid(l []int) string {
	var result []string
	for _, o := range l {
		result = append(result, strconv.Itoa(o))
	}
	return strings.Join(result, ".")
}

// compareOids orders OIDs lexicographically by component.
func compareOids(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func hasPrefix(oid, prefix []int) bool {
	if len(oid) < len(prefix) {
		return false
	}
	for i, o := range prefix {
		if oid[i] != o {
			return false
		}
	}
	return true
}

type Metrics struct {
	SNMPWalkDuration      prometheus.Histogram
	SNMPWalkErrors        *prometheus.CounterVec
	SNMPUnexpectedPduType prometheus.Counter
	SNMPDuration          prometheus.Histogram
	SNMPPackets           prometheus.Counter
	SNMPRetries           prometheus.Counter
	SNMPInflight          prometheus.Gauge
	MappingWarnings       prometheus.Counter
	RowsPublished         prometheus.Counter
	PublishErrors         prometheus.Counter
	SkippedCycles         prometheus.Counter
	DevicePanics          prometheus.Counter
	RegisteredDevices     prometheus.Gauge
}

const namespace = "iftable_collector"

func NewMetrics(reg prometheus.Registerer) Metrics {
	f := promauto.With(reg)
	return Metrics{
		SNMPWalkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "walk_duration_seconds",
			Help:      "Duration of table walks.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		SNMPWalkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_errors_total",
			Help:      "Failed table walks by kind of error.",
		}, []string{"kind"}),
		SNMPUnexpectedPduType: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unexpected_pdu_type_total",
			Help:      "Unexpected Go types in a PDU.",
		}),
		SNMPDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "packet_duration_seconds",
			Help:      "A histogram of latencies for SNMP packets.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		SNMPPackets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Number of SNMP packets sent, including retries.",
		}),
		SNMPRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_retries_total",
			Help:      "Number of SNMP packet retries.",
		}),
		SNMPInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "walks_in_flight",
			Help:      "Current number of table walks being performed.",
		}),
		MappingWarnings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_warnings_total",
			Help:      "Variable bindings dropped because they matched no column or index.",
		}),
		RowsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_published_total",
			Help:      "Rows published as events.",
		}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Events that could not be published.",
		}),
		SkippedCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_cycles_total",
			Help:      "Poll cycles skipped because the previous one was still running.",
		}),
		DevicePanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_panics_total",
			Help:      "Panics recovered while polling a device.",
		}),
		RegisteredDevices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_devices",
			Help:      "Number of devices currently registered for polling.",
		}),
	}
}

// SessionHooks returns an option for scraper.GoSNMPSession.SetOptions that
// counts packets, retries and packet latency.
func SessionHooks(metrics Metrics) func(*gosnmp.GoSNMP) {
	return func(g *gosnmp.GoSNMP) {
		// Each connection only has one request outstanding at a time.
		var sent time.Time
		g.OnSent = func(x *gosnmp.GoSNMP) {
			sent = time.Now()
			metrics.SNMPPackets.Inc()
		}
		g.OnRecv = func(x *gosnmp.GoSNMP) {
			metrics.SNMPDuration.Observe(time.Since(sent).Seconds())
		}
		g.OnRetry = func(x *gosnmp.GoSNMP) {
			metrics.SNMPRetries.Inc()
		}
	}
}
