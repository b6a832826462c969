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

package collector

import (
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/prometheus/common/promslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/iftable_collector/config"
)

func TestMapRows(t *testing.T) {
	pdus := []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.1.1", Type: gosnmp.Integer, Value: 1},
		{Name: ".1.3.6.1.2.1.2.2.1.1.2", Type: gosnmp.Integer, Value: 2},
		{Name: ".1.3.6.1.2.1.2.2.1.2.1", Type: gosnmp.OctetString, Value: []byte("eth0")},
		{Name: ".1.3.6.1.2.1.2.2.1.2.2", Type: gosnmp.OctetString, Value: []byte("eth1")},
		{Name: ".1.3.6.1.2.1.2.2.1.6.1", Type: gosnmp.OctetString, Value: []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}},
		{Name: ".1.3.6.1.2.1.2.2.1.10.2", Type: gosnmp.Counter32, Value: uint(12345)},
		{Name: ".1.3.6.1.2.1.2.2.1.9.2", Type: gosnmp.TimeTicks, Value: uint32(300)},
		// Not a column of ifTable.
		{Name: ".1.3.6.1.2.1.2.2.1.99.1", Type: gosnmp.Integer, Value: 1},
		// Index with more than one component.
		{Name: ".1.3.6.1.2.1.2.2.1.1.3.4", Type: gosnmp.Integer, Value: 3},
		// Column without index.
		{Name: ".1.3.6.1.2.1.2.2.1.1", Type: gosnmp.Integer, Value: 3},
		// Outside the table.
		{Name: ".1.3.6.1.2.1.31.1.1.1.1.1", Type: gosnmp.OctetString, Value: []byte("Gi0/1")},
		// Row without a value.
		{Name: ".1.3.6.1.2.1.2.2.1.2.5", Type: gosnmp.Null, Value: nil},
	}

	rows := MapRows(pdus, config.IfTable, promslog.NewNopLogger(), newTestMetrics())
	assert.Equal(t, map[int]Row{
		1: {
			"ifIndex":       int64(1),
			"ifDescr":       "eth0",
			"ifPhysAddress": "00:1A:2B:3C:4D:5E",
		},
		2: {
			"ifIndex":      int64(2),
			"ifDescr":      "eth1",
			"ifInOctets":   uint64(12345),
			"ifLastChange": uint64(300),
		},
		5: {},
	}, rows)
}

func TestMapRowsIndicesMatchColumns(t *testing.T) {
	table := &config.Table{
		Name: "entPhysicalTable",
		Oid:  "1.3.6.1.2.1.47.1.1.1",
		Columns: []*config.Column{
			{Oid: "1.2", Name: "entPhysicalDescr", Type: "DisplayString"},
			{Oid: "1.7", Name: "entPhysicalName", Type: "DisplayString"},
		},
	}
	pdus := []gosnmp.SnmpPDU{
		{Name: "1.3.6.1.2.1.47.1.1.1.1.2.1001", Type: gosnmp.OctetString, Value: []byte("chassis")},
		{Name: "1.3.6.1.2.1.47.1.1.1.1.3.1002", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.9"},
		{Name: "1.3.6.1.2.1.47.1.1.1.1.7.1003", Type: gosnmp.OctetString, Value: []byte("slot 1")},
	}
	rows := MapRows(pdus, table, promslog.NewNopLogger(), newTestMetrics())
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"entPhysicalDescr": "chassis"}, rows[1001])
	assert.Equal(t, Row{"entPhysicalName": "slot 1"}, rows[1003])
}

func TestColumnTreeLookup(t *testing.T) {
	tree := buildColumnTree([]*config.Column{
		{Oid: "1", Name: "short"},
		{Oid: "1.5", Name: "long"},
		{Oid: "2", Name: "other"},
	})
	cases := []struct {
		suffix []int
		column string
		rest   []int
	}{
		{suffix: []int{1, 4}, column: "short", rest: []int{4}},
		{suffix: []int{1, 5, 7}, column: "long", rest: []int{7}},
		{suffix: []int{2, 9}, column: "other", rest: []int{9}},
		{suffix: []int{3, 1}},
		{suffix: []int{}},
	}
	for _, c := range cases {
		column, rest := tree.lookup(c.suffix)
		if c.column == "" {
			assert.Nil(t, column, "suffix %v", c.suffix)
			continue
		}
		require.NotNil(t, column, "suffix %v", c.suffix)
		assert.Equal(t, c.column, column.Name)
		assert.Equal(t, c.rest, rest)
	}
}

func TestPduValue(t *testing.T) {
	cases := []struct {
		pdu      *gosnmp.SnmpPDU
		typ      string
		expected interface{}
	}{
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: -2}, expected: int64(-2)},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.Gauge32, Value: uint(1000000000)}, expected: uint64(1000000000)},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.Counter64, Value: uint64(18446744073709551615)}, expected: uint64(18446744073709551615)},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.OpaqueFloat, Value: float32(1.5)}, expected: float64(1.5)},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.OpaqueDouble, Value: float64(2.25)}, expected: float64(2.25)},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.9.1.1"}, expected: "1.3.6.1.4.1.9.1.1"},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.IPAddress, Value: "10.0.0.1"}, expected: "10.0.0.1"},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("eth0")}, expected: "eth0"},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("eth0")}, typ: "DisplayString", expected: "eth0"},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0xff, 'a'}}, expected: "�a"},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0x01, 0xab}}, typ: "OctetString", expected: "0x01AB"},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}}, typ: "PhysAddress48", expected: "00:1A:2B:3C:4D:5E"},
		{pdu: &gosnmp.SnmpPDU{Type: gosnmp.Null, Value: nil}, expected: nil},
	}
	for _, c := range cases {
		got := pduValue(c.pdu, c.typ, newTestMetrics())
		assert.Equal(t, c.expected, got, "pdu %v type %q", c.pdu, c.typ)
	}
}

func TestOidHelpers(t *testing.T) {
	assert.Equal(t, []int{1, 3, 6, 1}, oidToList(".1.3.6.1"))
	assert.Equal(t, "1.3.6.1", listToOid([]int{1, 3, 6, 1}))

	oid, err := parseOid(".1.3.6.1.2.1.2.2.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 6, 1, 2, 1, 2, 2, 1, 1, 1}, oid)
	for _, bad := range []string{"", ".", "1..3", "1.3.a", "1.-3"} {
		_, err := parseOid(bad)
		assert.Error(t, err, "oid %q", bad)
	}

	cases := []struct {
		a, b     []int
		expected int
	}{
		{a: []int{1, 3, 6}, b: []int{1, 3, 6}, expected: 0},
		{a: []int{1, 3, 6}, b: []int{1, 3, 7}, expected: -1},
		{a: []int{1, 3, 10}, b: []int{1, 3, 9}, expected: 1},
		{a: []int{1, 3}, b: []int{1, 3, 0}, expected: -1},
		{a: []int{1, 4}, b: []int{1, 3, 9, 9}, expected: 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, compareOids(c.a, c.b), "%v vs %v", c.a, c.b)
	}

	assert.True(t, hasPrefix([]int{1, 3, 6, 1}, []int{1, 3}))
	assert.True(t, hasPrefix([]int{1, 3}, []int{1, 3}))
	assert.False(t, hasPrefix([]int{1, 3}, []int{1, 3, 6}))
	assert.False(t, hasPrefix([]int{1, 4, 6}, []int{1, 3}))
}
