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
	"fmt"
	"log/slog"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/prometheus/iftable_collector/config"
)

// Row is one table row, column name to value.
type Row map[string]interface{}

type columnNode struct {
	column *config.Column

	children map[int]*columnNode
}

// Build a tree of columns from the table, keyed by OID suffix relative to
// the table root.
func buildColumnTree(columns []*config.Column) *columnNode {
	tree := &columnNode{children: map[int]*columnNode{}}
	for _, column := range columns {
		head := tree
		for _, o := range oidToList(column.Oid) {
			_, ok := head.children[o]
			if !ok {
				head.children[o] = &columnNode{children: map[int]*columnNode{}}
			}
			head = head.children[o]
		}
		head.column = column
	}
	return tree
}

// lookup returns the column with the longest OID matching the start of
// suffix, and the components after it.
func (n *columnNode) lookup(suffix []int) (*config.Column, []int) {
	var (
		column *config.Column
		rest   []int
	)
	head := n
	for i, o := range suffix {
		next, ok := head.children[o]
		if !ok {
			break
		}
		head = next
		if head.column != nil {
			column = head.column
			rest = suffix[i+1:]
		}
	}
	return column, rest
}

// RowMapper groups the bindings of one table walk into rows.
type RowMapper struct {
	table *config.Table
	root  []int
	tree  *columnNode
}

func NewRowMapper(table *config.Table) *RowMapper {
	return &RowMapper{
		table: table,
		root:  oidToList(table.Oid),
		tree:  buildColumnTree(table.Columns),
	}
}

// Map routes every binding into the row of its index. Bindings that match
// no column, or whose index is not a single component, are dropped with a
// warning.
func (m *RowMapper) Map(pdus []gosnmp.SnmpPDU, logger *slog.Logger, metrics Metrics) map[int]Row {
	rows := map[int]Row{}
	for i := range pdus {
		pdu := &pdus[i]
		oid, err := parseOid(pdu.Name)
		if err != nil || !hasPrefix(oid, m.root) {
			logger.Warn("Dropping binding outside of table", "table", m.table.Name, "oid", pdu.Name)
			metrics.MappingWarnings.Inc()
			continue
		}
		column, rest := m.tree.lookup(oid[len(m.root):])
		if column == nil {
			logger.Warn("Dropping binding matching no column", "table", m.table.Name, "oid", pdu.Name)
			metrics.MappingWarnings.Inc()
			continue
		}
		if len(rest) != 1 {
			logger.Warn("Dropping binding with unexpected index", "table", m.table.Name, "oid", pdu.Name, "column", column.Name, "index", listToOid(rest))
			metrics.MappingWarnings.Inc()
			continue
		}
		index := rest[0]
		row, ok := rows[index]
		if !ok {
			row = Row{}
			rows[index] = row
		}
		if value := pduValue(pdu, column.Type, metrics); value != nil {
			row[column.Name] = value
		}
	}
	return rows
}

// MapRows is a one-off RowMapper.Map.
func MapRows(pdus []gosnmp.SnmpPDU, table *config.Table, logger *slog.Logger, metrics Metrics) map[int]Row {
	return NewRowMapper(table).Map(pdus, logger, metrics)
}

// pduValue unwraps the value of a PDU into a plain scalar. A nil result
// means the binding carries no value.
func pduValue(pdu *gosnmp.SnmpPDU, typ string, metrics Metrics) interface{} {
	switch v := pdu.Value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case float32:
		return float64(v)
	case float64:
		return v
	case string:
		if pdu.Type == gosnmp.ObjectIdentifier {
			// Trim leading period.
			return strings.TrimPrefix(v, ".")
		}
		return strings.ToValidUTF8(v, "�")
	case []byte:
		switch typ {
		case "PhysAddress48":
			parts := make([]string, len(v))
			for i, o := range v {
				parts[i] = fmt.Sprintf("%02X", o)
			}
			return strings.Join(parts, ":")
		case "OctetString":
			return fmt.Sprintf("0x%X", v)
		default:
			// DisplayString.
			return strings.ToValidUTF8(string(v), "�")
		}
	case nil:
		return nil
	default:
		// This shouldn't happen.
		metrics.SNMPUnexpectedPduType.Inc()
		return fmt.Sprintf("%v", pdu.Value)
	}
}
