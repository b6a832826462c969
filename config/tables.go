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

package config

// IfTable is IF-MIB::ifEntry.
var IfTable = &Table{
	Name: "ifTable",
	Oid:  "1.3.6.1.2.1.2.2.1",
	Columns: []*Column{
		{Oid: "1", Name: "ifIndex"},
		{Oid: "2", Name: "ifDescr", Type: "DisplayString"},
		{Oid: "3", Name: "ifType"},
		{Oid: "4", Name: "ifMtu"},
		{Oid: "5", Name: "ifSpeed"},
		{Oid: "6", Name: "ifPhysAddress", Type: "PhysAddress48"},
		{Oid: "7", Name: "ifAdminStatus"},
		{Oid: "8", Name: "ifOperStatus"},
		{Oid: "9", Name: "ifLastChange"},
		{Oid: "10", Name: "ifInOctets"},
		{Oid: "11", Name: "ifInUcastPkts"},
		{Oid: "12", Name: "ifInNUcastPkts"},
		{Oid: "13", Name: "ifInDiscards"},
		{Oid: "14", Name: "ifInErrors"},
		{Oid: "15", Name: "ifInUnknownProtos"},
		{Oid: "16", Name: "ifOutOctets"},
		{Oid: "17", Name: "ifOutUcastPkts"},
		{Oid: "18", Name: "ifOutNUcastPkts"},
		{Oid: "19", Name: "ifOutDiscards"},
		{Oid: "20", Name: "ifOutErrors"},
		{Oid: "21", Name: "ifOutQLen"},
		{Oid: "22", Name: "ifSpecific"},
	},
}

// IfXTable is IF-MIB::ifXEntry, mostly the 64-bit counters.
var IfXTable = &Table{
	Name: "ifXTable",
	Oid:  "1.3.6.1.2.1.31.1.1.1",
	Columns: []*Column{
		{Oid: "1", Name: "ifName", Type: "DisplayString"},
		{Oid: "6", Name: "ifHCInOctets"},
		{Oid: "7", Name: "ifHCInUcastPkts"},
		{Oid: "8", Name: "ifHCInMulticastPkts"},
		{Oid: "9", Name: "ifHCInBroadcastPkts"},
		{Oid: "10", Name: "ifHCOutOctets"},
		{Oid: "11", Name: "ifHCOutUcastPkts"},
		{Oid: "12", Name: "ifHCOutMulticastPkts"},
		{Oid: "13", Name: "ifHCOutBroadcastPkts"},
		{Oid: "15", Name: "ifHighSpeed"},
		{Oid: "18", Name: "ifAlias", Type: "DisplayString"},
	},
}

// BuiltinTables can be referenced by name alone in the configuration.
var BuiltinTables = map[string]*Table{
	IfTable.Name:  IfTable,
	IfXTable.Name: IfXTable,
}
