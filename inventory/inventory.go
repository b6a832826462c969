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

// Package inventory feeds the set of devices to poll from a YAML file.
package inventory

import (
	"fmt"
	"os"
	"sort"

	"go.yaml.in/yaml/v2"

	"github.com/prometheus/iftable_collector/config"
)

// Listener is notified of devices appearing in and disappearing from the
// inventory.
type Listener interface {
	OnDeviceAdded(config.Device)
	OnDeviceRemoved(id string)
}

// File is the inventory file format.
type File struct {
	Devices []config.Device `yaml:"devices"`
}

// LoadFile reads an inventory, keyed by device id.
func LoadFile(path string, expandEnvVars bool) (map[string]config.Device, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(content, expandEnvVars)
}

func Load(content []byte, expandEnvVars bool) (map[string]config.Device, error) {
	f := &File{}
	if err := yaml.UnmarshalStrict(content, f); err != nil {
		return nil, err
	}
	devices := make(map[string]config.Device, len(f.Devices))
	for i, d := range f.Devices {
		if d.ID == "" {
			return nil, fmt.Errorf("device %d has no id", i)
		}
		if d.Address == "" {
			return nil, fmt.Errorf("device %q has no address", d.ID)
		}
		if _, ok := devices[d.ID]; ok {
			return nil, fmt.Errorf("duplicate device id %q", d.ID)
		}
		if expandEnvVars {
			d.Community = config.Secret(os.ExpandEnv(string(d.Community)))
		}
		devices[d.ID] = d
	}
	return devices, nil
}

// Diff returns the devices of next that are new or changed, and the ids of
// prev that are gone or changed. A changed device is removed and added
// again.
func Diff(prev, next map[string]config.Device) (added []config.Device, removed []string) {
	for id, p := range prev {
		if n, ok := next[id]; !ok || n != p {
			removed = append(removed, id)
		}
	}
	for id, n := range next {
		if p, ok := prev[id]; !ok || n != p {
			added = append(added, n)
		}
	}
	sort.Strings(removed)
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	return added, removed
}
