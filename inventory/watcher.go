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

package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/prometheus/iftable_collector/config"
)

// Watcher keeps a Listener in sync with an inventory file.
type Watcher struct {
	path          string
	expandEnvVars bool
	listener      Listener
	logger        *slog.Logger

	mu      sync.Mutex
	devices map[string]config.Device
}

func NewWatcher(path string, expandEnvVars bool, listener Listener, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:          filepath.Clean(path),
		expandEnvVars: expandEnvVars,
		listener:      listener,
		logger:        logger,
		devices:       map[string]config.Device{},
	}
}

// Reload reads the file and notifies the listener of the differences to
// the previous version. On error the previous version stays in effect.
func (w *Watcher) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	devices, err := LoadFile(w.path, w.expandEnvVars)
	if err != nil {
		return fmt.Errorf("error loading inventory %s: %w", w.path, err)
	}
	added, removed := Diff(w.devices, devices)
	for _, id := range removed {
		w.logger.Debug("Device removed from inventory", "device", id)
		w.listener.OnDeviceRemoved(id)
	}
	for _, d := range added {
		w.logger.Debug("Device added to inventory", "device", d.ID, "address", d.Address)
		w.listener.OnDeviceAdded(d)
	}
	w.devices = devices
	w.logger.Info("Loaded inventory", "devices", len(devices), "added", len(added), "removed", len(removed))
	return nil
}

// Run reloads the file whenever it changes, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating file watcher: %w", err)
	}
	defer fw.Close()
	// Watch the directory, editors and config management replace the file.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("error watching %s: %w", w.path, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.Error("Error reloading inventory", "err", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Error watching inventory", "err", err)
		}
	}
}
