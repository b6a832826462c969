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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v2"
)

func LoadFile(filename string, expandEnvVars bool) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Load(content, expandEnvVars)
}

func Load(content []byte, expandEnvVars bool) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(content, cfg); err != nil {
		return nil, err
	}
	// An empty document never reaches UnmarshalYAML.
	if cfg.Tables == nil {
		if err := yaml.UnmarshalStrict([]byte("{}"), cfg); err != nil {
			return nil, err
		}
	}
	if expandEnvVars {
		cfg.WalkParams.Auth.Community = Secret(os.ExpandEnv(string(cfg.WalkParams.Auth.Community)))
		cfg.Publisher.URL = Secret(os.ExpandEnv(string(cfg.Publisher.URL)))
	}
	return cfg, nil
}

var (
	DefaultAuth = Auth{
		Community: "public",
	}
	DefaultWalkParams = WalkParams{
		Version:        2,
		Port:           161,
		MaxRepetitions: 1000,
		Retries:        0,
		Timeout:        time.Second * 15,
		Auth:           DefaultAuth,
	}
	DefaultScheduler = Scheduler{
		Interval: time.Second * 60,
	}
	DefaultPublisher = Publisher{
		Exchange:    "iftable",
		DialRetries: 5,
	}
	DefaultConfig = Config{
		WalkParams: DefaultWalkParams,
		Scheduler:  DefaultScheduler,
		Publisher:  DefaultPublisher,
	}
)

var oidRE = regexp.MustCompile(`^\.?[0-9]+(\.[0-9]+)*$`)

// Config for the collector.
type Config struct {
	WalkParams WalkParams `yaml:"walk_params,omitempty"`
	Scheduler  Scheduler  `yaml:"scheduler,omitempty"`
	Publisher  Publisher  `yaml:"publisher,omitempty"`
	// Tables walked on every device, in order. Defaults to ifTable.
	Tables []*Table `yaml:"tables,omitempty"`
}

func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultConfig
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if len(c.Tables) == 0 {
		c.Tables = []*Table{IfTable}
	}
	seen := map[string]bool{}
	for i, t := range c.Tables {
		if t.Oid == "" && len(t.Columns) == 0 {
			builtin, ok := BuiltinTables[t.Name]
			if !ok {
				return fmt.Errorf("table %q has no oid and is not a builtin table", t.Name)
			}
			c.Tables[i] = builtin
			t = builtin
		}
		if err := t.validate(); err != nil {
			return err
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate table %q", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

type WalkParams struct {
	Version        int           `yaml:"version,omitempty"`
	Port           int           `yaml:"port,omitempty"`
	MaxRepetitions uint32        `yaml:"max_repetitions,omitempty"`
	Retries        int           `yaml:"retries,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	Auth           Auth          `yaml:"auth,omitempty"`
}

func (c *WalkParams) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultWalkParams
	type plain WalkParams
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if c.Version < 1 || c.Version > 2 {
		return fmt.Errorf("SNMP version must be 1 or 2. Got: %d", c.Version)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535. Got: %d", c.Port)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be non-negative. Got: %d", c.Retries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive. Got: %s", c.Timeout)
	}
	if c.MaxRepetitions == 0 {
		return fmt.Errorf("max_repetitions must be positive")
	}
	return nil
}

type Scheduler struct {
	// Period of the shared polling timer.
	Interval time.Duration `yaml:"interval,omitempty"`
}

func (c *Scheduler) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultScheduler
	type plain Scheduler
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if c.Interval < time.Second {
		return fmt.Errorf("scheduler interval must be at least 1s. Got: %s", c.Interval)
	}
	return nil
}

// Publisher configures the event bus. An empty URL logs events instead.
type Publisher struct {
	URL         Secret `yaml:"url,omitempty"`
	Exchange    string `yaml:"exchange,omitempty"`
	DialRetries int    `yaml:"dial_retries,omitempty"`
}

func (c *Publisher) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultPublisher
	type plain Publisher
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if c.URL != "" && c.Exchange == "" {
		return fmt.Errorf("publisher exchange is required when a url is set")
	}
	return nil
}

// Table is the static schema of one conceptual SNMP table.
type Table struct {
	Name    string    `yaml:"name"`
	Oid     string    `yaml:"oid,omitempty"`
	Columns []*Column `yaml:"columns,omitempty"`
}

// Column maps an OID suffix, relative to the table OID, to a row field.
type Column struct {
	Oid  string `yaml:"oid"`
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

var columnTypes = map[string]bool{
	"":              true,
	"DisplayString": true,
	"OctetString":   true,
	"PhysAddress48": true,
}

func (t *Table) validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is missing")
	}
	if !oidRE.MatchString(t.Oid) {
		return fmt.Errorf("table %q has invalid oid %q", t.Name, t.Oid)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", t.Name)
	}
	names := map[string]bool{}
	oids := map[string]bool{}
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %q has a column without a name", t.Name)
		}
		if !oidRE.MatchString(c.Oid) {
			return fmt.Errorf("column %q of table %q has invalid oid %q", c.Name, t.Name, c.Oid)
		}
		if !columnTypes[c.Type] {
			return fmt.Errorf("column %q of table %q has unknown type %q", c.Name, t.Name, c.Type)
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate column name %q in table %q", c.Name, t.Name)
		}
		if oids[c.Oid] {
			return fmt.Errorf("duplicate column oid %q in table %q", c.Oid, t.Name)
		}
		names[c.Name] = true
		oids[c.Oid] = true
	}
	return nil
}

// Device is a polled network device as announced by the registration feed.
type Device struct {
	ID           string        `yaml:"id"`
	Address      string        `yaml:"address"`
	Port         int           `yaml:"port,omitempty"`
	Community    Secret        `yaml:"community,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// Secret is a string that must not be revealed on marshaling.
type Secret string

// Hack for dumping a config with the secrets.
var (
	DoNotHideSecrets = false
)

// MarshalYAML implements the yaml.Marshaler interface.
func (s Secret) MarshalYAML() (interface{}, error) {
	if DoNotHideSecrets {
		return string(s), nil
	}
	if s != "" {
		return "<secret>", nil
	}
	return nil, nil
}

// MarshalJSON hides the secret in JSON output too.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" || DoNotHideSecrets {
		return json.Marshal(string(s))
	}
	return []byte(`"<secret>"`), nil
}

type Auth struct {
	Community Secret `yaml:"community,omitempty"`
}
