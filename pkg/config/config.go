// Package config defines the benchmark scenario schema shared by the
// bench driver and the test harness, so other programs can read
// scenario files without pulling in the harness itself.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "5s" or "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Scenario describes one benchmark topology.
type Scenario struct {
	Name      string   `yaml:"name"`
	Producers int      `yaml:"producers"`
	Consumers int      `yaml:"consumers"`
	Chained   bool     `yaml:"chained"` // linear dependency chain across consumers
	Capacity  uint     `yaml:"capacity"`
	BatchSize uint     `yaml:"batch_size"`
	Yield     string   `yaml:"yield"` // spin | threaded | hybrid
	Duration  Duration `yaml:"duration"`
}

// File is the top-level scenario file layout.
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Load reads and validates a YAML scenario file.
func Load(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	if len(f.Scenarios) == 0 {
		return f, fmt.Errorf("config: %q defines no scenarios", path)
	}
	for i := range f.Scenarios {
		f.Scenarios[i].ApplyDefaults()
		if err := f.Scenarios[i].Validate(); err != nil {
			return f, fmt.Errorf("config: %q scenario %d: %w", path, i, err)
		}
	}
	return f, nil
}

// ApplyDefaults fills the optional fields.
func (s *Scenario) ApplyDefaults() {
	if s.Producers == 0 {
		s.Producers = 1
	}
	if s.Consumers == 0 {
		s.Consumers = 1
	}
	if s.Capacity == 0 {
		s.Capacity = 1024
	}
	if s.Yield == "" {
		s.Yield = "threaded"
	}
	if s.Duration == 0 {
		s.Duration = Duration(5 * time.Second)
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("p%d-c%d", s.Producers, s.Consumers)
	}
}

// Validate rejects scenarios the harness cannot run.
func (s *Scenario) Validate() error {
	if s.Producers < 1 {
		return fmt.Errorf("needs at least one producer, got %d", s.Producers)
	}
	if s.Consumers < 1 {
		return fmt.Errorf("needs at least one consumer, got %d", s.Consumers)
	}
	switch s.Yield {
	case "spin", "threaded", "hybrid":
	default:
		return fmt.Errorf("unknown yield strategy %q", s.Yield)
	}
	return nil
}

// Defaults returns the scenario matrix used when no file is given.
func Defaults() []Scenario {
	base := []Scenario{
		{Producers: 1, Consumers: 1},
		{Producers: 2, Consumers: 1},
		{Producers: 4, Consumers: 2},
		{Producers: 1, Consumers: 3, Chained: true},
	}
	for i := range base {
		base[i].ApplyDefaults()
	}
	return base
}
