package mapping

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config drives the mapper. It is deliberately schema-light: header and
// leg mappings are free-form trees so a new bank layout only needs a new
// YAML file, not a code change.
type Config struct {
	DateFormat             string                       `yaml:"date_format"`
	LegAssignment          LegAssignment                `yaml:"leg_assignment"`
	HeaderMappings         map[string]any               `yaml:"header_mappings"`
	LegMappings            map[string]any               `yaml:"leg_mappings"`
	ConditionalLegMappings map[string]ConditionalFields `yaml:"conditional_leg_mappings"`
	Transformations        map[string]map[string]any    `yaml:"transformations"`
}

// LegAssignment tells the mapper which CSV column carries the leg role
// marker and which marker values mean receive and pay.
type LegAssignment struct {
	RoleField string            `yaml:"role_field"`
	Roles     map[string]string `yaml:"roles"`
}

// ConditionalFields adds fields to a leg only when its condition holds,
// e.g. a fixed rate only on fixed-rate legs.
type ConditionalFields struct {
	Condition string         `yaml:"condition"`
	Fields    map[string]any `yaml:"fields"`
}

// LoadConfig reads and validates a mapper configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mapping config %s: %w", path, err)
	}
	if cfg.LegAssignment.RoleField == "" {
		cfg.LegAssignment.RoleField = "legs[{idx}].leg_generator.rp"
	}
	if cfg.LegAssignment.Roles == nil {
		cfg.LegAssignment.Roles = map[string]string{"receive": "A", "pay": "P"}
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = "YYYY-MM-DD"
	}
	if len(cfg.HeaderMappings) == 0 {
		return nil, fmt.Errorf("mapping config %s has no header_mappings", path)
	}
	if len(cfg.LegMappings) == 0 {
		return nil, fmt.Errorf("mapping config %s has no leg_mappings", path)
	}
	return &cfg, nil
}
