package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmfuenzalida/contractreaderflow/internal/correlate"
	"github.com/jmfuenzalida/contractreaderflow/internal/merge"
	"github.com/jmfuenzalida/contractreaderflow/internal/validate"
)

// Policy collects every tunable of a pipeline run. Header precedence in
// particular is policy, not code: which fields the core pass owns was
// inferred from source documentation, so it stays configurable until
// confirmed against real two-pass conflicts.
type Policy struct {
	// IdentityFields are the header fields whose core-pass values are
	// immutable once merged.
	IdentityFields []string `yaml:"identityFields"`

	// Correlation holds the leg correlation weights and threshold.
	Correlation correlate.Weights `yaml:"correlation"`

	// Validation configures the check battery.
	Validation validate.Config `yaml:"validation"`

	// SecondaryPassTimeout bounds each secondary pass. A pass that runs
	// over is treated as failed for that pass only; the run continues.
	SecondaryPassTimeout Duration `yaml:"secondaryPassTimeout"`

	// MaxConcurrentPasses limits how many secondary passes run at once.
	MaxConcurrentPasses int `yaml:"maxConcurrentPasses"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{
		IdentityFields:       merge.DefaultIdentityFields(),
		Correlation:          correlate.DefaultWeights(),
		Validation:           validate.DefaultConfig(),
		SecondaryPassTimeout: Duration(90 * time.Second),
		MaxConcurrentPasses:  4,
	}
}

// LoadPolicy reads a YAML policy file over the defaults: absent keys keep
// their default values.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if policy.MaxConcurrentPasses < 1 {
		policy.MaxConcurrentPasses = 1
	}
	return policy, nil
}
