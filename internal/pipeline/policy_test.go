package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
identityFields: ["tradeId", "tradeDate"]
correlation:
  minScore: 2.0
secondaryPassTimeout: 30s
maxConcurrentPasses: 2
`), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"tradeId", "tradeDate"}, policy.IdentityFields)
	assert.Equal(t, 2.0, policy.Correlation.MinScore)
	assert.Equal(t, Duration(30*time.Second), policy.SecondaryPassTimeout)
	assert.Equal(t, 2, policy.MaxConcurrentPasses)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultPolicy().Validation.HeaderCriticalFields, policy.Validation.HeaderCriticalFields)
	assert.Equal(t, DefaultPolicy().Correlation.RateType, policy.Correlation.RateType)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadPolicyClampsConcurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxConcurrentPasses: 0\n"), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 1, policy.MaxConcurrentPasses)
}
