package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGCSUri(t *testing.T) {
	bucket, object, err := ParseGCSUri("gs://contract-extractions/run-1/document.json")
	require.NoError(t, err)
	assert.Equal(t, "contract-extractions", bucket)
	assert.Equal(t, "run-1/document.json", object)
}

func TestParseGCSUriInvalid(t *testing.T) {
	for _, uri := range []string{
		"http://bucket/object",
		"gs://bucket-only",
		"gs://",
		"",
	} {
		_, _, err := ParseGCSUri(uri)
		assert.Error(t, err, "uri %q", uri)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("CONTRACTREADER_TEST_VAR", "set")
	assert.Equal(t, "set", GetEnv("CONTRACTREADER_TEST_VAR", "fallback"))
	assert.Equal(t, "fallback", GetEnv("CONTRACTREADER_TEST_VAR_MISSING", "fallback"))
}
