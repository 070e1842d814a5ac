package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"15/03/2024", "15/03/2024", true},
		{"2024-03-15", "15/03/2024", true},
		{"2024/03/15", "15/03/2024", true},
		{" 2024-03-15 ", "15/03/2024", true},
		{"15-03-2024", "", false},
		{"not a date", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := CanonicalDate(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestNormalizedEqual(t *testing.T) {
	assert.True(t, NormalizedEqual(50000.0, 50000))
	assert.True(t, NormalizedEqual("CLP", " CLP "))
	assert.True(t, NormalizedEqual("2024-03-15", "15/03/2024"))
	assert.True(t, NormalizedEqual([]any{"USNY", "CLSA"}, []any{"USNY", "CLSA"}))

	assert.False(t, NormalizedEqual("CLP", "CLF"))
	assert.False(t, NormalizedEqual("15/03/2024", "16/03/2024"))
	assert.False(t, NormalizedEqual(50000.0, "50000"))
	assert.False(t, NormalizedEqual([]any{"USNY"}, []any{"USNY", "CLSA"}))
	assert.False(t, NormalizedEqual([]any{"CLSA", "USNY"}, []any{"USNY", "CLSA"}))
}

func TestFlatten(t *testing.T) {
	flat := Flatten(map[string]any{
		"header": map[string]any{"tradeId": "T1"},
		"legs": []any{
			map[string]any{"legId": "Pata-Activa", "businessCenters": []any{"USNY", "CLSA"}},
		},
	}, "")

	assert.Equal(t, "T1", flat["header.tradeId"])
	assert.Equal(t, "Pata-Activa", flat["legs[0].legId"])
	assert.Equal(t, "USNY", flat["legs[0].businessCenters[0]"])
	assert.Equal(t, "CLSA", flat["legs[0].businessCenters[1]"])

	assert.Equal(t,
		[]string{"header.tradeId", "legs[0].businessCenters[0]", "legs[0].businessCenters[1]", "legs[0].legId"},
		SortedPaths(flat))
}
