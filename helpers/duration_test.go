package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("30s")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = ParseDuration("2d")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)

	_, err = ParseDuration("")
	assert.Error(t, err)

	_, err = ParseDuration("bogus")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"200k", 200 * 1024},
		{"200K", 200 * 1024},
		{"10m", 10 * 1024 * 1024},
		{"1gb", 1024 * 1024 * 1024},
		{"512", 512},
	}

	for _, tt := range tests {
		n, err := ParseSize(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.expected, n, "input %q", tt.input)
	}

	_, err := ParseSize("")
	assert.Error(t, err)
	_, err = ParseSize("-5k")
	assert.Error(t, err)
}
