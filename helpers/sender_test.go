package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSender(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		username    string
		namespace   string
		expected    string
	}{
		{
			name:        "Display name and address",
			displayName: "Alice Example",
			username:    "alice",
			namespace:   "sandesh",
			expected:    "Alice Example <alice@sandesh>",
		},
		{
			name:        "No display name",
			displayName: "",
			username:    "bob",
			namespace:   "sandesh",
			expected:    "bob@sandesh",
		},
		{
			name:        "Whitespace-only display name",
			displayName: "   ",
			username:    "bob",
			namespace:   "sandesh",
			expected:    "bob@sandesh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatSender(tt.displayName, tt.username, tt.namespace))
		})
	}
}

func TestParseSender(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		expectedName string
		expectedAddr string
	}{
		{
			name:         "Name and bracketed address",
			raw:          "Alice Example <alice@sandesh>",
			expectedName: "Alice Example",
			expectedAddr: "alice@sandesh",
		},
		{
			name:         "Quoted display name",
			raw:          `"Alice Example" <alice@sandesh>`,
			expectedName: "Alice Example",
			expectedAddr: "alice@sandesh",
		},
		{
			name:         "Bare address",
			raw:          "alice@sandesh",
			expectedName: "",
			expectedAddr: "alice@sandesh",
		},
		{
			name:         "Unbalanced bracket falls back to raw",
			raw:          "Broken <alice@sandesh",
			expectedName: "",
			expectedAddr: "Broken <alice@sandesh",
		},
		{
			name:         "Empty string",
			raw:          "",
			expectedName: "",
			expectedAddr: "",
		},
		{
			name:         "Nested brackets use the last pair",
			raw:          "A <b> <c@sandesh>",
			expectedName: "A <b>",
			expectedAddr: "c@sandesh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, addr := ParseSender(tt.raw)
			assert.Equal(t, tt.expectedName, name)
			assert.Equal(t, tt.expectedAddr, addr)
		})
	}
}

// Formatting then parsing must return the original identity parts.
func TestSenderRoundTrip(t *testing.T) {
	cases := []struct {
		displayName string
		username    string
		namespace   string
	}{
		{"Alice Example", "alice", "sandesh"},
		{"Bob", "bob", "example"},
		{"", "carol", "sandesh"},
	}

	for _, c := range cases {
		formatted := FormatSender(c.displayName, c.username, c.namespace)
		name, addr := ParseSender(formatted)
		assert.Equal(t, c.displayName, name)
		assert.Equal(t, JoinAddress(c.username, c.namespace), addr)
	}
}
