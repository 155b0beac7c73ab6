package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"+15551234567", true},
		{"+447911123456", true},
		{"+123456789012345", true},
		{"+1234567890123456", false},
		{"+123456789", false},
		{"15551234567", false},
		{"+05551234567", false},
		{"+1555123456a", false},
		{"+1 555 123 4567", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.in), tt.in)
	}
}

func TestRegion(t *testing.T) {
	assert.Equal(t, "GB", Region("+447911123456"))
	assert.Equal(t, "", Region("not-a-number"))
}
