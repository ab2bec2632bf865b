package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", "-"},
		{"abc", "****"},
		{"secret-token-1234", "********1234"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, maskToken(tt.token), tt.token)
	}
}

func TestStrategyNames(t *testing.T) {
	assert.Equal(t, "local-wins, server-wins, merge, manual", strategyNames())
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
}
