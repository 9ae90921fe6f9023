package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeTokensNeverRepeat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token := NewChangeToken()
		assert.NotEmpty(t, token)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestUIDValidityIsPositive(t *testing.T) {
	assert.Positive(t, NewUIDValidity())
}

func TestUIDValidityStrictlyIncreases(t *testing.T) {
	previous := NewUIDValidity()
	for i := 0; i < 100; i++ {
		next := NewUIDValidity()
		assert.Greater(t, next, previous)
		previous = next
	}
}
