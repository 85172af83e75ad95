package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		got := NewInstanceID("org.example.clock@analog")
		require.False(t, seen[got], "duplicate id %s", got)
		seen[got] = true
	}
}

func TestAppID(t *testing.T) {
	assert.Equal(t, "org.example.clock", AppID("org.example.clock@analog"))
	assert.Equal(t, "org.example.weather", AppID("org.example.weather"))
}
