package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallerLimiter_BurstThenDeny(t *testing.T) {
	l := NewCallerLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("caller-a"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("caller-a"))
}

func TestCallerLimiter_CallersIndependent(t *testing.T) {
	l := NewCallerLimiter(1, 1)

	assert.True(t, l.Allow("caller-a"))
	assert.False(t, l.Allow("caller-a"))
	assert.True(t, l.Allow("caller-b"))
}
