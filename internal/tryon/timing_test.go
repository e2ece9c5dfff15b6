package tryon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundSecondsToMs(t *testing.T) {
	assert.Equal(t, 0, roundSecondsToMs(0))
	assert.Equal(t, 0, roundSecondsToMs(-5))
	assert.Equal(t, 100, roundSecondsToMs(0.1))
	assert.Equal(t, 1500, roundSecondsToMs(1.5))
	assert.Equal(t, 41700, roundSecondsToMs(41.7))
	// Rounds to nearest, not truncates.
	assert.Equal(t, 1235, roundSecondsToMs(1.2345))
	// Nonzero but sub-millisecond stays distinguishable from unreported.
	assert.Equal(t, 1, roundSecondsToMs(0.0002))
}
