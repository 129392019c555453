package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 2.0, SafeDiv(4, 2, -1))
	assert.Equal(t, -1.0, SafeDiv(4, 0, -1))
	assert.Equal(t, -1.0, SafeDiv(math.NaN(), 2, -1))
	assert.Equal(t, -1.0, SafeDiv(4, math.Inf(1), -1))
	assert.Equal(t, -1.0, SafeDiv(math.MaxFloat64, 1e-300, -1))
}

func TestSafeZScore(t *testing.T) {
	assert.Equal(t, 2.0, SafeZScore(5, 1, 2))
	assert.Equal(t, 0.0, SafeZScore(5, 1, 0))
	assert.Equal(t, 0.0, SafeZScore(5, math.NaN(), 1))
	assert.Equal(t, 0.0, SafeZScore(5, 1, math.NaN()))
	assert.Equal(t, 0.0, OrZero(math.Inf(-1)))
}
