package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorTo(t *testing.T) {
	assert.Equal(t, 1.234, FloorTo(1.2349, 3))
	assert.Equal(t, 1.0, FloorTo(1.0, 3))
	assert.Equal(t, -1.235, FloorTo(-1.2341, 3))
}

func TestCeilTo(t *testing.T) {
	assert.Equal(t, 1.235, CeilTo(1.2341, 3))
	assert.Equal(t, 1.0, CeilTo(1.0, 3))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.235, RoundTo(1.2345, 3))
	assert.Equal(t, 1.234, RoundTo(1.2344, 3))
	assert.Equal(t, -1.235, RoundTo(-1.2345, 3))
}

func TestERoundAbsorbsFloatNoise(t *testing.T) {
	assert.Equal(t, 0.3, ERound(0.1+0.2))
	assert.Equal(t, 0.5, ERound(1.0-0.5))
}
