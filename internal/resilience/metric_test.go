package resilience

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLoss(t *testing.T) {
	tests := []struct {
		name     string
		loss     float64
		recovery float64
		want     float64
	}{
		{"declared contract", 40, 30, 600},
		{"observed outage", 40, 90, 1800},
		{"fractional", 12.5, 3, 18.75},
		{"no loss", 0, 300, 0},
		{"instant recovery", 80, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeLoss(tt.loss, tt.recovery)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestComputeLossIsMonotonic(t *testing.T) {
	prev := 0.0
	for r := 0.0; r <= 120; r += 10 {
		got, err := ComputeLoss(25, r)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestComputeLossRejectsInvalidInput(t *testing.T) {
	for _, in := range [][2]float64{{-1, 10}, {10, -1}, {math.NaN(), 1}, {1, math.Inf(1)}} {
		_, err := ComputeLoss(in[0], in[1])
		assert.True(t, errors.Is(err, ErrInvalidMeasurement), "input %v", in)
	}
}

func TestResolveMaxLor(t *testing.T) {
	got, err := ResolveMaxLor(nil, 40, 30)
	require.NoError(t, err)
	assert.Equal(t, 600.0, got)

	declared := 250.0
	got, err = ResolveMaxLor(&declared, 40, 30)
	require.NoError(t, err)
	assert.Equal(t, 250.0, got)

	negative := -5.0
	_, err = ResolveMaxLor(&negative, 40, 30)
	assert.True(t, errors.Is(err, ErrInvalidMeasurement))
}
