package resilience

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		amount float64
		unit   string
		want   float64
	}{
		{30, "s", 30},
		{1500, "ms", 1.5},
		{2, "min", 120},
		{1.5, "h", 5400},
		{1, "day", 86400},
		{1, "wk", 604800},
		{1, "mo", 2592000},
		{2, "months", 5184000},
		{1, "yr", 31536000},
		{0.5, "Year", 15768000},
		{3, " Minutes ", 180},
		{0, "s", 0},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.amount, tt.unit)
		require.NoError(t, err, "%v %s", tt.amount, tt.unit)
		assert.InDelta(t, tt.want, got, 1e-9, "%v %s", tt.amount, tt.unit)
	}
}

func TestNormalizeRejectsUnknownUnit(t *testing.T) {
	_, err := Normalize(10, "fortnight")
	assert.True(t, errors.Is(err, ErrInvalidUnit))

	_, err = Normalize(10, "")
	assert.True(t, errors.Is(err, ErrInvalidUnit))
}

func TestNormalizeRejectsInvalidAmount(t *testing.T) {
	for _, amount := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := Normalize(amount, "s")
		assert.True(t, errors.Is(err, ErrInvalidMeasurement), "amount %v", amount)
	}
}

func TestDurationSeconds(t *testing.T) {
	got, err := Duration{Amount: 2, Unit: "min"}.Seconds()
	require.NoError(t, err)
	assert.Equal(t, 120.0, got)

	got, err = Seconds(42).Seconds()
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)
}

func TestWholeSeconds(t *testing.T) {
	got, err := WholeSeconds(1.5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	got, err = WholeSeconds(0.4)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	_, err = WholeSeconds(math.Inf(1))
	assert.True(t, errors.Is(err, ErrInvalidMeasurement))
	_, err = WholeSeconds(1e300)
	assert.True(t, errors.Is(err, ErrInvalidMeasurement))
}
