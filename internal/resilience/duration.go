package resilience

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

const UnitSeconds = "s"

var unitSeconds = map[string]float64{
	"ms":           0.001,
	"millisecond":  0.001,
	"milliseconds": 0.001,
	"s":            1,
	"sec":          1,
	"secs":         1,
	"second":       1,
	"seconds":      1,
	"min":          60,
	"mins":         60,
	"minute":       60,
	"minutes":      60,
	"h":            3600,
	"hr":           3600,
	"hrs":          3600,
	"hour":         3600,
	"hours":        3600,
	"d":            86400,
	"day":          86400,
	"days":         86400,
	"wk":           604800,
	"week":         604800,
	"weeks":        604800,
	// calendar units use fixed lengths: a month is 30 days, a year 365
	"mo":           2592000,
	"month":        2592000,
	"months":       2592000,
	"yr":           31536000,
	"year":         31536000,
	"years":        31536000,
}

// Duration an amount of time as it arrives from operators, e.g. {30 min}.
type Duration struct {
	Amount float64 `json:"amount" mapstructure:"amount"`
	Unit   string  `json:"unit" mapstructure:"unit"`
}

// Seconds builds a Duration already expressed in seconds.
func Seconds(v float64) Duration {
	return Duration{Amount: v, Unit: UnitSeconds}
}

// Seconds normalizes the duration, see Normalize.
func (d Duration) Seconds() (float64, error) {
	return Normalize(d.Amount, d.Unit)
}

// Normalize converts amount of unit into seconds.
func Normalize(amount float64, unit string) (float64, error) {
	factor, ok := unitSeconds[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidUnit, "unit %q", unit)
	}
	if err := checkMeasurement("duration", amount); err != nil {
		return 0, err
	}
	return amount * factor, nil
}

// WholeSeconds rounds a normalized duration to the integer seconds stored on
// specifications.
func WholeSeconds(seconds float64) (int64, error) {
	if err := checkMeasurement("duration", seconds); err != nil {
		return 0, err
	}
	r := math.Round(seconds)
	if r >= math.MaxInt64 {
		return 0, errors.Wrapf(ErrInvalidMeasurement, "duration %v out of range", seconds)
	}
	return int64(r), nil
}

func checkMeasurement(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return errors.Wrapf(ErrInvalidMeasurement, "%s %v", name, v)
	}
	return nil
}
