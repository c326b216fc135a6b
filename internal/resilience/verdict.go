package resilience

import (
	"github.com/talkincode/resilienced/internal/domain"
)

type Axis string

const (
	AxisInitialLoss  Axis = "initial_loss"
	AxisRecoveryTime Axis = "recovery_time"
	AxisLor          Axis = "lor"
)

type Status string

const (
	StatusCompliant Status = "compliant"
	StatusViolating Status = "violating"
)

// Bounds the declared maxima checked by a verdict. A nil bound never fails.
type Bounds struct {
	MaxInitialLoss  *float64
	MaxRecoveryTime *float64
	MaxLor          *float64
}

// BoundsOf returns the bounds declared by a specification.
func BoundsOf(spec *domain.Specification) Bounds {
	il := float64(spec.MaxInitialLoss)
	rt := float64(spec.MaxRecoveryTime)
	lor := spec.MaxLor
	return Bounds{MaxInitialLoss: &il, MaxRecoveryTime: &rt, MaxLor: &lor}
}

type Violation struct {
	Axis     Axis    `json:"axis"`
	Observed float64 `json:"observed"`
	Limit    float64 `json:"limit"`
}

type Verdict struct {
	Status     Status      `json:"status"`
	Violations []Violation `json:"violations"`
}

func (v Verdict) Violating() bool {
	return v.Status == StatusViolating
}

// Axes returns the violated axes in check order.
func (v Verdict) Axes() []Axis {
	axes := make([]Axis, 0, len(v.Violations))
	for _, violation := range v.Violations {
		axes = append(axes, violation.Axis)
	}
	return axes
}

// Classify compares an assessment with the bounds. An axis is violated when
// the observed value is strictly greater than its limit.
func Classify(b Bounds, a *domain.Assessment) Verdict {
	v := Verdict{Status: StatusCompliant, Violations: []Violation{}}
	check := func(axis Axis, observed float64, limit *float64) {
		if limit != nil && observed > *limit {
			v.Violations = append(v.Violations, Violation{Axis: axis, Observed: observed, Limit: *limit})
		}
	}
	check(AxisInitialLoss, a.InitialLoss, b.MaxInitialLoss)
	check(AxisRecoveryTime, a.RecoveryTime, b.MaxRecoveryTime)
	check(AxisLor, a.Lor, b.MaxLor)
	if len(v.Violations) > 0 {
		v.Status = StatusViolating
	}
	return v
}
