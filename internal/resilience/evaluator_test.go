package resilience_test

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/resilience"
)

func TestComputeResilienceLossReplacesAssessment(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "power-outage", 40, resilience.Seconds(30))
	ev := f.specs.Evaluator()
	ctx := context.Background()

	spec, a, err := ev.ComputeResilienceLoss(ctx, resilience.Measurement{
		Service:      "checkout",
		Cause:        "power-outage",
		RecoveryTime: resilience.Duration{Amount: 1, Unit: "min"},
	})
	require.NoError(t, err)
	assert.Equal(t, created.Specification.ID, spec.ID)
	assert.Equal(t, created.Assessment.ID, a.ID)
	assert.Equal(t, 1200.0, a.Lor)
	assert.Equal(t, 60.0, a.RecoveryTime)

	stored, err := f.store.GetAssessment(ctx, spec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, stored.Lor)
}

func TestComputeResilienceLossLeavesStateOnFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, "power-outage", 40, resilience.Seconds(30))
	ev := f.specs.Evaluator()
	ctx := context.Background()
	negative := -1.0
	nan := math.NaN()

	for _, m := range []resilience.Measurement{
		{Service: "checkout", Cause: "power-outage", RecoveryTime: resilience.Duration{Amount: 5, Unit: "eons"}},
		{Service: "checkout", Cause: "power-outage", RecoveryTime: resilience.Seconds(-5)},
		{Service: "checkout", Cause: "power-outage", RecoveryTime: resilience.Seconds(5), InitialLoss: &negative},
		{Service: "checkout", Cause: "power-outage", RecoveryTime: resilience.Seconds(5), InitialLoss: &nan},
	} {
		_, _, err := ev.ComputeResilienceLoss(ctx, m)
		assert.Error(t, err)
	}

	_, _, err := ev.ComputeResilienceLoss(ctx, resilience.Measurement{Service: "checkout", Cause: "flood", RecoveryTime: resilience.Seconds(5)})
	assert.True(t, errors.Is(err, resilience.ErrNotFound))

	out, err := f.specs.Assessment(ctx, powerOutage)
	require.NoError(t, err)
	assert.Equal(t, 600.0, out.Assessment.Lor)
}

func TestCheckLossViolationsWithoutAssessment(t *testing.T) {
	f := newFixture(t)
	ev := f.specs.Evaluator()

	_, err := ev.CheckLossViolations("checkout", &domain.Specification{Cause: "power-outage"}, nil)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))

	_, err = ev.CheckLossViolations("checkout", &domain.Specification{Cause: "power-outage"}, &domain.Assessment{Lor: math.Inf(1)})
	assert.True(t, errors.Is(err, resilience.ErrInvalidMeasurement))
}

func TestCheckLossViolationsWritesNothing(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "power-outage", 40, resilience.Seconds(30))
	ctx := context.Background()

	verdict, err := f.specs.Evaluator().CheckLossViolations("checkout", created.Specification, &domain.Assessment{InitialLoss: 99, RecoveryTime: 1, Lor: 49.5})
	require.NoError(t, err)
	assert.Equal(t, []resilience.Axis{resilience.AxisInitialLoss}, verdict.Axes())

	stored, err := f.store.GetAssessment(ctx, created.Specification.ID)
	require.NoError(t, err)
	assert.Equal(t, 600.0, stored.Lor)
	assert.Equal(t, 1, f.emitter.count())
}

func TestRemoveResilienceLoss(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "power-outage", 40, resilience.Seconds(30))
	ev := f.specs.Evaluator()
	ctx := context.Background()

	require.NoError(t, ev.RemoveResilienceLoss(ctx, "checkout", "power-outage"))
	require.NoError(t, ev.RemoveResilienceLoss(ctx, "checkout", "power-outage"))

	_, err := f.store.GetAssessment(ctx, created.Specification.ID)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
	_, err = f.store.GetSpecificationByID(ctx, created.Specification.ID)
	assert.NoError(t, err)

	err = ev.RemoveResilienceLoss(ctx, "checkout", "")
	assert.True(t, errors.Is(err, resilience.ErrInvalidInput))
}

func TestPairErrorMessage(t *testing.T) {
	err := &resilience.PairError{Op: "remove resilience loss", Service: "checkout", Cause: "flood", Err: resilience.ErrNotFound}
	assert.Equal(t, `remove resilience loss for cause "flood" of service "checkout": not found`, err.Error())
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}
