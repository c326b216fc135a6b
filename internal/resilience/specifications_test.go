package resilience_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/repository"
	"github.com/talkincode/resilienced/internal/resilience"
	"github.com/talkincode/resilienced/internal/testutil"
	"gorm.io/gorm"
)

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
	events []resilience.Event
}

func (r *recordingEmitter) Publish(topic string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	if ev, ok := payload.(resilience.Event); ok {
		r.events = append(r.events, ev)
	}
}

func (r *recordingEmitter) last() resilience.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type panickingEmitter struct{}

func (panickingEmitter) Publish(string, interface{}) { panic("subscriber gone") }

type fixture struct {
	specs    *resilience.Specifications
	db       *gorm.DB
	store    *repository.GormStore
	emitter  *recordingEmitter
	services map[string]*domain.Service
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	services := testutil.SeedServices(t, db, "checkout", "payment")
	store := repository.NewGormStore(db)
	emitter := &recordingEmitter{}
	evaluator := resilience.NewEvaluator(store, emitter,
		resilience.WithTopic("vis-test"),
		resilience.WithClock(func() time.Time { return fixedNow }),
	)
	return &fixture{
		specs:    resilience.NewSpecifications(store, evaluator),
		db:       db,
		store:    store,
		emitter:  emitter,
		services: services,
	}
}

func (f *fixture) create(t *testing.T, cause string, loss int64, recovery resilience.Duration) *resilience.Outcome {
	out, err := f.specs.Create(context.Background(), resilience.NewSpecification{
		Service:        "checkout",
		Cause:          cause,
		MaxInitialLoss: loss,
		RecoveryTime:   recovery,
	})
	require.NoError(t, err)
	return out
}

var powerOutage = resilience.Pair{Service: "checkout", Cause: "power-outage"}

func TestCreateComputesDeclaredLoss(t *testing.T) {
	f := newFixture(t)

	out := f.create(t, "power-outage", 40, resilience.Duration{Amount: 30, Unit: "s"})

	assert.Equal(t, int64(30), out.Specification.MaxRecoveryTime)
	assert.Equal(t, 600.0, out.Specification.MaxLor)
	require.NotNil(t, out.Assessment)
	assert.Equal(t, 600.0, out.Assessment.Lor)
	assert.Equal(t, domain.SourceDeclared, out.Assessment.Source)
	assert.Equal(t, fixedNow, out.Assessment.EvaluatedAt)
	assert.Equal(t, resilience.StatusCompliant, out.Verdict.Status)

	require.Equal(t, 1, f.emitter.count())
	ev := f.emitter.last()
	assert.Equal(t, "vis-test", f.emitter.topics[0])
	assert.Equal(t, resilience.OpCreate, ev.Operation)
	assert.Equal(t, "power-outage", ev.Cause)
	assert.Equal(t, fixedNow, ev.Time)
}

func TestCreateNormalizesUnits(t *testing.T) {
	f := newFixture(t)

	out := f.create(t, "db-failover", 10, resilience.Duration{Amount: 2, Unit: "min"})
	assert.Equal(t, int64(120), out.Specification.MaxRecoveryTime)
	assert.Equal(t, 600.0, out.Assessment.Lor)
}

func TestCreateHonoursDeclaredMaxLor(t *testing.T) {
	f := newFixture(t)
	maxLor := 500.0

	out, err := f.specs.Create(context.Background(), resilience.NewSpecification{
		Service:        "checkout",
		Cause:          "power-outage",
		MaxInitialLoss: 40,
		RecoveryTime:   resilience.Seconds(30),
		MaxLor:         &maxLor,
	})
	require.NoError(t, err)
	assert.Equal(t, 500.0, out.Specification.MaxLor)
	assert.Equal(t, []resilience.Axis{resilience.AxisLor}, out.Verdict.Axes())
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.specs.Create(ctx, resilience.NewSpecification{Service: "checkout", Cause: " ", RecoveryTime: resilience.Seconds(1)})
	assert.True(t, errors.Is(err, resilience.ErrInvalidInput))

	_, err = f.specs.Create(ctx, resilience.NewSpecification{Service: "checkout", Cause: "x", MaxInitialLoss: -1, RecoveryTime: resilience.Seconds(1)})
	assert.True(t, errors.Is(err, resilience.ErrInvalidMeasurement))

	_, err = f.specs.Create(ctx, resilience.NewSpecification{Service: "checkout", Cause: "x", RecoveryTime: resilience.Duration{Amount: 1, Unit: "parsec"}})
	assert.True(t, errors.Is(err, resilience.ErrInvalidUnit))

	_, err = f.specs.Create(ctx, resilience.NewSpecification{Service: "inventory", Cause: "x", RecoveryTime: resilience.Seconds(1)})
	assert.True(t, errors.Is(err, resilience.ErrNotFound))

	var pe *resilience.PairError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "inventory", pe.Service)
	assert.Equal(t, "x", pe.Cause)

	assert.Zero(t, f.emitter.count())
}

func TestCreateDuplicatePairConflicts(t *testing.T) {
	f := newFixture(t)
	f.create(t, "power-outage", 40, resilience.Seconds(30))

	_, err := f.specs.Create(context.Background(), resilience.NewSpecification{
		Service: "checkout", Cause: "power-outage", MaxInitialLoss: 1, RecoveryTime: resilience.Seconds(1),
	})
	assert.True(t, errors.Is(err, resilience.ErrConflict))

	out, err := f.specs.Show(context.Background(), powerOutage)
	require.NoError(t, err)
	assert.Equal(t, int64(40), out.Specification.MaxInitialLoss)
}

func TestEvaluateObservedRecoveryViolation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "power-outage", 40, resilience.Seconds(60))
	loss := 20.0

	out, err := f.specs.Evaluator().Evaluate(context.Background(), resilience.OpObserve, resilience.Measurement{
		Service:      "checkout",
		Cause:        "power-outage",
		RecoveryTime: resilience.Seconds(90),
		InitialLoss:  &loss,
	})
	require.NoError(t, err)
	assert.Equal(t, 900.0, out.Assessment.Lor)
	assert.Equal(t, domain.SourceObserved, out.Assessment.Source)
	assert.True(t, out.Verdict.Violating())
	assert.Equal(t, []resilience.Axis{resilience.AxisRecoveryTime}, out.Verdict.Axes())

	ev := f.emitter.last()
	assert.Equal(t, resilience.OpObserve, ev.Operation)
	require.NotNil(t, ev.Verdict)
	assert.True(t, ev.Verdict.Violating())
}

func TestRecheckIsIdempotent(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "power-outage", 40, resilience.Seconds(30))
	ctx := context.Background()

	first, err := f.specs.Recheck(ctx, powerOutage)
	require.NoError(t, err)
	second, err := f.specs.Recheck(ctx, powerOutage)
	require.NoError(t, err)

	assert.Equal(t, created.Assessment.ID, second.Assessment.ID)
	assert.Equal(t, first.Assessment.Lor, second.Assessment.Lor)
	assert.Equal(t, first.Verdict, second.Verdict)
	assert.Equal(t, resilience.OpRecheck, f.emitter.last().Operation)
}

func TestRecheckKeepsObservedMeasurement(t *testing.T) {
	f := newFixture(t)
	f.create(t, "power-outage", 40, resilience.Seconds(60))
	ctx := context.Background()
	loss := 20.0
	callID := int64(9)

	_, err := f.specs.Evaluator().Evaluate(ctx, resilience.OpObserve, resilience.Measurement{
		Service:      "checkout",
		Cause:        "power-outage",
		RecoveryTime: resilience.Seconds(90),
		InitialLoss:  &loss,
		CallID:       &callID,
	})
	require.NoError(t, err)

	out, err := f.specs.Recheck(ctx, powerOutage)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceObserved, out.Assessment.Source)
	assert.Equal(t, 90.0, out.Assessment.RecoveryTime)
	assert.Equal(t, 20.0, out.Assessment.InitialLoss)
	require.NotNil(t, out.Assessment.CallID)
	assert.Equal(t, callID, *out.Assessment.CallID)
	assert.Equal(t, []resilience.Axis{resilience.AxisRecoveryTime}, out.Verdict.Axes())

	// an explicit edit still supersedes the observation
	out, err = f.specs.EditInitialLoss(ctx, powerOutage, 20)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDeclared, out.Assessment.Source)
	assert.Equal(t, 600.0, out.Assessment.Lor)
	assert.False(t, out.Verdict.Violating())
}

func TestEditRecomputesAssessment(t *testing.T) {
	f := newFixture(t)
	f.create(t, "power-outage", 40, resilience.Seconds(30))
	ctx := context.Background()

	out, err := f.specs.EditInitialLoss(ctx, powerOutage, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), out.Specification.MaxInitialLoss)
	assert.Equal(t, 750.0, out.Assessment.Lor)
	// max_lor keeps its creation value
	assert.Equal(t, []resilience.Axis{resilience.AxisLor}, out.Verdict.Axes())

	out, err = f.specs.EditRecoveryTime(ctx, powerOutage, resilience.Duration{Amount: 1, Unit: "min"})
	require.NoError(t, err)
	assert.Equal(t, int64(60), out.Specification.MaxRecoveryTime)
	assert.Equal(t, 1500.0, out.Assessment.Lor)

	_, err = f.specs.EditRecoveryTime(ctx, powerOutage, resilience.Duration{Amount: 1, Unit: "lightyear"})
	assert.True(t, errors.Is(err, resilience.ErrInvalidUnit))

	_, err = f.specs.EditInitialLoss(ctx, powerOutage, -3)
	assert.True(t, errors.Is(err, resilience.ErrInvalidMeasurement))
}

func TestDeleteRetractsAssessment(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "power-outage", 40, resilience.Seconds(30))
	ctx := context.Background()

	spec, err := f.specs.Delete(ctx, powerOutage)
	require.NoError(t, err)
	assert.Equal(t, created.Specification.ID, spec.ID)

	_, err = f.store.GetAssessment(ctx, spec.ID)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
	_, err = f.specs.Show(ctx, powerOutage)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
	_, err = f.specs.Delete(ctx, powerOutage)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))

	ev := f.emitter.last()
	assert.Equal(t, resilience.OpRetract, ev.Operation)
	assert.Nil(t, ev.Assessment)
}

func TestShowWithoutAssessment(t *testing.T) {
	f := newFixture(t)
	f.create(t, "power-outage", 40, resilience.Seconds(30))
	ctx := context.Background()

	require.NoError(t, f.specs.Evaluator().Retract(ctx, "checkout", "power-outage"))

	out, err := f.specs.Show(ctx, powerOutage)
	require.NoError(t, err)
	assert.Nil(t, out.Assessment)
	assert.Nil(t, out.Verdict)

	_, err = f.specs.Assessment(ctx, powerOutage)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestEvaluateObservation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "power-outage", 40, resilience.Seconds(60))
	svc := f.services["checkout"]
	rows := []*domain.ServiceData{
		{ID: 1, ServiceID: svc.ID, CallID: 9, Time: 0, SuccessfulTransactions: 100, AvgResponseTime: 5},
		{ID: 2, ServiceID: svc.ID, CallID: 9, Time: 10, SuccessfulTransactions: 70, FailedTransactions: 30, AvgResponseTime: 50},
		{ID: 3, ServiceID: svc.ID, CallID: 9, Time: 100, SuccessfulTransactions: 100, AvgResponseTime: 5},
	}
	require.NoError(t, f.db.Create(&rows).Error)

	out, obs, err := f.specs.EvaluateObservation(context.Background(), powerOutage, 9)
	require.NoError(t, err)
	assert.Equal(t, 30.0, obs.InitialLoss)
	assert.Equal(t, 90.0, obs.RecoveryTime)
	assert.Equal(t, 1350.0, out.Assessment.Lor)
	require.NotNil(t, out.Assessment.CallID)
	assert.Equal(t, int64(9), *out.Assessment.CallID)
	assert.Equal(t, []resilience.Axis{resilience.AxisRecoveryTime, resilience.AxisLor}, out.Verdict.Axes())

	_, _, err = f.specs.EvaluateObservation(context.Background(), powerOutage, 404)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestPairsAndPairOf(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "power-outage", 40, resilience.Seconds(30))
	ctx := context.Background()

	pair, err := f.specs.PairOf(ctx, created.Specification.ID)
	require.NoError(t, err)
	assert.Equal(t, powerOutage, pair)

	pairs, err := f.specs.Pairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []resilience.Pair{powerOutage}, pairs)

	_, err = f.specs.PairOf(ctx, 1)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestPublishPanicDoesNotFailOperation(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedServices(t, db, "checkout")
	store := repository.NewGormStore(db)
	specs := resilience.NewSpecifications(store, resilience.NewEvaluator(store, panickingEmitter{}))

	out, err := specs.Create(context.Background(), resilience.NewSpecification{
		Service: "checkout", Cause: "power-outage", MaxInitialLoss: 40, RecoveryTime: resilience.Seconds(30),
	})
	require.NoError(t, err)
	assert.Equal(t, 600.0, out.Assessment.Lor)
}
