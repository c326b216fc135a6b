package resilience

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/metrics"
	"go.uber.org/zap"
)

const (
	opCompute = "compute resilience loss"
	opCheck   = "check loss violations"
	opRemove  = "remove resilience loss"
)

// Measurement input of one resilience loss computation. InitialLoss is the
// observed loss; when nil the specification's max_initial_loss is used.
type Measurement struct {
	Service      string
	Cause        string
	RecoveryTime Duration
	InitialLoss  *float64
	CallID       *int64
}

func (m Measurement) source() string {
	if m.InitialLoss != nil || m.CallID != nil {
		return domain.SourceObserved
	}
	return domain.SourceDeclared
}

type Option func(*Evaluator)

// WithTopic sets the notification topic, DefaultTopic otherwise.
func WithTopic(topic string) Option {
	return func(e *Evaluator) {
		if strings.TrimSpace(topic) != "" {
			e.topic = topic
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// Evaluator computes, checks and retracts the resilience loss assessment of
// (service, cause) pairs. It keeps no state between calls.
type Evaluator struct {
	store   Store
	emitter Emitter
	topic   string
	now     func() time.Time
}

func NewEvaluator(store Store, emitter Emitter, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:   store,
		emitter: emitter,
		topic:   DefaultTopic,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.emitter == nil {
		e.emitter = NopEmitter{}
	}
	return e
}

func (e *Evaluator) Topic() string {
	return e.topic
}

func (e *Evaluator) withStore(s Store) *Evaluator {
	cp := *e
	cp.store = s
	return &cp
}

func (e *Evaluator) lookup(ctx context.Context, service, cause string) (*domain.Service, *domain.Specification, error) {
	if strings.TrimSpace(service) == "" || strings.TrimSpace(cause) == "" {
		return nil, nil, errors.Wrap(ErrInvalidInput, "service and cause are required")
	}
	svc, err := e.store.GetService(ctx, service)
	if err != nil {
		return nil, nil, err
	}
	spec, err := e.store.GetSpecification(ctx, svc.ID, cause)
	if err != nil {
		return nil, nil, err
	}
	return svc, spec, nil
}

// ComputeResilienceLoss computes the loss of resilience of the measurement and
// stores it as the current assessment of the pair, replacing any previous one.
// Nothing is stored when the computation fails.
func (e *Evaluator) ComputeResilienceLoss(ctx context.Context, m Measurement) (*domain.Specification, *domain.Assessment, error) {
	svc, spec, err := e.lookup(ctx, m.Service, m.Cause)
	if err != nil {
		return nil, nil, pairError(opCompute, m.Service, m.Cause, err)
	}
	seconds, err := m.RecoveryTime.Seconds()
	if err != nil {
		return nil, nil, pairError(opCompute, m.Service, m.Cause, err)
	}
	initialLoss := float64(spec.MaxInitialLoss)
	if m.InitialLoss != nil {
		initialLoss = *m.InitialLoss
	}
	lor, err := ComputeLoss(initialLoss, seconds)
	if err != nil {
		return nil, nil, pairError(opCompute, m.Service, m.Cause, err)
	}

	a := &domain.Assessment{
		SpecificationID: spec.ID,
		ServiceID:       svc.ID,
		Cause:           spec.Cause,
		Source:          m.source(),
		CallID:          m.CallID,
		InitialLoss:     initialLoss,
		RecoveryTime:    seconds,
		Lor:             lor,
		EvaluatedAt:     e.now(),
	}
	if err := e.store.SaveAssessment(ctx, a); err != nil {
		return nil, nil, pairError(opCompute, m.Service, m.Cause, err)
	}
	return spec, a, nil
}

// CheckLossViolations classifies an assessment against the specification's
// bounds. It writes nothing.
func (e *Evaluator) CheckLossViolations(service string, spec *domain.Specification, a *domain.Assessment) (Verdict, error) {
	if spec == nil || a == nil {
		cause := ""
		if spec != nil {
			cause = spec.Cause
		}
		return Verdict{}, pairError(opCheck, service, cause, errors.Wrap(ErrNotFound, "no assessment"))
	}
	for name, v := range map[string]float64{
		"initial loss":  a.InitialLoss,
		"recovery time": a.RecoveryTime,
		"lor":           a.Lor,
	} {
		if err := checkMeasurement(name, v); err != nil {
			return Verdict{}, pairError(opCheck, service, spec.Cause, err)
		}
	}

	verdict := Classify(BoundsOf(spec), a)
	if verdict.Violating() {
		zap.L().Warn("transient behavior specification violated",
			zap.String("namespace", "resilience"),
			zap.String("service", service),
			zap.String("cause", spec.Cause),
			zap.Float64("lor", a.Lor),
			zap.Any("violations", verdict.Violations),
		)
	} else {
		zap.L().Info("transient behavior specification compliant",
			zap.String("namespace", "resilience"),
			zap.String("service", service),
			zap.String("cause", spec.Cause),
			zap.Float64("lor", a.Lor),
		)
	}
	return verdict, nil
}

// RemoveResilienceLoss deletes the assessment of the pair.
func (e *Evaluator) RemoveResilienceLoss(ctx context.Context, service, cause string) error {
	_, spec, err := e.lookup(ctx, service, cause)
	if err != nil {
		return pairError(opRemove, service, cause, err)
	}
	if err := e.store.DeleteAssessment(ctx, spec.ID); err != nil {
		return pairError(opRemove, service, cause, err)
	}
	return nil
}

// Evaluate computes and checks the pair in one transaction, then notifies.
func (e *Evaluator) Evaluate(ctx context.Context, op Operation, m Measurement) (out *Outcome, err error) {
	start := time.Now()
	defer func() { observe(op, out, err, start) }()

	err = e.store.Transaction(ctx, func(tx Store) error {
		var txErr error
		out, txErr = e.withStore(tx).evaluate(ctx, m)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	e.Announce(op, out)
	return out, nil
}

// Retract removes the assessment of the pair, then notifies.
func (e *Evaluator) Retract(ctx context.Context, service, cause string) (err error) {
	start := time.Now()
	defer func() { observe(OpRetract, nil, err, start) }()

	if err = e.RemoveResilienceLoss(ctx, service, cause); err != nil {
		return err
	}
	e.publish(Event{Type: EventTypeEvaluation, Operation: OpRetract, Service: service, Cause: cause})
	return nil
}

func (e *Evaluator) evaluate(ctx context.Context, m Measurement) (*Outcome, error) {
	spec, a, err := e.ComputeResilienceLoss(ctx, m)
	if err != nil {
		return nil, err
	}
	verdict, err := e.CheckLossViolations(m.Service, spec, a)
	if err != nil {
		return nil, err
	}
	return &Outcome{Service: m.Service, Specification: spec, Assessment: a, Verdict: &verdict}, nil
}

// Announce publishes the outcome of a completed operation.
func (e *Evaluator) Announce(op Operation, out *Outcome) {
	if out == nil || out.Specification == nil {
		return
	}
	e.publish(Event{
		Type:       EventTypeEvaluation,
		Operation:  op,
		Service:    out.Service,
		Cause:      out.Specification.Cause,
		Assessment: out.Assessment,
		Verdict:    out.Verdict,
	})
}

func (e *Evaluator) publish(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("notification publish panic", zap.String("topic", e.topic), zap.Any("panic", r))
		}
	}()
	ev.Time = e.now()
	e.emitter.Publish(e.topic, ev)
}

func observe(op Operation, out *Outcome, err error, start time.Time) {
	outcome := metrics.OutcomeCompliant
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case op == OpRetract:
		outcome = metrics.OutcomeRetracted
	case out != nil && out.Verdict != nil && out.Verdict.Violating():
		outcome = metrics.OutcomeViolating
	}
	metrics.ObserveEvaluation(string(op), outcome, time.Since(start))
}
