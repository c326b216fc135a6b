package resilience

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/domain"
)

const (
	opCreate  = "create specification"
	opUpdate  = "update specification"
	opDelete  = "delete specification"
	opShow    = "show specification"
	opObserve = "evaluate observations"
)

// Pair natural key of a specification.
type Pair struct {
	Service string `json:"service"`
	Cause   string `json:"cause"`
}

// NewSpecification a declared contract. MaxLor nil means the bound implied by
// MaxInitialLoss and RecoveryTime.
type NewSpecification struct {
	Service        string
	Cause          string
	MaxInitialLoss int64
	RecoveryTime   Duration
	MaxLor         *float64
}

// Specifications keeps specifications and their assessments consistent: each
// mutation and the evaluation it triggers run in one store transaction, the
// outcome is announced after commit.
type Specifications struct {
	store     Store
	evaluator *Evaluator
}

func NewSpecifications(store Store, evaluator *Evaluator) *Specifications {
	return &Specifications{store: store, evaluator: evaluator}
}

func (s *Specifications) Evaluator() *Evaluator {
	return s.evaluator
}

// Create stores a new specification and evaluates it.
func (s *Specifications) Create(ctx context.Context, in NewSpecification) (out *Outcome, err error) {
	start := time.Now()
	defer func() { observe(OpCreate, out, err, start) }()

	in.Service = strings.TrimSpace(in.Service)
	in.Cause = strings.TrimSpace(in.Cause)
	if in.Service == "" || in.Cause == "" {
		return nil, pairError(opCreate, in.Service, in.Cause, errors.Wrap(ErrInvalidInput, "service and cause are required"))
	}
	if in.MaxInitialLoss < 0 {
		return nil, pairError(opCreate, in.Service, in.Cause, errors.Wrapf(ErrInvalidMeasurement, "initial loss %d", in.MaxInitialLoss))
	}
	seconds, err := in.RecoveryTime.Seconds()
	if err != nil {
		return nil, pairError(opCreate, in.Service, in.Cause, err)
	}
	recovery, err := WholeSeconds(seconds)
	if err != nil {
		return nil, pairError(opCreate, in.Service, in.Cause, err)
	}
	maxLor, err := ResolveMaxLor(in.MaxLor, float64(in.MaxInitialLoss), float64(recovery))
	if err != nil {
		return nil, pairError(opCreate, in.Service, in.Cause, err)
	}

	err = s.store.Transaction(ctx, func(tx Store) error {
		svc, err := tx.GetService(ctx, in.Service)
		if err != nil {
			return err
		}
		if _, err := tx.GetSpecification(ctx, svc.ID, in.Cause); err == nil {
			return ErrConflict
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		spec := &domain.Specification{
			ServiceID:       svc.ID,
			Cause:           in.Cause,
			MaxInitialLoss:  in.MaxInitialLoss,
			MaxRecoveryTime: recovery,
			MaxLor:          maxLor,
		}
		if err := tx.CreateSpecification(ctx, spec); err != nil {
			return err
		}
		out, err = s.evaluator.withStore(tx).evaluate(ctx, declared(in.Service, spec))
		return err
	})
	if err != nil {
		return nil, pairError(opCreate, in.Service, in.Cause, err)
	}
	s.evaluator.Announce(OpCreate, out)
	return out, nil
}

// Update edits the bounds of a specification and rechecks it.
func (s *Specifications) Update(ctx context.Context, pair Pair, fields SpecificationFields) (out *Outcome, err error) {
	start := time.Now()
	defer func() { observe(OpRecheck, out, err, start) }()

	if err := validateFields(fields); err != nil {
		return nil, pairError(opUpdate, pair.Service, pair.Cause, err)
	}
	err = s.store.Transaction(ctx, func(tx Store) error {
		ev := s.evaluator.withStore(tx)
		_, spec, err := ev.lookup(ctx, pair.Service, pair.Cause)
		if err != nil {
			return err
		}
		if !fields.Empty() {
			if err := tx.UpdateSpecification(ctx, spec, fields); err != nil {
				return err
			}
		}
		out, err = ev.evaluate(ctx, declared(pair.Service, spec))
		return err
	})
	if err != nil {
		return nil, pairError(opUpdate, pair.Service, pair.Cause, err)
	}
	s.evaluator.Announce(OpRecheck, out)
	return out, nil
}

// EditInitialLoss sets max_initial_loss of the pair.
func (s *Specifications) EditInitialLoss(ctx context.Context, pair Pair, initialLoss int64) (*Outcome, error) {
	return s.Update(ctx, pair, SpecificationFields{MaxInitialLoss: &initialLoss})
}

// EditRecoveryTime sets max_recovery_time of the pair.
func (s *Specifications) EditRecoveryTime(ctx context.Context, pair Pair, d Duration) (*Outcome, error) {
	seconds, err := d.Seconds()
	if err != nil {
		return nil, pairError(opUpdate, pair.Service, pair.Cause, err)
	}
	recovery, err := WholeSeconds(seconds)
	if err != nil {
		return nil, pairError(opUpdate, pair.Service, pair.Cause, err)
	}
	return s.Update(ctx, pair, SpecificationFields{MaxRecoveryTime: &recovery})
}

// Recheck evaluates the current assessment of the pair against its bounds
// again. An observed assessment keeps its measured values, otherwise the
// declared bounds are evaluated.
func (s *Specifications) Recheck(ctx context.Context, pair Pair) (out *Outcome, err error) {
	start := time.Now()
	defer func() { observe(OpRecheck, out, err, start) }()

	err = s.store.Transaction(ctx, func(tx Store) error {
		ev := s.evaluator.withStore(tx)
		_, spec, err := ev.lookup(ctx, pair.Service, pair.Cause)
		if err != nil {
			return err
		}
		m := declared(pair.Service, spec)
		a, err := tx.GetAssessment(ctx, spec.ID)
		switch {
		case err == nil && a.Source == domain.SourceObserved:
			m = observed(pair.Service, spec, a)
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}
		out, err = ev.evaluate(ctx, m)
		return err
	})
	if err != nil {
		return nil, pairError(opUpdate, pair.Service, pair.Cause, err)
	}
	s.evaluator.Announce(OpRecheck, out)
	return out, nil
}

// Delete retracts the assessment of the pair and removes its specification.
func (s *Specifications) Delete(ctx context.Context, pair Pair) (spec *domain.Specification, err error) {
	start := time.Now()
	defer func() { observe(OpRetract, nil, err, start) }()

	err = s.store.Transaction(ctx, func(tx Store) error {
		ev := s.evaluator.withStore(tx)
		var err error
		_, spec, err = ev.lookup(ctx, pair.Service, pair.Cause)
		if err != nil {
			return err
		}
		if err := ev.RemoveResilienceLoss(ctx, pair.Service, pair.Cause); err != nil {
			return err
		}
		return tx.DeleteSpecification(ctx, spec)
	})
	if err != nil {
		return nil, pairError(opDelete, pair.Service, pair.Cause, err)
	}
	s.evaluator.publish(Event{Type: EventTypeEvaluation, Operation: OpRetract, Service: pair.Service, Cause: pair.Cause})
	return spec, nil
}

// Show returns the specification of the pair with its current assessment and
// verdict. Assessment and verdict are nil when none has been computed.
func (s *Specifications) Show(ctx context.Context, pair Pair) (*Outcome, error) {
	_, spec, err := s.evaluator.lookup(ctx, pair.Service, pair.Cause)
	if err != nil {
		return nil, pairError(opShow, pair.Service, pair.Cause, err)
	}
	out := &Outcome{Service: pair.Service, Specification: spec}
	a, err := s.store.GetAssessment(ctx, spec.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		return out, nil
	case err != nil:
		return nil, pairError(opShow, pair.Service, pair.Cause, err)
	}
	verdict, err := s.evaluator.CheckLossViolations(pair.Service, spec, a)
	if err != nil {
		return nil, err
	}
	out.Assessment = a
	out.Verdict = &verdict
	return out, nil
}

// Assessment is Show failing with ErrNotFound when no assessment exists.
func (s *Specifications) Assessment(ctx context.Context, pair Pair) (*Outcome, error) {
	out, err := s.Show(ctx, pair)
	if err != nil {
		return nil, err
	}
	if out.Assessment == nil {
		return nil, pairError(opShow, pair.Service, pair.Cause, errors.Wrap(ErrNotFound, "no resilience loss assessment"))
	}
	return out, nil
}

// EvaluateObservation evaluates the pair with the initial loss and recovery
// time observed in the ServiceData batch callID.
func (s *Specifications) EvaluateObservation(ctx context.Context, pair Pair, callID int64) (*Outcome, *Observation, error) {
	svc, err := s.store.GetService(ctx, pair.Service)
	if err != nil {
		return nil, nil, pairError(opObserve, pair.Service, pair.Cause, err)
	}
	rows, err := s.store.ListServiceData(ctx, svc.ID, callID)
	if err != nil {
		return nil, nil, pairError(opObserve, pair.Service, pair.Cause, err)
	}
	obs, err := AnalyzeObservations(rows)
	if err != nil {
		return nil, nil, pairError(opObserve, pair.Service, pair.Cause, err)
	}
	out, err := s.evaluator.Evaluate(ctx, OpObserve, Measurement{
		Service:      pair.Service,
		Cause:        pair.Cause,
		RecoveryTime: Seconds(obs.RecoveryTime),
		InitialLoss:  &obs.InitialLoss,
		CallID:       &callID,
	})
	if err != nil {
		return nil, obs, err
	}
	return out, obs, nil
}

// PairOf resolves the natural key of a specification id.
func (s *Specifications) PairOf(ctx context.Context, id int64) (Pair, error) {
	spec, err := s.store.GetSpecificationByID(ctx, id)
	if err != nil {
		return Pair{}, err
	}
	svc, err := s.store.GetServiceByID(ctx, spec.ServiceID)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Service: svc.Name, Cause: spec.Cause}, nil
}

// Pairs lists the natural keys of all specifications.
func (s *Specifications) Pairs(ctx context.Context) ([]Pair, error) {
	specs, err := s.store.ListSpecifications(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string)
	pairs := make([]Pair, 0, len(specs))
	for _, spec := range specs {
		name, ok := names[spec.ServiceID]
		if !ok {
			svc, err := s.store.GetServiceByID(ctx, spec.ServiceID)
			if err != nil {
				return nil, err
			}
			name = svc.Name
			names[spec.ServiceID] = name
		}
		pairs = append(pairs, Pair{Service: name, Cause: spec.Cause})
	}
	return pairs, nil
}

func declared(service string, spec *domain.Specification) Measurement {
	return Measurement{
		Service:      service,
		Cause:        spec.Cause,
		RecoveryTime: Seconds(float64(spec.MaxRecoveryTime)),
	}
}

func observed(service string, spec *domain.Specification, a *domain.Assessment) Measurement {
	initialLoss := a.InitialLoss
	return Measurement{
		Service:      service,
		Cause:        spec.Cause,
		RecoveryTime: Seconds(a.RecoveryTime),
		InitialLoss:  &initialLoss,
		CallID:       a.CallID,
	}
}

func validateFields(f SpecificationFields) error {
	if f.MaxInitialLoss != nil && *f.MaxInitialLoss < 0 {
		return errors.Wrapf(ErrInvalidMeasurement, "initial loss %d", *f.MaxInitialLoss)
	}
	if f.MaxRecoveryTime != nil && *f.MaxRecoveryTime < 0 {
		return errors.Wrapf(ErrInvalidMeasurement, "recovery time %d", *f.MaxRecoveryTime)
	}
	if f.MaxLor != nil {
		return checkMeasurement("max lor", *f.MaxLor)
	}
	return nil
}
