package app

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/resilience"
	"go.uber.org/zap"
)

const defaultRecheckWorkers = 8

// RecheckFailure a pair whose recheck failed
type RecheckFailure struct {
	Service string `json:"service"`
	Cause   string `json:"cause"`
	Error   string `json:"error"`
}

// RecheckReport summary of one recheck run
type RecheckReport struct {
	Total     int              `json:"total"`
	Compliant int              `json:"compliant"`
	Violating int              `json:"violating"`
	Failed    int              `json:"failed"`
	Failures  []RecheckFailure `json:"failures"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// Recheck re-evaluates every specification on a bounded ants pool. A failing
// pair is logged and reported, the others are still evaluated.
func Recheck(ctx context.Context, specs *resilience.Specifications, workers int) (*RecheckReport, error) {
	start := time.Now()
	pairs, err := specs.Pairs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list specifications")
	}
	if workers <= 0 {
		workers = defaultRecheckWorkers
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "create recheck pool")
	}
	defer pool.Release()

	report := &RecheckReport{Total: len(pairs), Failures: []RecheckFailure{}}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(pair resilience.Pair, out *resilience.Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			report.Failed++
			report.Failures = append(report.Failures, RecheckFailure{Service: pair.Service, Cause: pair.Cause, Error: err.Error()})
			zap.L().Error("recheck failed",
				zap.String("namespace", "recheck"),
				zap.String("service", pair.Service),
				zap.String("cause", pair.Cause),
				zap.Error(err))
		case out.Verdict != nil && out.Verdict.Violating():
			report.Violating++
		default:
			report.Compliant++
		}
	}

	for _, pair := range pairs {
		pair := pair
		if ctx.Err() != nil {
			record(pair, nil, ctx.Err())
			continue
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					record(pair, nil, errors.Errorf("panic: %v", r))
				}
			}()
			out, err := specs.Recheck(ctx, pair)
			record(pair, out, err)
		})
		if err != nil {
			wg.Done()
			record(pair, nil, errors.Wrap(err, "submit recheck"))
		}
	}
	wg.Wait()

	report.Elapsed = time.Since(start)
	return report, nil
}
