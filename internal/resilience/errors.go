package resilience

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrInvalidUnit        = errors.New("invalid duration unit")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrConflict           = errors.New("specification already exists")
)

// PairError attributes a failure to the (service, cause) pair it happened on.
type PairError struct {
	Op      string
	Service string
	Cause   string
	Err     error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("%s for cause %q of service %q: %v", e.Op, e.Cause, e.Service, e.Err)
}

func (e *PairError) Unwrap() error {
	return e.Err
}

func pairError(op, service, cause string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PairError
	if errors.As(err, &pe) {
		return err
	}
	return &PairError{Op: op, Service: service, Cause: cause, Err: err}
}
