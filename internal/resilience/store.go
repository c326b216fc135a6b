package resilience

import (
	"context"

	"github.com/talkincode/resilienced/internal/domain"
)

// SpecificationFields the editable fields of a specification, nil keeps the
// current value.
type SpecificationFields struct {
	MaxInitialLoss  *int64
	MaxRecoveryTime *int64
	MaxLor          *float64
}

func (f SpecificationFields) Empty() bool {
	return f.MaxInitialLoss == nil && f.MaxRecoveryTime == nil && f.MaxLor == nil
}

// Store persistence needed by the evaluator. Lookups fail with ErrNotFound,
// backend failures with ErrStoreUnavailable.
type Store interface {
	GetService(ctx context.Context, name string) (*domain.Service, error)
	GetServiceByID(ctx context.Context, id int64) (*domain.Service, error)

	GetSpecification(ctx context.Context, serviceID int64, cause string) (*domain.Specification, error)
	GetSpecificationByID(ctx context.Context, id int64) (*domain.Specification, error)
	ListSpecifications(ctx context.Context) ([]*domain.Specification, error)
	CreateSpecification(ctx context.Context, spec *domain.Specification) error
	UpdateSpecification(ctx context.Context, spec *domain.Specification, fields SpecificationFields) error
	DeleteSpecification(ctx context.Context, spec *domain.Specification) error

	GetAssessment(ctx context.Context, specificationID int64) (*domain.Assessment, error)
	SaveAssessment(ctx context.Context, a *domain.Assessment) error
	DeleteAssessment(ctx context.Context, specificationID int64) error

	ListServiceData(ctx context.Context, serviceID, callID int64) ([]*domain.ServiceData, error)

	// Transaction runs fn against a store bound to one transaction. Reads of
	// a specification inside fn hold it until fn returns.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// Emitter broadcasts outcomes to observers. Publish must not block and has
// no delivery guarantee.
type Emitter interface {
	Publish(topic string, payload interface{})
}

type NopEmitter struct{}

func (NopEmitter) Publish(string, interface{}) {}
