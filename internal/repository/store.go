package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/resilience"
	"github.com/talkincode/resilienced/pkg/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the GORM implementation of resilience.Store
type GormStore struct {
	db      *gorm.DB
	locking bool
}

var _ resilience.Store = (*GormStore)(nil)

// NewGormStore creates a new GORM-based store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (r *GormStore) GetService(ctx context.Context, name string) (*domain.Service, error) {
	var svc domain.Service
	err := r.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&svc).Error
	if err != nil {
		return nil, translate(err, "service %q", name)
	}
	return &svc, nil
}

func (r *GormStore) GetServiceByID(ctx context.Context, id int64) (*domain.Service, error) {
	var svc domain.Service
	if err := r.db.WithContext(ctx).First(&svc, id).Error; err != nil {
		return nil, translate(err, "service %d", id)
	}
	return &svc, nil
}

func (r *GormStore) GetSpecification(ctx context.Context, serviceID int64, cause string) (*domain.Specification, error) {
	var spec domain.Specification
	err := r.query(ctx).
		Where("service_id = ? AND cause = ?", serviceID, cause).
		First(&spec).Error
	if err != nil {
		return nil, translate(err, "specification for cause %q", cause)
	}
	return &spec, nil
}

func (r *GormStore) GetSpecificationByID(ctx context.Context, id int64) (*domain.Specification, error) {
	var spec domain.Specification
	if err := r.query(ctx).First(&spec, id).Error; err != nil {
		return nil, translate(err, "specification %d", id)
	}
	return &spec, nil
}

func (r *GormStore) ListSpecifications(ctx context.Context) ([]*domain.Specification, error) {
	var specs []*domain.Specification
	if err := r.db.WithContext(ctx).Order("service_id ASC, cause ASC").Find(&specs).Error; err != nil {
		return nil, translate(err, "specifications")
	}
	return specs, nil
}

func (r *GormStore) CreateSpecification(ctx context.Context, spec *domain.Specification) error {
	if spec.ID == 0 {
		spec.ID = common.UUIDint64()
	}
	if err := r.db.WithContext(ctx).Create(spec).Error; err != nil {
		return translate(err, "create specification for cause %q", spec.Cause)
	}
	return nil
}

func (r *GormStore) UpdateSpecification(ctx context.Context, spec *domain.Specification, fields resilience.SpecificationFields) error {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if fields.MaxInitialLoss != nil {
		updates["max_initial_loss"] = *fields.MaxInitialLoss
	}
	if fields.MaxRecoveryTime != nil {
		updates["max_recovery_time"] = *fields.MaxRecoveryTime
	}
	if fields.MaxLor != nil {
		updates["max_lor"] = *fields.MaxLor
	}
	result := r.db.WithContext(ctx).Model(&domain.Specification{}).Where("id = ?", spec.ID).Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "update specification %d", spec.ID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(resilience.ErrNotFound, "specification %d", spec.ID)
	}

	if fields.MaxInitialLoss != nil {
		spec.MaxInitialLoss = *fields.MaxInitialLoss
	}
	if fields.MaxRecoveryTime != nil {
		spec.MaxRecoveryTime = *fields.MaxRecoveryTime
	}
	if fields.MaxLor != nil {
		spec.MaxLor = *fields.MaxLor
	}
	spec.UpdatedAt = updates["updated_at"].(time.Time)
	return nil
}

func (r *GormStore) DeleteSpecification(ctx context.Context, spec *domain.Specification) error {
	result := r.db.WithContext(ctx).Delete(&domain.Specification{}, spec.ID)
	if result.Error != nil {
		return translate(result.Error, "delete specification %d", spec.ID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(resilience.ErrNotFound, "specification %d", spec.ID)
	}
	return nil
}

func (r *GormStore) GetAssessment(ctx context.Context, specificationID int64) (*domain.Assessment, error) {
	var a domain.Assessment
	err := r.db.WithContext(ctx).Where("specification_id = ?", specificationID).First(&a).Error
	if err != nil {
		return nil, translate(err, "resilience loss of specification %d", specificationID)
	}
	return &a, nil
}

// SaveAssessment upserts the assessment of a specification, keeping the id of
// the row it replaces.
func (r *GormStore) SaveAssessment(ctx context.Context, a *domain.Assessment) error {
	var current domain.Assessment
	err := r.db.WithContext(ctx).Where("specification_id = ?", a.SpecificationID).First(&current).Error
	switch {
	case err == nil:
		a.ID = current.ID
		a.CreatedAt = current.CreatedAt
		if err := r.db.WithContext(ctx).Save(a).Error; err != nil {
			return translate(err, "save resilience loss of specification %d", a.SpecificationID)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if a.ID == 0 {
			a.ID = common.UUIDint64()
		}
		if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
			return translate(err, "create resilience loss of specification %d", a.SpecificationID)
		}
		return nil
	default:
		return translate(err, "resilience loss of specification %d", a.SpecificationID)
	}
}

// DeleteAssessment is a no-op when the specification has no assessment.
func (r *GormStore) DeleteAssessment(ctx context.Context, specificationID int64) error {
	err := r.db.WithContext(ctx).Where("specification_id = ?", specificationID).Delete(&domain.Assessment{}).Error
	if err != nil {
		return translate(err, "delete resilience loss of specification %d", specificationID)
	}
	return nil
}

func (r *GormStore) ListServiceData(ctx context.Context, serviceID, callID int64) ([]*domain.ServiceData, error) {
	var rows []*domain.ServiceData
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND call_id = ?", serviceID, callID).
		Order("time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "service data of call %d", callID)
	}
	return rows, nil
}

// Transaction runs fn in a database transaction. On postgres, specification
// reads inside fn lock the row (SELECT ... FOR UPDATE).
func (r *GormStore) Transaction(ctx context.Context, fn func(tx resilience.Store) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormStore{db: tx, locking: strings.EqualFold(tx.Dialector.Name(), "postgres")})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return translate(err, "transaction")
	}
	return err
}

func (r *GormStore) query(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	if r.locking {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// translate maps gorm errors onto the resilience error taxonomy.
func translate(err error, format string, args ...interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrapf(resilience.ErrNotFound, format, args...)
	case IsDuplicate(err):
		return errors.Wrapf(resilience.ErrConflict, format, args...)
	default:
		return errors.Wrapf(resilience.ErrStoreUnavailable, "%s: %v", fmt.Sprintf(format, args...), err)
	}
}

// IsDuplicate reports unique constraint violations of postgres and sqlite.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
