package repository

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/resilience"
	"github.com/talkincode/resilienced/internal/testutil"
)

func newStore(t *testing.T) (*GormStore, map[string]*domain.Service) {
	db := testutil.NewDB(t)
	services := testutil.SeedServices(t, db, "checkout", "payment")
	return NewGormStore(db), services
}

func TestGetServiceByName(t *testing.T) {
	store, services := newStore(t)
	ctx := context.Background()

	svc, err := store.GetService(ctx, " checkout ")
	require.NoError(t, err)
	assert.Equal(t, services["checkout"].ID, svc.ID)

	_, err = store.GetService(ctx, "inventory")
	assert.True(t, errors.Is(err, resilience.ErrNotFound))

	_, err = store.GetServiceByID(ctx, 42)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestSpecificationLifecycle(t *testing.T) {
	store, services := newStore(t)
	ctx := context.Background()
	checkout := services["checkout"]

	spec := &domain.Specification{ServiceID: checkout.ID, Cause: "power-outage", MaxInitialLoss: 40, MaxRecoveryTime: 30, MaxLor: 600}
	require.NoError(t, store.CreateSpecification(ctx, spec))
	assert.NotZero(t, spec.ID)

	got, err := store.GetSpecification(ctx, checkout.ID, "power-outage")
	require.NoError(t, err)
	assert.Equal(t, spec.ID, got.ID)
	assert.Equal(t, 600.0, got.MaxLor)

	dup := &domain.Specification{ServiceID: checkout.ID, Cause: "power-outage", MaxInitialLoss: 10}
	err = store.CreateSpecification(ctx, dup)
	assert.True(t, errors.Is(err, resilience.ErrConflict), "got %v", err)

	loss := int64(55)
	require.NoError(t, store.UpdateSpecification(ctx, got, resilience.SpecificationFields{MaxInitialLoss: &loss}))
	assert.Equal(t, int64(55), got.MaxInitialLoss)

	reloaded, err := store.GetSpecificationByID(ctx, spec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(55), reloaded.MaxInitialLoss)
	assert.Equal(t, int64(30), reloaded.MaxRecoveryTime)

	specs, err := store.ListSpecifications(ctx)
	require.NoError(t, err)
	assert.Len(t, specs, 1)

	require.NoError(t, store.DeleteSpecification(ctx, reloaded))
	_, err = store.GetSpecification(ctx, checkout.ID, "power-outage")
	assert.True(t, errors.Is(err, resilience.ErrNotFound))

	err = store.DeleteSpecification(ctx, reloaded)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
	err = store.UpdateSpecification(ctx, reloaded, resilience.SpecificationFields{MaxInitialLoss: &loss})
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestSaveAssessmentReplacesPrevious(t *testing.T) {
	store, services := newStore(t)
	ctx := context.Background()

	spec := &domain.Specification{ServiceID: services["payment"].ID, Cause: "disk-full", MaxInitialLoss: 10, MaxRecoveryTime: 60, MaxLor: 300}
	require.NoError(t, store.CreateSpecification(ctx, spec))

	first := &domain.Assessment{SpecificationID: spec.ID, ServiceID: spec.ServiceID, Cause: spec.Cause, Source: domain.SourceDeclared, InitialLoss: 10, RecoveryTime: 60, Lor: 300}
	require.NoError(t, store.SaveAssessment(ctx, first))

	second := &domain.Assessment{SpecificationID: spec.ID, ServiceID: spec.ServiceID, Cause: spec.Cause, Source: domain.SourceObserved, InitialLoss: 20, RecoveryTime: 90, Lor: 900}
	require.NoError(t, store.SaveAssessment(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := store.GetAssessment(ctx, spec.ID)
	require.NoError(t, err)
	assert.Equal(t, 900.0, got.Lor)
	assert.Equal(t, domain.SourceObserved, got.Source)

	var count int64
	require.NoError(t, store.db.Model(&domain.Assessment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.DeleteAssessment(ctx, spec.ID))
	require.NoError(t, store.DeleteAssessment(ctx, spec.ID))
	_, err = store.GetAssessment(ctx, spec.ID)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestListServiceDataOrdersByTime(t *testing.T) {
	store, services := newStore(t)
	ctx := context.Background()
	svc := services["checkout"]

	rows := []*domain.ServiceData{
		{ID: 1, ServiceID: svc.ID, CallID: 7, Time: 20, SuccessfulTransactions: 100},
		{ID: 2, ServiceID: svc.ID, CallID: 7, Time: 10, SuccessfulTransactions: 50, FailedTransactions: 50},
		{ID: 3, ServiceID: svc.ID, CallID: 8, Time: 5, SuccessfulTransactions: 100},
	}
	require.NoError(t, store.db.Create(&rows).Error)

	got, err := store.ListServiceData(ctx, svc.ID, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 10.0, got[0].Time)
	assert.Equal(t, 20.0, got[1].Time)
}

func TestTransactionRollsBack(t *testing.T) {
	store, services := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx resilience.Store) error {
		spec := &domain.Specification{ServiceID: services["checkout"].ID, Cause: "network-partition", MaxInitialLoss: 5}
		if err := tx.CreateSpecification(ctx, spec); err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, boom, err)

	_, err = store.GetSpecification(ctx, services["checkout"].ID, "network-partition")
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestIsDuplicate(t *testing.T) {
	assert.False(t, IsDuplicate(nil))
	assert.True(t, IsDuplicate(errors.New("UNIQUE constraint failed: specification.service_id")))
	assert.True(t, IsDuplicate(errors.New(`ERROR: duplicate key value violates unique constraint "idx_specification_pair"`)))
	assert.False(t, IsDuplicate(errors.New("connection refused")))
}
