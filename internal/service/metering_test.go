package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/repository/memory"
)

// --- Mock AdRepository ---

type mockAdRepo struct {
	mock.Mock
}

func (m *mockAdRepo) List(page, limit int) ([]*domain.Ad, int64, error) {
	args := m.Called(page, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*domain.Ad), args.Get(1).(int64), args.Error(2)
}

func (m *mockAdRepo) FindByID(id string) (*domain.Ad, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ad), args.Error(1)
}

func (m *mockAdRepo) Create(ad *domain.Ad) error {
	return m.Called(ad).Error(0)
}

func (m *mockAdRepo) Update(ad *domain.Ad) error {
	return m.Called(ad).Error(0)
}

func (m *mockAdRepo) Delete(id string) error {
	return m.Called(id).Error(0)
}

func (m *mockAdRepo) FindEligible(zoneSlug string, now time.Time) ([]domain.Candidate, error) {
	args := m.Called(zoneSlug, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Candidate), args.Error(1)
}

func (m *mockAdRepo) UpdateStatus(id string, from, to domain.AdStatus) error {
	return m.Called(id, from, to).Error(0)
}

func (m *mockAdRepo) AtomicIncrement(event *domain.AdEvent) (*domain.AdCounters, bool, error) {
	args := m.Called(event)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.AdCounters), args.Bool(1), args.Error(2)
}

// --- Tests ---

func seedActiveAd(t *testing.T, catalog *memory.Catalog, ad *domain.Ad) *domain.Ad {
	t.Helper()
	if ad.Status == "" {
		ad.Status = domain.AdStatusActive
	}
	if ad.StartAt.IsZero() {
		ad.StartAt = time.Now().Add(-time.Hour)
	}
	require.NoError(t, catalog.Create(ad))
	return ad
}

func TestRecordImpression_CountsAndAppendsEvent(t *testing.T) {
	catalog := memory.NewCatalog()
	ad := seedActiveAd(t, catalog, &domain.Ad{ID: "ad-1"})
	svc := NewMeteringService(catalog, nil)

	ref := domain.NewDeliveryRef(ad.ID, "zone-1", "asg-1", "")
	err := svc.RecordImpression(context.Background(), ref, domain.ViewContext{Device: domain.DeviceMobile})
	assert.NoError(t, err)

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.CurrentImpressions)

	count, err := catalog.CountByAd(ad.ID, domain.EventKindImpression)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecord_ExpiresActiveAdPastWindow(t *testing.T) {
	catalog := memory.NewCatalog()
	end := time.Now().Add(-time.Minute)
	ad := seedActiveAd(t, catalog, &domain.Ad{
		ID:      "ad-1",
		StartAt: time.Now().Add(-2 * time.Hour),
		EndAt:   &end,
	})
	svc := NewMeteringService(catalog, nil)

	ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
	assert.NoError(t, svc.RecordImpression(context.Background(), ref, domain.ViewContext{}))

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdStatusExpired, stored.Status)
	assert.Zero(t, stored.CurrentImpressions)

	count, err := catalog.CountByAd(ad.ID, domain.EventKindImpression)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecord_ExpiresPausedAdPastWindow(t *testing.T) {
	catalog := memory.NewCatalog()
	end := time.Now().Add(-time.Minute)
	ad := seedActiveAd(t, catalog, &domain.Ad{
		ID:      "ad-1",
		Status:  domain.AdStatusPaused,
		StartAt: time.Now().Add(-2 * time.Hour),
		EndAt:   &end,
	})
	svc := NewMeteringService(catalog, nil)

	ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
	assert.NoError(t, svc.RecordClick(context.Background(), ref, domain.ViewContext{}))

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdStatusExpired, stored.Status)
	assert.Zero(t, stored.CurrentClicks)
}

func TestRecord_CompletedAdPastWindowStaysCompleted(t *testing.T) {
	catalog := memory.NewCatalog()
	end := time.Now().Add(-time.Minute)
	ad := seedActiveAd(t, catalog, &domain.Ad{
		ID:      "ad-1",
		Status:  domain.AdStatusCompleted,
		StartAt: time.Now().Add(-2 * time.Hour),
		EndAt:   &end,
	})
	svc := NewMeteringService(catalog, nil)

	ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
	assert.NoError(t, svc.RecordImpression(context.Background(), ref, domain.ViewContext{}))

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdStatusCompleted, stored.Status)
	assert.Zero(t, stored.CurrentImpressions)
}

func TestRecord_IdempotentReplay(t *testing.T) {
	catalog := memory.NewCatalog()
	ad := seedActiveAd(t, catalog, &domain.Ad{ID: "ad-1"})
	svc := NewMeteringService(catalog, nil)

	ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
	for i := 0; i < 5; i++ {
		assert.NoError(t, svc.RecordImpression(context.Background(), ref, domain.ViewContext{}))
	}

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.CurrentImpressions)

	count, err := catalog.CountByAd(ad.ID, domain.EventKindImpression)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecord_SameRefImpressionAndClickAreDistinct(t *testing.T) {
	catalog := memory.NewCatalog()
	ad := seedActiveAd(t, catalog, &domain.Ad{ID: "ad-1"})
	svc := NewMeteringService(catalog, nil)

	ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
	assert.NoError(t, svc.RecordImpression(context.Background(), ref, domain.ViewContext{}))
	assert.NoError(t, svc.RecordClick(context.Background(), ref, domain.ViewContext{}))

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.CurrentImpressions)
	assert.Equal(t, int64(1), stored.CurrentClicks)
}

func TestRecord_ConcurrentBurstNeverExceedsCap(t *testing.T) {
	const capLimit = 50
	const burst = 200

	catalog := memory.NewCatalog()
	maxImpressions := int64(capLimit)
	ad := seedActiveAd(t, catalog, &domain.Ad{ID: "ad-1", MaxImpressions: &maxImpressions})
	svc := NewMeteringService(catalog, nil)

	var wg sync.WaitGroup
	errs := make([]error, burst)
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
			errs[i] = svc.RecordImpression(context.Background(), ref, domain.ViewContext{})
		}(i)
	}
	wg.Wait()

	// Losing a cap race is not an error for the caller
	for _, err := range errs {
		assert.NoError(t, err)
	}

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(capLimit), stored.CurrentImpressions)
	assert.Equal(t, domain.AdStatusCompleted, stored.Status)

	// The event log agrees with the counter
	count, err := catalog.CountByAd(ad.ID, domain.EventKindImpression)
	require.NoError(t, err)
	assert.Equal(t, int64(capLimit), count)
}

func TestRecord_BudgetExhaustionCompletesAd(t *testing.T) {
	catalog := memory.NewCatalog()
	ad := seedActiveAd(t, catalog, &domain.Ad{
		ID:     "ad-1",
		Budget: decimal.NewNullDecimal(decimal.RequireFromString("10.00")),
		CPC:    decimal.NewNullDecimal(decimal.RequireFromString("2.50")),
	})
	svc := NewMeteringService(catalog, nil)

	// 4 clicks spend exactly the budget
	for i := 0; i < 4; i++ {
		ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
		assert.NoError(t, svc.RecordClick(context.Background(), ref, domain.ViewContext{}))
	}

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.CurrentClicks)
	assert.True(t, stored.SpentAmount.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, domain.AdStatusCompleted, stored.Status)

	// A fifth click is dropped by the guard, still no caller error
	ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
	assert.NoError(t, svc.RecordClick(context.Background(), ref, domain.ViewContext{}))

	stored, err = catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.CurrentClicks)
	assert.True(t, catalog.TotalSpent(ad.ID).Equal(decimal.RequireFromString("10.00")))
}

func TestRecord_BudgetGuardRefusesOverspend(t *testing.T) {
	catalog := memory.NewCatalog()
	ad := seedActiveAd(t, catalog, &domain.Ad{
		ID:     "ad-1",
		Budget: decimal.NewNullDecimal(decimal.RequireFromString("5.00")),
		CPC:    decimal.NewNullDecimal(decimal.RequireFromString("3.00")),
	})
	svc := NewMeteringService(catalog, nil)

	ref := domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
	assert.NoError(t, svc.RecordClick(context.Background(), ref, domain.ViewContext{}))

	// The second click would spend 6.00 > 5.00, so it is dropped
	ref = domain.NewDeliveryRef(ad.ID, "zone-1", "", "")
	assert.NoError(t, svc.RecordClick(context.Background(), ref, domain.ViewContext{}))

	stored, err := catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.CurrentClicks)
	assert.True(t, stored.SpentAmount.Equal(decimal.RequireFromString("3.00")))
}

func TestRecord_InvalidRef(t *testing.T) {
	svc := NewMeteringService(memory.NewCatalog(), nil)

	err := svc.RecordImpression(context.Background(), domain.DeliveryRef("garbage"), domain.ViewContext{})
	assert.ErrorIs(t, err, common.ErrInvalidDeliveryRef)
}

func TestRecord_UnknownAdMapsToInvalidRef(t *testing.T) {
	svc := NewMeteringService(memory.NewCatalog(), nil)

	ref := domain.NewDeliveryRef("no-such-ad", "zone-1", "", "")
	err := svc.RecordImpression(context.Background(), ref, domain.ViewContext{})
	assert.ErrorIs(t, err, common.ErrInvalidDeliveryRef)
}

func TestRecord_StorageErrorSurfaces(t *testing.T) {
	repo := new(mockAdRepo)
	svc := NewMeteringService(repo, nil)

	ad := &domain.Ad{ID: "ad-1", Status: domain.AdStatusActive}
	repo.On("FindByID", "ad-1").Return(ad, nil)
	storageErr := fmt.Errorf("%w: connection refused", common.ErrStorage)
	repo.On("AtomicIncrement", mock.Anything).Return(nil, false, storageErr)

	ref := domain.NewDeliveryRef("ad-1", "zone-1", "", "")
	err := svc.RecordImpression(context.Background(), ref, domain.ViewContext{})
	assert.ErrorIs(t, err, common.ErrStorage)
	repo.AssertExpectations(t)
}
