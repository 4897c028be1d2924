package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/repository/memory"
)

type deliveryFixture struct {
	catalog *memory.Catalog
	svc     DeliveryService
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()
	catalog := memory.NewCatalog()
	selector := NewSelector(rand.NewSource(1))
	eligibility := NewEligibilityService(catalog, catalog)
	metering := NewMeteringService(catalog, nil)
	svc := NewDeliveryService(eligibility, selector, catalog, catalog, catalog, metering)
	return &deliveryFixture{catalog: catalog, svc: svc}
}

func (f *deliveryFixture) addZone(t *testing.T, slug string) *domain.Zone {
	t.Helper()
	zone := &domain.Zone{Slug: slug, Name: slug, IsActive: true}
	require.NoError(t, f.catalog.CreateZone(zone))
	return zone
}

func (f *deliveryFixture) addAd(t *testing.T, zone *domain.Zone, ad *domain.Ad) *domain.Ad {
	t.Helper()
	if ad.Status == "" {
		ad.Status = domain.AdStatusActive
	}
	if ad.StartAt.IsZero() {
		ad.StartAt = time.Now().Add(-time.Hour)
	}
	require.NoError(t, f.catalog.Create(ad))
	require.NoError(t, f.catalog.CreateAssignment(&domain.ZoneAssignment{
		AdID:     ad.ID,
		ZoneID:   zone.ID,
		IsActive: true,
	}))
	return ad
}

func TestGetAdForZone_ServesAssignedAd(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")
	ad := f.addAd(t, zone, &domain.Ad{ID: "ad-1", Title: "Spring Sale", TargetURL: "https://example.com"})

	delivered, err := f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{})
	require.NoError(t, err)
	require.NotNil(t, delivered)
	assert.Equal(t, ad.ID, delivered.AdID)
	assert.Equal(t, "Spring Sale", delivered.Title)
	assert.NotEmpty(t, delivered.Ref)

	adID, zoneID, _, _, err := delivered.Ref.Decode()
	require.NoError(t, err)
	assert.Equal(t, ad.ID, adID)
	assert.Equal(t, zone.ID, zoneID)
}

func TestGetAdForZone_UnknownZoneIsEmpty(t *testing.T) {
	f := newDeliveryFixture(t)

	delivered, err := f.svc.GetAdForZone(context.Background(), "no-such-zone", domain.ViewContext{})
	assert.NoError(t, err)
	assert.Nil(t, delivered)
}

func TestGetAdForZone_InactiveZoneIsEmpty(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := &domain.Zone{Slug: "dark", Name: "dark", IsActive: false}
	require.NoError(t, f.catalog.CreateZone(zone))
	f.addAd(t, zone, &domain.Ad{ID: "ad-1"})

	delivered, err := f.svc.GetAdForZone(context.Background(), "dark", domain.ViewContext{})
	assert.NoError(t, err)
	assert.Nil(t, delivered)
}

func TestGetAdForZone_ZoneDeviceConstraint(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := &domain.Zone{Slug: "mobile-footer", Name: "mobile-footer", Device: domain.DeviceMobile, IsActive: true}
	require.NoError(t, f.catalog.CreateZone(zone))
	f.addAd(t, zone, &domain.Ad{ID: "ad-1"})

	delivered, err := f.svc.GetAdForZone(context.Background(), "mobile-footer", domain.ViewContext{Device: domain.DeviceDesktop})
	assert.NoError(t, err)
	assert.Nil(t, delivered)

	delivered, err = f.svc.GetAdForZone(context.Background(), "mobile-footer", domain.ViewContext{Device: domain.DeviceMobile})
	assert.NoError(t, err)
	assert.NotNil(t, delivered)
}

func TestGetAdForZone_DateWindowBoundaries(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")

	// Starts now: eligible immediately
	f.addAd(t, zone, &domain.Ad{ID: "fresh", StartAt: time.Now()})

	delivered, err := f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{})
	require.NoError(t, err)
	require.NotNil(t, delivered)
	assert.Equal(t, "fresh", delivered.AdID)
}

func TestGetAdForZone_EndedAdNotServed(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")

	end := time.Now()
	f.addAd(t, zone, &domain.Ad{ID: "ended", StartAt: end.Add(-time.Hour), EndAt: &end})

	delivered, err := f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{})
	assert.NoError(t, err)
	assert.Nil(t, delivered)
}

func TestGetAdForZone_PausedAndDraftNotServed(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")
	f.addAd(t, zone, &domain.Ad{ID: "paused", Status: domain.AdStatusPaused})
	f.addAd(t, zone, &domain.Ad{ID: "draft", Status: domain.AdStatusDraft})

	delivered, err := f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{})
	assert.NoError(t, err)
	assert.Nil(t, delivered)
}

func TestGetAdForZone_TargetingFilters(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")
	f.addAd(t, zone, &domain.Ad{ID: "mobile-only", DeviceTargets: "mobile"})

	delivered, err := f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{Device: domain.DeviceDesktop})
	assert.NoError(t, err)
	assert.Nil(t, delivered)

	delivered, err = f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{Device: domain.DeviceMobile})
	assert.NoError(t, err)
	require.NotNil(t, delivered)
	assert.Equal(t, "mobile-only", delivered.AdID)
}

func TestGetAdForZone_StopsAtImpressionCap(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")
	capLimit := int64(3)
	ad := f.addAd(t, zone, &domain.Ad{ID: "capped", MaxImpressions: &capLimit})

	ctx := context.Background()
	for i := int64(0); i < capLimit; i++ {
		delivered, err := f.svc.GetAdForZone(ctx, "home-top", domain.ViewContext{})
		require.NoError(t, err)
		require.NotNil(t, delivered)
		require.NoError(t, f.svc.RecordImpression(ctx, delivered.Ref, domain.ViewContext{}))
	}

	// Cap reached: the ad no longer serves and moved to completed
	delivered, err := f.svc.GetAdForZone(ctx, "home-top", domain.ViewContext{})
	assert.NoError(t, err)
	assert.Nil(t, delivered)

	stored, err := f.catalog.FindByID(ad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdStatusCompleted, stored.Status)
	assert.Equal(t, capLimit, stored.CurrentImpressions)
}

func TestGetAdForZone_AppliesVariantOverrides(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")
	ad := f.addAd(t, zone, &domain.Ad{ID: "ad-1", Title: "Base", TargetURL: "https://base.example.com"})

	require.NoError(t, f.catalog.Upsert(&domain.ABTest{
		AdID: ad.ID,
		Variants: []domain.ABVariant{
			{Name: "A", SplitPercent: 50},
			{Name: "B", SplitPercent: 50, Title: "Challenger", TargetURL: "https://b.example.com"},
		},
	}))

	ctx := context.Background()
	delivered, err := f.svc.GetAdForZone(ctx, "home-top", domain.ViewContext{VisitorKey: "visitor-1"})
	require.NoError(t, err)
	require.NotNil(t, delivered)
	assert.Contains(t, []string{"A", "B"}, delivered.Variant)

	if delivered.Variant == "B" {
		assert.Equal(t, "Challenger", delivered.Title)
		assert.Equal(t, "https://b.example.com", delivered.TargetURL)
	} else {
		assert.Equal(t, "Base", delivered.Title)
		assert.Equal(t, "https://base.example.com", delivered.TargetURL)
	}

	// Same visitor keeps the same variant on every request
	for i := 0; i < 20; i++ {
		again, err := f.svc.GetAdForZone(ctx, "home-top", domain.ViewContext{VisitorKey: "visitor-1"})
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, delivered.Variant, again.Variant)
	}
}

func TestGetAdForZone_NoVisitorKeyServesBaseCreative(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")
	ad := f.addAd(t, zone, &domain.Ad{ID: "ad-1", Title: "Base"})

	require.NoError(t, f.catalog.Upsert(&domain.ABTest{
		AdID: ad.ID,
		Variants: []domain.ABVariant{
			{Name: "A", SplitPercent: 100, Title: "Challenger"},
		},
	}))

	delivered, err := f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{})
	require.NoError(t, err)
	require.NotNil(t, delivered)
	assert.Empty(t, delivered.Variant)
	assert.Equal(t, "Base", delivered.Title)
}

func TestGetAdForZone_BrokenSplitSurfaces(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")
	ad := f.addAd(t, zone, &domain.Ad{ID: "ad-1"})

	require.NoError(t, f.catalog.Upsert(&domain.ABTest{
		AdID: ad.ID,
		Variants: []domain.ABVariant{
			{Name: "A", SplitPercent: 0},
		},
	}))

	_, err := f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{VisitorKey: "visitor-1"})
	assert.ErrorIs(t, err, common.ErrInvalidTrafficSplit)
}

func TestClickTarget_VariantOverride(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")
	ad := f.addAd(t, zone, &domain.Ad{ID: "ad-1", TargetURL: "https://base.example.com"})

	require.NoError(t, f.catalog.Upsert(&domain.ABTest{
		AdID: ad.ID,
		Variants: []domain.ABVariant{
			{Name: "B", SplitPercent: 100, TargetURL: "https://b.example.com"},
		},
	}))

	target, err := f.svc.ClickTarget(domain.NewDeliveryRef(ad.ID, zone.ID, "", "B"))
	require.NoError(t, err)
	assert.Equal(t, "https://b.example.com", target)

	target, err = f.svc.ClickTarget(domain.NewDeliveryRef(ad.ID, zone.ID, "", ""))
	require.NoError(t, err)
	assert.Equal(t, "https://base.example.com", target)
}

func TestClickTarget_BadRef(t *testing.T) {
	f := newDeliveryFixture(t)

	_, err := f.svc.ClickTarget(domain.DeliveryRef("garbage"))
	assert.ErrorIs(t, err, common.ErrInvalidDeliveryRef)
}

func TestGetAdForZone_PriorityOverrideFromAssignment(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := f.addZone(t, "home-top")

	low := &domain.Ad{ID: "low", Status: domain.AdStatusActive, StartAt: time.Now().Add(-time.Hour), Priority: 1}
	require.NoError(t, f.catalog.Create(low))
	boost := 9
	require.NoError(t, f.catalog.CreateAssignment(&domain.ZoneAssignment{
		AdID: low.ID, ZoneID: zone.ID, IsActive: true, PriorityOverride: &boost,
	}))

	f.addAd(t, zone, &domain.Ad{ID: "high", Priority: 5})

	for i := 0; i < 50; i++ {
		delivered, err := f.svc.GetAdForZone(context.Background(), "home-top", domain.ViewContext{})
		require.NoError(t, err)
		require.NotNil(t, delivered)
		assert.Equal(t, "low", delivered.AdID)
	}
}

func TestGetAdsForZone_HonorsZoneSlotCount(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := &domain.Zone{Slug: "home-sidebar", Name: "sidebar", MaxAds: 2, IsActive: true}
	require.NoError(t, f.catalog.CreateZone(zone))
	f.addAd(t, zone, &domain.Ad{ID: "ad-1"})
	f.addAd(t, zone, &domain.Ad{ID: "ad-2"})
	f.addAd(t, zone, &domain.Ad{ID: "ad-3"})

	delivered, err := f.svc.GetAdsForZone(context.Background(), "home-sidebar", domain.ViewContext{})
	require.NoError(t, err)
	require.Len(t, delivered, 2)
	assert.NotEqual(t, delivered[0].AdID, delivered[1].AdID)
	assert.NotEmpty(t, delivered[0].Ref)
	assert.NotEmpty(t, delivered[1].Ref)
}

func TestGetAdsForZone_FewerEligibleThanSlots(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := &domain.Zone{Slug: "home-sidebar", Name: "sidebar", MaxAds: 3, IsActive: true}
	require.NoError(t, f.catalog.CreateZone(zone))
	f.addAd(t, zone, &domain.Ad{ID: "ad-1"})

	delivered, err := f.svc.GetAdsForZone(context.Background(), "home-sidebar", domain.ViewContext{})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, "ad-1", delivered[0].AdID)
}

func TestGetAdsForZone_UnknownZoneIsEmpty(t *testing.T) {
	f := newDeliveryFixture(t)

	delivered, err := f.svc.GetAdsForZone(context.Background(), "no-such-zone", domain.ViewContext{})
	assert.NoError(t, err)
	assert.Empty(t, delivered)
}

func TestGetAdsForZone_ZeroSlotsServesOne(t *testing.T) {
	f := newDeliveryFixture(t)
	zone := &domain.Zone{Slug: "legacy", Name: "legacy", MaxAds: 0, IsActive: true}
	require.NoError(t, f.catalog.CreateZone(zone))
	f.addAd(t, zone, &domain.Ad{ID: "ad-1"})
	f.addAd(t, zone, &domain.Ad{ID: "ad-2"})

	delivered, err := f.svc.GetAdsForZone(context.Background(), "legacy", domain.ViewContext{})
	require.NoError(t, err)
	assert.Len(t, delivered, 1)
}
