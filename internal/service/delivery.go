package service

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/repository"
	"github.com/vantagemedia/adserver/pkg/logger"
)

var (
	adsServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_served_total",
			Help: "Total number of ads served per zone",
		},
		[]string{"zone"},
	)

	adSelectionEmptyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_selection_empty_total",
			Help: "Delivery requests that found no eligible ad",
		},
		[]string{"zone"},
	)
)

// DeliveryService is the engine's public entry point: select an ad for
// a zone, and record the events the caller reports back afterwards.
// Selection performs no writes; metering is the only mutation path.
type DeliveryService interface {
	GetAdForZone(ctx context.Context, zoneSlug string, vctx domain.ViewContext) (*domain.DeliveredAd, error)

	// GetAdsForZone fills the zone's slots: up to max_ads distinct ads
	GetAdsForZone(ctx context.Context, zoneSlug string, vctx domain.ViewContext) ([]*domain.DeliveredAd, error)
	RecordImpression(ctx context.Context, ref domain.DeliveryRef, vctx domain.ViewContext) error
	RecordClick(ctx context.Context, ref domain.DeliveryRef, vctx domain.ViewContext) error

	// ClickTarget resolves the redirect destination for a click ref,
	// honoring the delivered variant's target override
	ClickTarget(ref domain.DeliveryRef) (string, error)
}

type deliveryService struct {
	eligibility EligibilityService
	selector    *Selector
	tests       repository.ABTestRepository
	ads         repository.AdRepository
	zones       repository.ZoneRepository
	metering    MeteringService
}

// NewDeliveryService creates a new DeliveryService
func NewDeliveryService(
	eligibility EligibilityService,
	selector *Selector,
	tests repository.ABTestRepository,
	ads repository.AdRepository,
	zones repository.ZoneRepository,
	metering MeteringService,
) DeliveryService {
	return &deliveryService{
		eligibility: eligibility,
		selector:    selector,
		tests:       tests,
		ads:         ads,
		zones:       zones,
		metering:    metering,
	}
}

// GetAdForZone runs one selection cycle: eligibility filter, weighted
// pick, variant assignment. Returns (nil, nil) when nothing is eligible;
// that is a routine outcome for the caller to render a fallback on.
func (s *deliveryService) GetAdForZone(ctx context.Context, zoneSlug string, vctx domain.ViewContext) (*domain.DeliveredAd, error) {
	delivered, err := s.fill(zoneSlug, vctx, 1)
	if err != nil || len(delivered) == 0 {
		return nil, err
	}
	return delivered[0], nil
}

// GetAdsForZone fills every slot the zone offers. The zone's max_ads
// bounds the result; fewer eligible ads mean fewer slots filled.
func (s *deliveryService) GetAdsForZone(ctx context.Context, zoneSlug string, vctx domain.ViewContext) ([]*domain.DeliveredAd, error) {
	zone, err := s.zones.FindZoneBySlug(zoneSlug)
	if err != nil {
		if errors.Is(err, common.ErrZoneNotFound) {
			return nil, nil
		}
		return nil, err
	}

	slots := zone.MaxAds
	if slots < 1 {
		slots = 1
	}
	return s.fill(zoneSlug, vctx, slots)
}

// fill selects up to limit distinct ads for the zone and dresses each
// one into a DeliveredAd with its variant and ref.
func (s *deliveryService) fill(zoneSlug string, vctx domain.ViewContext, limit int) ([]*domain.DeliveredAd, error) {
	now := time.Now()

	candidates, err := s.eligibility.Eligible(zoneSlug, vctx, now)
	if err != nil {
		return nil, err
	}

	picked := s.selector.PickN(candidates, limit)
	if len(picked) == 0 {
		adSelectionEmptyTotal.WithLabelValues(zoneSlug).Inc()
		return nil, nil
	}

	delivered := make([]*domain.DeliveredAd, 0, len(picked))
	for i := range picked {
		d, err := s.deliver(&picked[i], vctx, now)
		if err != nil {
			return nil, err
		}
		delivered = append(delivered, d)
	}

	adsServedTotal.WithLabelValues(zoneSlug).Add(float64(len(delivered)))
	return delivered, nil
}

func (s *deliveryService) deliver(picked *domain.Candidate, vctx domain.ViewContext, now time.Time) (*domain.DeliveredAd, error) {
	delivered := &domain.DeliveredAd{
		AdID:         picked.Ad.ID,
		ZoneID:       picked.ZoneID,
		Title:        picked.Ad.Title,
		CreativeType: picked.Ad.CreativeType,
		MediaURL:     picked.Ad.MediaURL,
		TargetURL:    picked.Ad.TargetURL,
		AltText:      picked.Ad.AltText,
		Width:        picked.Ad.Width,
		Height:       picked.Ad.Height,
	}

	variantName, err := s.resolveVariant(picked.Ad, vctx, delivered, now)
	if err != nil {
		return nil, err
	}

	delivered.Ref = domain.NewDeliveryRef(picked.Ad.ID, picked.ZoneID, picked.AssignmentID, variantName)
	delivered.Variant = variantName
	return delivered, nil
}

// resolveVariant applies the ad's A/B configuration when one is running.
// A missing visitor key serves the base creative rather than failing
// the delivery; the caller forgot the cookie, the visitor still gets an ad.
func (s *deliveryService) resolveVariant(ad *domain.Ad, vctx domain.ViewContext, delivered *domain.DeliveredAd, now time.Time) (string, error) {
	test, err := s.tests.FindByAd(ad.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if !test.Running(now) {
		return "", nil
	}
	if vctx.VisitorKey == "" {
		logger.GetLogger().Warn().
			Str("ad_id", ad.ID).
			Msg("A/B test active but no visitor key supplied, serving base creative")
		return "", nil
	}

	variant, err := ResolveVariant(test, vctx.VisitorKey, ad.ID)
	if err != nil {
		// Operator mistake, surfaced rather than silently defaulted
		return "", err
	}

	if variant.Title != "" {
		delivered.Title = variant.Title
	}
	if variant.MediaURL != "" {
		delivered.MediaURL = variant.MediaURL
	}
	if variant.TargetURL != "" {
		delivered.TargetURL = variant.TargetURL
	}
	return variant.Name, nil
}

// RecordImpression reports one impression for a past delivery
func (s *deliveryService) RecordImpression(ctx context.Context, ref domain.DeliveryRef, vctx domain.ViewContext) error {
	return s.metering.RecordImpression(ctx, ref, vctx)
}

// RecordClick reports one click for a past delivery
func (s *deliveryService) RecordClick(ctx context.Context, ref domain.DeliveryRef, vctx domain.ViewContext) error {
	return s.metering.RecordClick(ctx, ref, vctx)
}

// ClickTarget resolves the redirect URL for a click-through
func (s *deliveryService) ClickTarget(ref domain.DeliveryRef) (string, error) {
	adID, _, _, variantName, err := ref.Decode()
	if err != nil {
		return "", common.ErrInvalidDeliveryRef
	}

	ad, err := s.ads.FindByID(adID)
	if err != nil {
		return "", err
	}
	target := ad.TargetURL

	if variantName != "" {
		test, err := s.tests.FindByAd(adID)
		if err == nil {
			for _, v := range test.Variants {
				if v.Name == variantName && v.TargetURL != "" {
					target = v.TargetURL
					break
				}
			}
		}
	}

	if target == "" {
		return "", common.ErrInvalidDeliveryRef
	}
	return target, nil
}
