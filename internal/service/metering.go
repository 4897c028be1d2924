package service

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/repository"
	"github.com/vantagemedia/adserver/pkg/logger"
)

var (
	adEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_events_total",
			Help: "Total number of processed delivery events",
		},
		[]string{"kind", "result"},
	)

	adCapTransitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_cap_transitions_total",
			Help: "Number of ads moved to completed by a cap",
		},
	)

	adWindowExpiriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_window_expiries_total",
			Help: "Number of ads moved to expired by their date window",
		},
	)
)

// seenRefTTL bounds how long a delivery ref stays in the redis dedupe
// fast path. The event table's unique index is the source of truth;
// redis only saves a round trip on hot retries.
const seenRefTTL = 24 * time.Hour

// MeteringService records impression and click events and keeps the
// ad's counters, spend and lifecycle status in step with them
type MeteringService interface {
	RecordImpression(ctx context.Context, ref domain.DeliveryRef, vctx domain.ViewContext) error
	RecordClick(ctx context.Context, ref domain.DeliveryRef, vctx domain.ViewContext) error
}

type meteringService struct {
	ads   repository.AdRepository
	redis *redis.Client // optional, nil disables the dedupe fast path
}

// NewMeteringService creates a new MeteringService. redisClient may be
// nil; recording stays idempotent through the event table alone.
func NewMeteringService(ads repository.AdRepository, redisClient *redis.Client) MeteringService {
	return &meteringService{ads: ads, redis: redisClient}
}

// RecordImpression records one impression for a delivered ad
func (s *meteringService) RecordImpression(ctx context.Context, ref domain.DeliveryRef, vctx domain.ViewContext) error {
	return s.record(ctx, ref, domain.EventKindImpression, vctx)
}

// RecordClick records one click for a delivered ad
func (s *meteringService) RecordClick(ctx context.Context, ref domain.DeliveryRef, vctx domain.ViewContext) error {
	return s.record(ctx, ref, domain.EventKindClick, vctx)
}

// record runs the metering unit: resolve the ref, compute the spend
// delta from the ad's billing mode, and apply the event through the
// catalog's atomic increment. A replayed ref and a lost cap race both
// come back as success to the caller; only storage failures surface.
func (s *meteringService) record(ctx context.Context, ref domain.DeliveryRef, kind domain.EventKind, vctx domain.ViewContext) error {
	adID, zoneID, assignmentID, variant, err := ref.Decode()
	if err != nil {
		return common.ErrInvalidDeliveryRef
	}

	if s.alreadySeen(ctx, ref, kind) {
		adEventsTotal.WithLabelValues(string(kind), "duplicate").Inc()
		return nil
	}

	ad, err := s.ads.FindByID(adID)
	if err != nil {
		if errors.Is(err, common.ErrAdNotFound) {
			return common.ErrInvalidDeliveryRef
		}
		return err
	}

	if !ad.InWindow(time.Now()) {
		// Late event for a closed window. The status catches up here
		// and the increment is dropped; the caller still gets success,
		// same as losing a cap race.
		s.expireByWindow(ad)
		adEventsTotal.WithLabelValues(string(kind), "window_passed").Inc()
		s.markSeen(ctx, ref, kind)
		return nil
	}

	event := &domain.AdEvent{
		Ref:          string(ref),
		Kind:         kind,
		AdID:         adID,
		ZoneID:       zoneID,
		AssignmentID: assignmentID,
		Variant:      variant,
		DeviceType:   vctx.Device,
		PagePath:     vctx.PagePath,
		Referrer:     vctx.Referrer,
		Viewport:     vctx.Viewport,
		Cost:         ad.EventCost(kind),
	}

	_, statusChanged, err := s.ads.AtomicIncrement(event)
	switch {
	case err == nil:
		adEventsTotal.WithLabelValues(string(kind), "recorded").Inc()
	case errors.Is(err, common.ErrDuplicateEvent):
		// Idempotent replay: the first recording already counted
		adEventsTotal.WithLabelValues(string(kind), "duplicate").Inc()
		err = nil
	case errors.Is(err, common.ErrCapExhausted):
		// Lost the atomic increment to a cap. Not an error for the
		// visitor-facing caller; the counter stays at the cap.
		adEventsTotal.WithLabelValues(string(kind), "cap_exhausted").Inc()
		logger.GetLogger().Debug().
			Str("ad_id", adID).
			Str("kind", string(kind)).
			Msg("metering dropped by cap guard")
		err = nil
	default:
		adEventsTotal.WithLabelValues(string(kind), "error").Inc()
		return err
	}

	s.markSeen(ctx, ref, kind)

	if statusChanged {
		adCapTransitionsTotal.Inc()
		logger.GetLogger().Info().
			Str("ad_id", adID).
			Str("kind", string(kind)).
			Msg("ad completed by cap")
	}

	return err
}

// expireByWindow fires the window_passed transition when the ad's
// status still allows it. Losing the guarded flip to a concurrent
// caller means someone else already expired the ad, which is fine.
func (s *meteringService) expireByWindow(ad *domain.Ad) {
	next, ok := domain.NextStatus(ad.Status, domain.TriggerWindowPassed)
	if !ok {
		return
	}
	if err := s.ads.UpdateStatus(ad.ID, ad.Status, next); err != nil {
		if !errors.Is(err, common.ErrInvalidTransition) {
			logger.GetLogger().Warn().
				Err(err).
				Str("ad_id", ad.ID).
				Msg("failed to expire ad past its window")
		}
		return
	}
	adWindowExpiriesTotal.Inc()
	logger.GetLogger().Info().
		Str("ad_id", ad.ID).
		Msg("ad expired by date window")
}

// alreadySeen checks the redis dedupe fast path. Best effort: any redis
// failure falls through to the unique index.
func (s *meteringService) alreadySeen(ctx context.Context, ref domain.DeliveryRef, kind domain.EventKind) bool {
	if s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, seenRefKey(ref, kind)).Result()
	return err == nil && n > 0
}

// markSeen records the ref in redis after the catalog accepted it, so a
// storage failure never leaves a ref marked without a stored event
func (s *meteringService) markSeen(ctx context.Context, ref domain.DeliveryRef, kind domain.EventKind) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Set(ctx, seenRefKey(ref, kind), 1, seenRefTTL).Err()
}

func seenRefKey(ref domain.DeliveryRef, kind domain.EventKind) string {
	return "adserver:ref:" + string(kind) + ":" + string(ref)
}
