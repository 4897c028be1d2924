package service

import (
	"errors"
	"time"

	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/repository"
)

// EligibilityService reduces the catalog to the ads eligible for a zone
// and view context. It performs no writes; an empty result is a normal
// outcome, not an error.
type EligibilityService interface {
	Eligible(zoneSlug string, ctx domain.ViewContext, now time.Time) ([]domain.Candidate, error)
}

type eligibilityService struct {
	ads   repository.AdRepository
	zones repository.ZoneRepository
}

// NewEligibilityService creates a new EligibilityService
func NewEligibilityService(ads repository.AdRepository, zones repository.ZoneRepository) EligibilityService {
	return &eligibilityService{ads: ads, zones: zones}
}

// Eligible returns the candidates that pass every filter: active
// assignment to the zone, active status, date window containing now,
// caps with headroom, and targeting criteria matching the context.
// An unknown zone yields an empty set, since "no ad to show" is routine.
func (s *eligibilityService) Eligible(zoneSlug string, ctx domain.ViewContext, now time.Time) ([]domain.Candidate, error) {
	zone, err := s.zones.FindZoneBySlug(zoneSlug)
	if err != nil {
		if errors.Is(err, common.ErrZoneNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !zone.IsActive || !zone.AcceptsDevice(ctx.Device) {
		return nil, nil
	}

	// Assignment, status and date window are prefiltered by the catalog
	candidates, err := s.ads.FindEligible(zoneSlug, now)
	if err != nil {
		if errors.Is(err, common.ErrZoneNotFound) {
			return nil, nil
		}
		return nil, err
	}

	eligible := candidates[:0]
	for _, c := range candidates {
		if !c.Ad.WithinCaps() {
			continue
		}
		if !c.Ad.MatchesContext(ctx) {
			continue
		}
		eligible = append(eligible, c)
	}

	return eligible, nil
}
