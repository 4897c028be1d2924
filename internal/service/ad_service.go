package service

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/repository"
)

// AdService defines the admin-console business logic for ads. Lifecycle
// changes go through the status transition table; the service never
// touches the running counters.
type AdService interface {
	// CRUD
	ListAds(page, limit int) (*domain.AdListResponse, error)
	GetAdByID(id string) (*domain.AdResponse, error)
	CreateAd(req *domain.CreateAdRequest) (*domain.AdResponse, error)
	UpdateAd(id string, req *domain.UpdateAdRequest) (*domain.AdResponse, error)
	DeleteAd(id string) error

	// Lifecycle
	ActivateAd(id string) (*domain.AdResponse, error)
	PauseAd(id string) (*domain.AdResponse, error)
	ResumeAd(id string) (*domain.AdResponse, error)

	// A/B tests
	GetABTest(adID string) (*domain.ABTestResponse, error)
	UpsertABTest(adID string, req *domain.UpsertABTestRequest) (*domain.ABTestResponse, error)
	DeleteABTest(adID string) error

	// Stats
	GetAdStats(id string) (*domain.AdStatsResponse, error)
}

type adService struct {
	ads    repository.AdRepository
	tests  repository.ABTestRepository
	events repository.EventRepository
}

// NewAdService creates a new AdService
func NewAdService(ads repository.AdRepository, tests repository.ABTestRepository, events repository.EventRepository) AdService {
	return &adService{ads: ads, tests: tests, events: events}
}

// ListAds retrieves ads with pagination
func (s *adService) ListAds(page, limit int) (*domain.AdListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	ads, total, err := s.ads.List(page, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]domain.AdResponse, len(ads))
	for i, ad := range ads {
		responses[i] = ad.ToResponse()
	}

	return &domain.AdListResponse{
		Ads:   responses,
		Total: int(total),
	}, nil
}

// GetAdByID retrieves an ad by ID
func (s *adService) GetAdByID(id string) (*domain.AdResponse, error) {
	ad, err := s.ads.FindByID(id)
	if err != nil {
		return nil, err
	}

	resp := ad.ToResponse()
	return &resp, nil
}

// CreateAd creates a new ad in draft status
func (s *adService) CreateAd(req *domain.CreateAdRequest) (*domain.AdResponse, error) {
	if !req.CreativeType.IsValid() {
		return nil, fmt.Errorf("%w: unknown creative type %q", common.ErrInvalidInput, req.CreativeType)
	}
	if req.EndAt != nil && !req.EndAt.After(req.StartAt) {
		return nil, fmt.Errorf("%w: end must be after start", common.ErrInvalidInput)
	}

	budget, err := parseNullDecimal(req.Budget, "budget")
	if err != nil {
		return nil, err
	}
	cpm, err := parseNullDecimal(req.CPM, "cpm")
	if err != nil {
		return nil, err
	}
	cpc, err := parseNullDecimal(req.CPC, "cpc")
	if err != nil {
		return nil, err
	}
	if cpm.Valid && cpc.Valid {
		return nil, fmt.Errorf("%w: at most one of cpm and cpc may be set", common.ErrInvalidInput)
	}

	priority := req.Priority
	if priority < 1 {
		priority = 1
	}
	weight := req.Weight
	if weight <= 0 {
		weight = 1
	}

	ad := &domain.Ad{
		AdvertiserID:    req.AdvertiserID,
		Title:           req.Title,
		CreativeType:    req.CreativeType,
		MediaURL:        req.MediaURL,
		TargetURL:       req.TargetURL,
		AltText:         req.AltText,
		Width:           req.Width,
		Height:          req.Height,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		Priority:        priority,
		Weight:          weight,
		MaxImpressions:  req.MaxImpressions,
		MaxClicks:       req.MaxClicks,
		Budget:          budget,
		CPM:             cpm,
		CPC:             cpc,
		SpentAmount:     decimal.Zero,
		DeviceTargets:   req.DeviceTargets,
		PageTargets:     req.PageTargets,
		AudienceTargets: req.AudienceTargets,
		Status:          domain.AdStatusDraft,
		Memo:            req.Memo,
	}

	if err := s.ads.Create(ad); err != nil {
		return nil, err
	}

	resp := ad.ToResponse()
	return &resp, nil
}

// UpdateAd updates an ad's configuration
func (s *adService) UpdateAd(id string, req *domain.UpdateAdRequest) (*domain.AdResponse, error) {
	ad, err := s.ads.FindByID(id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		ad.Title = *req.Title
	}
	if req.CreativeType != nil {
		if !req.CreativeType.IsValid() {
			return nil, fmt.Errorf("%w: unknown creative type %q", common.ErrInvalidInput, *req.CreativeType)
		}
		ad.CreativeType = *req.CreativeType
	}
	if req.MediaURL != nil {
		ad.MediaURL = *req.MediaURL
	}
	if req.TargetURL != nil {
		ad.TargetURL = *req.TargetURL
	}
	if req.AltText != nil {
		ad.AltText = *req.AltText
	}
	if req.Width != nil {
		ad.Width = *req.Width
	}
	if req.Height != nil {
		ad.Height = *req.Height
	}
	if req.StartAt != nil {
		ad.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		ad.EndAt = req.EndAt
	}
	if req.Priority != nil && *req.Priority >= 1 {
		ad.Priority = *req.Priority
	}
	if req.Weight != nil {
		ad.Weight = *req.Weight
	}
	if req.MaxImpressions != nil {
		ad.MaxImpressions = req.MaxImpressions
	}
	if req.MaxClicks != nil {
		ad.MaxClicks = req.MaxClicks
	}
	if req.Budget != nil {
		budget, err := parseNullDecimal(req.Budget, "budget")
		if err != nil {
			return nil, err
		}
		ad.Budget = budget
	}
	if req.CPM != nil {
		cpm, err := parseNullDecimal(req.CPM, "cpm")
		if err != nil {
			return nil, err
		}
		ad.CPM = cpm
	}
	if req.CPC != nil {
		cpc, err := parseNullDecimal(req.CPC, "cpc")
		if err != nil {
			return nil, err
		}
		ad.CPC = cpc
	}
	if ad.CPM.Valid && ad.CPC.Valid {
		return nil, fmt.Errorf("%w: at most one of cpm and cpc may be set", common.ErrInvalidInput)
	}
	if req.DeviceTargets != nil {
		ad.DeviceTargets = *req.DeviceTargets
	}
	if req.PageTargets != nil {
		ad.PageTargets = *req.PageTargets
	}
	if req.AudienceTargets != nil {
		ad.AudienceTargets = *req.AudienceTargets
	}
	if req.Memo != nil {
		ad.Memo = *req.Memo
	}

	if err := s.ads.Update(ad); err != nil {
		return nil, err
	}

	resp := ad.ToResponse()
	return &resp, nil
}

// DeleteAd removes an ad, its assignments and its A/B test. Event
// records stay: they are immutable analytics history.
func (s *adService) DeleteAd(id string) error {
	_ = s.tests.DeleteByAd(id)
	return s.ads.Delete(id)
}

// ActivateAd promotes a draft ad to active
func (s *adService) ActivateAd(id string) (*domain.AdResponse, error) {
	return s.transition(id, domain.TriggerActivate)
}

// PauseAd pauses an active ad
func (s *adService) PauseAd(id string) (*domain.AdResponse, error) {
	return s.transition(id, domain.TriggerPause)
}

// ResumeAd resumes a paused ad
func (s *adService) ResumeAd(id string) (*domain.AdResponse, error) {
	return s.transition(id, domain.TriggerResume)
}

// transition applies one trigger through the status table
func (s *adService) transition(id string, trigger domain.StatusTrigger) (*domain.AdResponse, error) {
	ad, err := s.ads.FindByID(id)
	if err != nil {
		return nil, err
	}

	next, ok := domain.NextStatus(ad.Status, trigger)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not apply to %s", common.ErrInvalidTransition, trigger, ad.Status)
	}

	if err := s.ads.UpdateStatus(id, ad.Status, next); err != nil {
		return nil, err
	}

	ad.Status = next
	resp := ad.ToResponse()
	return &resp, nil
}

// GetABTest retrieves the ad's A/B configuration
func (s *adService) GetABTest(adID string) (*domain.ABTestResponse, error) {
	if _, err := s.ads.FindByID(adID); err != nil {
		return nil, err
	}
	test, err := s.tests.FindByAd(adID)
	if err != nil {
		return nil, err
	}
	resp := test.ToResponse()
	return &resp, nil
}

// UpsertABTest attaches or replaces the ad's A/B configuration. The
// split is validated up front so a broken configuration never reaches
// the delivery path.
func (s *adService) UpsertABTest(adID string, req *domain.UpsertABTestRequest) (*domain.ABTestResponse, error) {
	if _, err := s.ads.FindByID(adID); err != nil {
		return nil, err
	}
	if err := ValidateSplit(req.Variants); err != nil {
		return nil, err
	}

	test := &domain.ABTest{
		AdID:          adID,
		Name:          req.Name,
		SuccessMetric: req.SuccessMetric,
		EndsAt:        req.EndsAt,
	}
	for _, v := range req.Variants {
		test.Variants = append(test.Variants, domain.ABVariant{
			Name:         v.Name,
			SplitPercent: v.SplitPercent,
			Title:        v.Title,
			MediaURL:     v.MediaURL,
			TargetURL:    v.TargetURL,
		})
	}

	if err := s.tests.Upsert(test); err != nil {
		return nil, err
	}

	resp := test.ToResponse()
	return &resp, nil
}

// DeleteABTest removes the ad's A/B configuration
func (s *adService) DeleteABTest(adID string) error {
	return s.tests.DeleteByAd(adID)
}

// GetAdStats computes the per-ad delivery stats for the admin console
func (s *adService) GetAdStats(id string) (*domain.AdStatsResponse, error) {
	ad, err := s.ads.FindByID(id)
	if err != nil {
		return nil, err
	}

	ctr := 0.0
	if ad.CurrentImpressions > 0 {
		ctr = float64(ad.CurrentClicks) / float64(ad.CurrentImpressions)
	}

	return &domain.AdStatsResponse{
		AdID:        ad.ID,
		Impressions: ad.CurrentImpressions,
		Clicks:      ad.CurrentClicks,
		CTR:         ctr,
		SpentAmount: ad.SpentAmount,
		Status:      ad.Status,
	}, nil
}

// parseNullDecimal parses an optional money field from its string form
func parseNullDecimal(s *string, field string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: invalid %s %q", common.ErrInvalidInput, field, *s)
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s must not be negative", common.ErrInvalidInput, field)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
