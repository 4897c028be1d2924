package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreativeType represents the creative format of an ad
type CreativeType string

const (
	CreativeTypeBanner    CreativeType = "banner"
	CreativeTypeVideo     CreativeType = "video"
	CreativeTypeNative    CreativeType = "native"
	CreativeTypePopup     CreativeType = "popup"
	CreativeTypeText      CreativeType = "text"
	CreativeTypeRichMedia CreativeType = "richmedia"
)

// IsValid checks whether the creative type is one of the known formats
func (t CreativeType) IsValid() bool {
	switch t {
	case CreativeTypeBanner, CreativeTypeVideo, CreativeTypeNative,
		CreativeTypePopup, CreativeTypeText, CreativeTypeRichMedia:
		return true
	}
	return false
}

// Ad represents a purchasable placement in the system
// Table: ads
type Ad struct {
	ID           string       `gorm:"column:id;primaryKey" json:"id"`
	AdvertiserID string       `gorm:"column:advertiser_id" json:"advertiser_id,omitempty"`
	Title        string       `gorm:"column:title" json:"title"`
	CreativeType CreativeType `gorm:"column:creative_type" json:"creative_type"`
	MediaURL     string       `gorm:"column:media_url" json:"media_url"`
	TargetURL    string       `gorm:"column:target_url" json:"target_url"`
	AltText      string       `gorm:"column:alt_text" json:"alt_text,omitempty"`
	Width        int          `gorm:"column:width" json:"width"`
	Height       int          `gorm:"column:height" json:"height"`

	// Scheduling: end is exclusive, nil means open-ended
	StartAt time.Time  `gorm:"column:start_at" json:"start_at"`
	EndAt   *time.Time `gorm:"column:end_at" json:"end_at,omitempty"`

	// Ranking inputs: priority is a hard tier, weight spreads traffic within a tier
	Priority int     `gorm:"column:priority;default:1" json:"priority"`
	Weight   float64 `gorm:"column:weight;default:1" json:"weight"`

	// Caps and billing. At most one of cpm/cpc is the active billing mode.
	MaxImpressions *int64              `gorm:"column:max_impressions" json:"max_impressions,omitempty"`
	MaxClicks      *int64              `gorm:"column:max_clicks" json:"max_clicks,omitempty"`
	Budget         decimal.NullDecimal `gorm:"column:budget;type:decimal(12,2)" json:"budget,omitempty"`
	CPM            decimal.NullDecimal `gorm:"column:cpm;type:decimal(12,4)" json:"cpm,omitempty"`
	CPC            decimal.NullDecimal `gorm:"column:cpc;type:decimal(12,4)" json:"cpc,omitempty"`

	// Running counters, mutated only through AtomicIncrement
	CurrentImpressions int64           `gorm:"column:current_impressions;default:0" json:"current_impressions"`
	CurrentClicks      int64           `gorm:"column:current_clicks;default:0" json:"current_clicks"`
	SpentAmount        decimal.Decimal `gorm:"column:spent_amount;type:decimal(12,4);default:0" json:"spent_amount"`

	// Targeting criteria, comma-separated. Empty matches everything.
	DeviceTargets   string `gorm:"column:device_targets" json:"device_targets,omitempty"`
	PageTargets     string `gorm:"column:page_targets" json:"page_targets,omitempty"`
	AudienceTargets string `gorm:"column:audience_targets" json:"audience_targets,omitempty"`

	Status    AdStatus  `gorm:"column:status;default:draft" json:"status"`
	Memo      string    `gorm:"column:memo" json:"memo,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for Ad model
func (Ad) TableName() string {
	return "ads"
}

// BeforeCreate assigns a UUID if none was provided
func (a *Ad) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// InWindow reports whether now falls inside [start, end).
// A nil end means the window never closes.
func (a *Ad) InWindow(now time.Time) bool {
	if now.Before(a.StartAt) {
		return false
	}
	if a.EndAt != nil && !now.Before(*a.EndAt) {
		return false
	}
	return true
}

// WithinCaps reports whether every configured cap still has headroom
func (a *Ad) WithinCaps() bool {
	if a.MaxImpressions != nil && a.CurrentImpressions >= *a.MaxImpressions {
		return false
	}
	if a.MaxClicks != nil && a.CurrentClicks >= *a.MaxClicks {
		return false
	}
	if a.Budget.Valid && a.SpentAmount.GreaterThanOrEqual(a.Budget.Decimal) {
		return false
	}
	return true
}

// EffectiveWeight returns the selection weight, treating a misconfigured
// zero or negative weight as 1 so the ad is never silently excluded
func (a *Ad) EffectiveWeight() float64 {
	if a.Weight <= 0 {
		return 1
	}
	return a.Weight
}

// ImpressionCost returns the spend delta for one impression (cpm/1000),
// or zero when the ad is not billed per impression
func (a *Ad) ImpressionCost() decimal.Decimal {
	if !a.CPM.Valid {
		return decimal.Zero
	}
	return a.CPM.Decimal.Div(decimal.NewFromInt(1000))
}

// ClickCost returns the spend delta for one click, or zero when the ad
// is not billed per click
func (a *Ad) ClickCost() decimal.Decimal {
	if !a.CPC.Valid {
		return decimal.Zero
	}
	return a.CPC.Decimal
}

// EventCost returns the spend delta for one event of the given kind
func (a *Ad) EventCost(kind EventKind) decimal.Decimal {
	if kind == EventKindClick {
		return a.ClickCost()
	}
	return a.ImpressionCost()
}

// MatchesContext evaluates the ad's targeting criteria against a view
// context. An ad with no criteria matches everything.
func (a *Ad) MatchesContext(ctx ViewContext) bool {
	if !matchesList(a.DeviceTargets, string(ctx.Device)) {
		return false
	}
	if !matchesPath(a.PageTargets, ctx.PagePath) {
		return false
	}
	if !matchesAny(a.AudienceTargets, ctx.AudienceTags) {
		return false
	}
	return true
}

// matchesList checks a comma-separated allow list; empty list allows all
func matchesList(list, value string) bool {
	if list == "" {
		return true
	}
	for _, item := range splitTargets(list) {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// matchesPath checks page path targets; a target ending in "*" is a prefix match
func matchesPath(list, path string) bool {
	if list == "" {
		return true
	}
	for _, item := range splitTargets(list) {
		if strings.HasSuffix(item, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(item, "*")) {
				return true
			}
			continue
		}
		if item == path {
			return true
		}
	}
	return false
}

// matchesAny checks whether at least one of the visitor's audience tags
// appears in the ad's audience targets
func matchesAny(list string, tags []string) bool {
	if list == "" {
		return true
	}
	for _, item := range splitTargets(list) {
		for _, tag := range tags {
			if strings.EqualFold(item, tag) {
				return true
			}
		}
	}
	return false
}

func splitTargets(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// AdResponse is the API response format for ad
type AdResponse struct {
	ID                 string          `json:"id"`
	AdvertiserID       string          `json:"advertiser_id,omitempty"`
	Title              string          `json:"title"`
	CreativeType       CreativeType    `json:"creative_type"`
	MediaURL           string          `json:"media_url"`
	TargetURL          string          `json:"target_url"`
	AltText            string          `json:"alt_text,omitempty"`
	Width              int             `json:"width"`
	Height             int             `json:"height"`
	StartAt            time.Time       `json:"start_at"`
	EndAt              *time.Time      `json:"end_at,omitempty"`
	Priority           int             `json:"priority"`
	Weight             float64         `json:"weight"`
	MaxImpressions     *int64          `json:"max_impressions,omitempty"`
	MaxClicks          *int64          `json:"max_clicks,omitempty"`
	Budget             *string         `json:"budget,omitempty"`
	CPM                *string         `json:"cpm,omitempty"`
	CPC                *string         `json:"cpc,omitempty"`
	CurrentImpressions int64           `json:"current_impressions"`
	CurrentClicks      int64           `json:"current_clicks"`
	SpentAmount        decimal.Decimal `json:"spent_amount"`
	DeviceTargets      string          `json:"device_targets,omitempty"`
	PageTargets        string          `json:"page_targets,omitempty"`
	AudienceTargets    string          `json:"audience_targets,omitempty"`
	Status             AdStatus        `json:"status"`
	Memo               string          `json:"memo,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ToResponse converts Ad to AdResponse
func (a *Ad) ToResponse() AdResponse {
	return AdResponse{
		ID:                 a.ID,
		AdvertiserID:       a.AdvertiserID,
		Title:              a.Title,
		CreativeType:       a.CreativeType,
		MediaURL:           a.MediaURL,
		TargetURL:          a.TargetURL,
		AltText:            a.AltText,
		Width:              a.Width,
		Height:             a.Height,
		StartAt:            a.StartAt,
		EndAt:              a.EndAt,
		Priority:           a.Priority,
		Weight:             a.Weight,
		MaxImpressions:     a.MaxImpressions,
		MaxClicks:          a.MaxClicks,
		Budget:             nullDecimalString(a.Budget),
		CPM:                nullDecimalString(a.CPM),
		CPC:                nullDecimalString(a.CPC),
		CurrentImpressions: a.CurrentImpressions,
		CurrentClicks:      a.CurrentClicks,
		SpentAmount:        a.SpentAmount,
		DeviceTargets:      a.DeviceTargets,
		PageTargets:        a.PageTargets,
		AudienceTargets:    a.AudienceTargets,
		Status:             a.Status,
		Memo:               a.Memo,
		CreatedAt:          a.CreatedAt,
	}
}

func nullDecimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

// AdListResponse is the response for a list of ads
type AdListResponse struct {
	Ads   []AdResponse `json:"ads"`
	Total int          `json:"total"`
}

// CreateAdRequest is the request body for creating an ad
type CreateAdRequest struct {
	AdvertiserID    string       `json:"advertiser_id"`
	Title           string       `json:"title" binding:"required,max=200"`
	CreativeType    CreativeType `json:"creative_type" binding:"required"`
	MediaURL        string       `json:"media_url" binding:"max=500"`
	TargetURL       string       `json:"target_url" binding:"max=500"`
	AltText         string       `json:"alt_text" binding:"max=255"`
	Width           int          `json:"width"`
	Height          int          `json:"height"`
	StartAt         time.Time    `json:"start_at" binding:"required"`
	EndAt           *time.Time   `json:"end_at"`
	Priority        int          `json:"priority"`
	Weight          float64      `json:"weight"`
	MaxImpressions  *int64       `json:"max_impressions"`
	MaxClicks       *int64       `json:"max_clicks"`
	Budget          *string      `json:"budget"`
	CPM             *string      `json:"cpm"`
	CPC             *string      `json:"cpc"`
	DeviceTargets   string       `json:"device_targets"`
	PageTargets     string       `json:"page_targets"`
	AudienceTargets string       `json:"audience_targets"`
	Memo            string       `json:"memo"`
}

// UpdateAdRequest is the request body for updating an ad
type UpdateAdRequest struct {
	Title           *string       `json:"title"`
	CreativeType    *CreativeType `json:"creative_type"`
	MediaURL        *string       `json:"media_url"`
	TargetURL       *string       `json:"target_url"`
	AltText         *string       `json:"alt_text"`
	Width           *int          `json:"width"`
	Height          *int          `json:"height"`
	StartAt         *time.Time    `json:"start_at"`
	EndAt           *time.Time    `json:"end_at"`
	Priority        *int          `json:"priority"`
	Weight          *float64      `json:"weight"`
	MaxImpressions  *int64        `json:"max_impressions"`
	MaxClicks       *int64        `json:"max_clicks"`
	Budget          *string       `json:"budget"`
	CPM             *string       `json:"cpm"`
	CPC             *string       `json:"cpc"`
	DeviceTargets   *string       `json:"device_targets"`
	PageTargets     *string       `json:"page_targets"`
	AudienceTargets *string       `json:"audience_targets"`
	Memo            *string       `json:"memo"`
}

// AdStatsResponse is the per-ad delivery stats for the admin console
type AdStatsResponse struct {
	AdID        string          `json:"ad_id"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	CTR         float64         `json:"ctr"`
	SpentAmount decimal.Decimal `json:"spent_amount"`
	Status      AdStatus        `json:"status"`
}
