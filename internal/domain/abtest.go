package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ABTest is an A/B configuration attached to an ad. An ad has at most
// one test; the declared success metric is informational only.
// Table: ab_tests
type ABTest struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	AdID          string     `gorm:"column:ad_id;uniqueIndex" json:"ad_id"`
	Name          string     `gorm:"column:name" json:"name"`
	SuccessMetric string     `gorm:"column:success_metric" json:"success_metric,omitempty"`
	EndsAt        *time.Time `gorm:"column:ends_at" json:"ends_at,omitempty"`

	Variants []ABVariant `gorm:"foreignKey:TestID" json:"variants"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for ABTest model
func (ABTest) TableName() string {
	return "ab_tests"
}

// BeforeCreate assigns a UUID if none was provided
func (t *ABTest) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// Running reports whether the test is still within its optional fixed
// duration. A test with no end date runs until removed.
func (t *ABTest) Running(now time.Time) bool {
	return t.EndsAt == nil || now.Before(*t.EndsAt)
}

// ABVariant is one creative alternative inside an A/B test. Override
// fields replace the ad's base creative when the variant is served;
// empty overrides fall through to the base value.
// Table: ab_variants
type ABVariant struct {
	ID           string  `gorm:"column:id;primaryKey" json:"id"`
	TestID       string  `gorm:"column:test_id;index" json:"test_id"`
	Name         string  `gorm:"column:name" json:"name"`
	SplitPercent float64 `gorm:"column:split_percent" json:"split_percent"`

	// Creative overrides
	Title     string `gorm:"column:title" json:"title,omitempty"`
	MediaURL  string `gorm:"column:media_url" json:"media_url,omitempty"`
	TargetURL string `gorm:"column:target_url" json:"target_url,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table name for ABVariant model
func (ABVariant) TableName() string {
	return "ab_variants"
}

// BeforeCreate assigns a UUID if none was provided
func (v *ABVariant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// ABTestResponse is the API response format for an A/B test
type ABTestResponse struct {
	ID            string              `json:"id"`
	AdID          string              `json:"ad_id"`
	Name          string              `json:"name"`
	SuccessMetric string              `json:"success_metric,omitempty"`
	EndsAt        *time.Time          `json:"ends_at,omitempty"`
	Variants      []ABVariantResponse `json:"variants"`
	CreatedAt     time.Time           `json:"created_at"`
}

// ABVariantResponse is the API response format for a variant
type ABVariantResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SplitPercent float64 `json:"split_percent"`
	Title        string  `json:"title,omitempty"`
	MediaURL     string  `json:"media_url,omitempty"`
	TargetURL    string  `json:"target_url,omitempty"`
}

// ToResponse converts ABTest to ABTestResponse
func (t *ABTest) ToResponse() ABTestResponse {
	variants := make([]ABVariantResponse, len(t.Variants))
	for i, v := range t.Variants {
		variants[i] = ABVariantResponse{
			ID:           v.ID,
			Name:         v.Name,
			SplitPercent: v.SplitPercent,
			Title:        v.Title,
			MediaURL:     v.MediaURL,
			TargetURL:    v.TargetURL,
		}
	}
	return ABTestResponse{
		ID:            t.ID,
		AdID:          t.AdID,
		Name:          t.Name,
		SuccessMetric: t.SuccessMetric,
		EndsAt:        t.EndsAt,
		Variants:      variants,
		CreatedAt:     t.CreatedAt,
	}
}

// UpsertABTestRequest is the request body for attaching an A/B test to an ad
type UpsertABTestRequest struct {
	Name          string             `json:"name" binding:"required,max=100"`
	SuccessMetric string             `json:"success_metric"`
	EndsAt        *time.Time         `json:"ends_at"`
	Variants      []ABVariantRequest `json:"variants" binding:"required,min=1,dive"`
}

// ABVariantRequest is one variant in an upsert request
type ABVariantRequest struct {
	Name         string  `json:"name" binding:"required,max=100"`
	SplitPercent float64 `json:"split_percent" binding:"required"`
	Title        string  `json:"title"`
	MediaURL     string  `json:"media_url"`
	TargetURL    string  `json:"target_url"`
}
