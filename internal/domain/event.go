package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind distinguishes impression and click events
type EventKind string

const (
	EventKindImpression EventKind = "impression"
	EventKindClick      EventKind = "click"
)

// AdEvent is an immutable, append-only delivery event record. Rows are
// never updated after creation; the (ref, kind) unique index makes event
// recording idempotent per delivery.
// Table: ad_events
type AdEvent struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Ref          string    `gorm:"column:ref;size:128;uniqueIndex:idx_ad_events_ref_kind" json:"ref"`
	Kind         EventKind `gorm:"column:kind;size:16;uniqueIndex:idx_ad_events_ref_kind" json:"kind"`
	AdID         string    `gorm:"column:ad_id;index" json:"ad_id"`
	ZoneID       string    `gorm:"column:zone_id;index" json:"zone_id"`
	AssignmentID string    `gorm:"column:assignment_id" json:"assignment_id"`
	Variant      string    `gorm:"column:variant" json:"variant,omitempty"`

	// Context snapshot at delivery time
	DeviceType DeviceType `gorm:"column:device_type" json:"device_type,omitempty"`
	PagePath   string     `gorm:"column:page_path;size:500" json:"page_path,omitempty"`
	Referrer   string     `gorm:"column:referrer;size:500" json:"referrer,omitempty"`
	Viewport   string     `gorm:"column:viewport;size:32" json:"viewport,omitempty"`

	Cost      decimal.Decimal `gorm:"column:cost;type:decimal(12,4);default:0" json:"cost"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table name for AdEvent model
func (AdEvent) TableName() string {
	return "ad_events"
}

// AdCounters is the counter snapshot returned by an atomic increment
type AdCounters struct {
	Impressions int64
	Clicks      int64
	Spent       decimal.Decimal
}

// AdEventResponse is the API response format for an event record
type AdEventResponse struct {
	ID         int64           `json:"id"`
	Ref        string          `json:"ref"`
	Kind       EventKind       `json:"kind"`
	AdID       string          `json:"ad_id"`
	ZoneID     string          `json:"zone_id"`
	Variant    string          `json:"variant,omitempty"`
	DeviceType DeviceType      `json:"device_type,omitempty"`
	PagePath   string          `json:"page_path,omitempty"`
	Cost       decimal.Decimal `json:"cost"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ToResponse converts AdEvent to AdEventResponse
func (e *AdEvent) ToResponse() AdEventResponse {
	return AdEventResponse{
		ID:         e.ID,
		Ref:        e.Ref,
		Kind:       e.Kind,
		AdID:       e.AdID,
		ZoneID:     e.ZoneID,
		Variant:    e.Variant,
		DeviceType: e.DeviceType,
		PagePath:   e.PagePath,
		Cost:       e.Cost,
		CreatedAt:  e.CreatedAt,
	}
}
