package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Zone represents a named display slot on the site (e.g. "hero-banner")
// Table: zones
type Zone struct {
	ID       string     `gorm:"column:id;primaryKey" json:"id"`
	Slug     string     `gorm:"column:slug;uniqueIndex" json:"slug"`
	Name     string     `gorm:"column:name" json:"name"`
	Device   DeviceType `gorm:"column:device" json:"device,omitempty"` // empty = any device
	Width    int        `gorm:"column:width" json:"width"`
	Height   int        `gorm:"column:height" json:"height"`
	MaxAds   int        `gorm:"column:max_ads;default:1" json:"max_ads"`
	IsActive bool       `gorm:"column:is_active;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for Zone model
func (Zone) TableName() string {
	return "zones"
}

// BeforeCreate assigns a UUID if none was provided
func (z *Zone) BeforeCreate(tx *gorm.DB) error {
	if z.ID == "" {
		z.ID = uuid.New().String()
	}
	return nil
}

// AcceptsDevice reports whether the zone's device constraint allows the
// requesting device. An empty constraint accepts all devices.
func (z *Zone) AcceptsDevice(device DeviceType) bool {
	return z.Device == "" || z.Device == device
}

// ZoneAssignment links an ad into a zone, with an optional priority
// override scoped to that zone
// Table: zone_assignments
type ZoneAssignment struct {
	ID               string `gorm:"column:id;primaryKey" json:"id"`
	AdID             string `gorm:"column:ad_id;index:idx_zone_assignments_ad_zone,unique" json:"ad_id"`
	ZoneID           string `gorm:"column:zone_id;index:idx_zone_assignments_ad_zone,unique" json:"zone_id"`
	PriorityOverride *int   `gorm:"column:priority_override" json:"priority_override,omitempty"`
	IsActive         bool   `gorm:"column:is_active;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for ZoneAssignment model
func (ZoneAssignment) TableName() string {
	return "zone_assignments"
}

// BeforeCreate assigns a UUID if none was provided
func (za *ZoneAssignment) BeforeCreate(tx *gorm.DB) error {
	if za.ID == "" {
		za.ID = uuid.New().String()
	}
	return nil
}

// ZoneResponse is the API response format for zone
type ZoneResponse struct {
	ID        string     `json:"id"`
	Slug      string     `json:"slug"`
	Name      string     `json:"name"`
	Device    DeviceType `json:"device,omitempty"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	MaxAds    int        `json:"max_ads"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// ToResponse converts Zone to ZoneResponse
func (z *Zone) ToResponse() ZoneResponse {
	return ZoneResponse{
		ID:        z.ID,
		Slug:      z.Slug,
		Name:      z.Name,
		Device:    z.Device,
		Width:     z.Width,
		Height:    z.Height,
		MaxAds:    z.MaxAds,
		IsActive:  z.IsActive,
		CreatedAt: z.CreatedAt,
	}
}

// CreateZoneRequest is the request body for creating a zone
type CreateZoneRequest struct {
	Slug   string     `json:"slug" binding:"required,max=100"`
	Name   string     `json:"name" binding:"required,max=100"`
	Device DeviceType `json:"device"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	MaxAds int        `json:"max_ads"`
}

// UpdateZoneRequest is the request body for updating a zone
type UpdateZoneRequest struct {
	Name     *string     `json:"name"`
	Device   *DeviceType `json:"device"`
	Width    *int        `json:"width"`
	Height   *int        `json:"height"`
	MaxAds   *int        `json:"max_ads"`
	IsActive *bool       `json:"is_active"`
}

// CreateAssignmentRequest is the request body for linking an ad to a zone
type CreateAssignmentRequest struct {
	AdID             string `json:"ad_id" binding:"required"`
	PriorityOverride *int   `json:"priority_override"`
	IsActive         *bool  `json:"is_active"`
}

// UpdateAssignmentRequest is the request body for updating an assignment
type UpdateAssignmentRequest struct {
	PriorityOverride *int  `json:"priority_override"`
	IsActive         *bool `json:"is_active"`
}
