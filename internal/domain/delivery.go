package domain

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
)

// DeviceType classifies the requesting device
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceTablet  DeviceType = "tablet"
	DeviceMobile  DeviceType = "mobile"
)

// IsValid checks whether the device type is one of the known values
func (d DeviceType) IsValid() bool {
	switch d {
	case DeviceDesktop, DeviceTablet, DeviceMobile:
		return true
	}
	return false
}

// ViewContext carries the request-side signals used for targeting and
// variant assignment. VisitorKey is a stable per-visitor identifier
// supplied by the caller; it only matters for ads with an A/B test.
type ViewContext struct {
	Device       DeviceType `json:"device"`
	PagePath     string     `json:"page_path"`
	AudienceTags []string   `json:"audience_tags,omitempty"`
	VisitorKey   string     `json:"visitor_key,omitempty"`
	Referrer     string     `json:"referrer,omitempty"`
	Viewport     string     `json:"viewport,omitempty"`
}

// DeliveryRef is the opaque token handed out with a delivered ad. The
// caller must echo it back when reporting an impression or click; it is
// also the idempotency key for event recording, so a retried report
// never double-counts.
type DeliveryRef string

// deliveryRefPayload is the decoded content of a DeliveryRef
type deliveryRefPayload struct {
	Nonce        string `json:"n"`
	AdID         string `json:"a"`
	ZoneID       string `json:"z"`
	AssignmentID string `json:"s"`
	Variant      string `json:"v,omitempty"`
}

// NewDeliveryRef mints a ref for one delivery. The nonce makes each
// delivery's ref unique even for the same ad/zone pair.
func NewDeliveryRef(adID, zoneID, assignmentID, variant string) DeliveryRef {
	payload := deliveryRefPayload{
		Nonce:        uuid.New().String(),
		AdID:         adID,
		ZoneID:       zoneID,
		AssignmentID: assignmentID,
		Variant:      variant,
	}
	raw, _ := json.Marshal(payload)
	return DeliveryRef(base64.RawURLEncoding.EncodeToString(raw))
}

// Decode unpacks the ref. It fails on refs the engine did not mint.
func (r DeliveryRef) Decode() (adID, zoneID, assignmentID, variant string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(r))
	if err != nil {
		return "", "", "", "", err
	}
	var payload deliveryRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", "", "", "", err
	}
	return payload.AdID, payload.ZoneID, payload.AssignmentID, payload.Variant, nil
}

// DeliveredAd is the selection result returned to the rendering layer:
// the resolved creative payload plus the ref to echo back on events.
type DeliveredAd struct {
	AdID         string       `json:"ad_id"`
	ZoneID       string       `json:"zone_id"`
	Ref          DeliveryRef  `json:"ref"`
	Title        string       `json:"title"`
	CreativeType CreativeType `json:"creative_type"`
	MediaURL     string       `json:"media_url"`
	TargetURL    string       `json:"target_url"`
	AltText      string       `json:"alt_text,omitempty"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	Variant      string       `json:"variant,omitempty"`
}

// Candidate is an ad that survived eligibility filtering for a zone,
// together with its assignment scope
type Candidate struct {
	Ad               *Ad
	ZoneID           string
	AssignmentID     string
	PriorityOverride *int
}

// EffectivePriority returns the assignment's zone-scoped override when
// present, the ad's own priority otherwise
func (c *Candidate) EffectivePriority() int {
	if c.PriorityOverride != nil {
		return *c.PriorityOverride
	}
	return c.Ad.Priority
}

// RecordEventRequest is the request body for reporting an impression or click
type RecordEventRequest struct {
	Ref     DeliveryRef `json:"ref" binding:"required"`
	Context ViewContext `json:"context"`
}
