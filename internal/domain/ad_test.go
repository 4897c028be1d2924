package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func i64Ptr(v int64) *int64 { return &v }

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestInWindow_Boundaries(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	ad := &Ad{StartAt: start, EndAt: &end}

	// start is inclusive
	assert.True(t, ad.InWindow(start))
	assert.True(t, ad.InWindow(start.Add(time.Second)))

	// end is exclusive
	assert.False(t, ad.InWindow(end))
	assert.False(t, ad.InWindow(end.Add(time.Second)))

	assert.False(t, ad.InWindow(start.Add(-time.Second)))
}

func TestInWindow_OpenEnded(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ad := &Ad{StartAt: start}

	assert.True(t, ad.InWindow(start.AddDate(10, 0, 0)))
}

func TestWithinCaps(t *testing.T) {
	ad := &Ad{
		MaxImpressions:     i64Ptr(100),
		CurrentImpressions: 99,
	}
	assert.True(t, ad.WithinCaps())

	ad.CurrentImpressions = 100
	assert.False(t, ad.WithinCaps())
}

func TestWithinCaps_Budget(t *testing.T) {
	ad := &Ad{
		Budget:      nd("10.00"),
		SpentAmount: decimal.RequireFromString("9.99"),
	}
	assert.True(t, ad.WithinCaps())

	ad.SpentAmount = decimal.RequireFromString("10.00")
	assert.False(t, ad.WithinCaps())
}

func TestWithinCaps_NoCaps(t *testing.T) {
	ad := &Ad{CurrentImpressions: 1 << 40, CurrentClicks: 1 << 40}
	assert.True(t, ad.WithinCaps())
}

func TestEffectiveWeight(t *testing.T) {
	assert.Equal(t, 2.5, (&Ad{Weight: 2.5}).EffectiveWeight())
	assert.Equal(t, 1.0, (&Ad{Weight: 0}).EffectiveWeight())
	assert.Equal(t, 1.0, (&Ad{Weight: -3}).EffectiveWeight())
}

func TestEventCost(t *testing.T) {
	ad := &Ad{CPM: nd("5.00")}
	assert.True(t, ad.EventCost(EventKindImpression).Equal(decimal.RequireFromString("0.005")))
	assert.True(t, ad.EventCost(EventKindClick).IsZero())

	ad = &Ad{CPC: nd("0.35")}
	assert.True(t, ad.EventCost(EventKindClick).Equal(decimal.RequireFromString("0.35")))
	assert.True(t, ad.EventCost(EventKindImpression).IsZero())
}

func TestMatchesContext_DeviceTargets(t *testing.T) {
	ad := &Ad{DeviceTargets: "mobile, tablet"}

	assert.True(t, ad.MatchesContext(ViewContext{Device: DeviceMobile}))
	assert.True(t, ad.MatchesContext(ViewContext{Device: DeviceTablet}))
	assert.False(t, ad.MatchesContext(ViewContext{Device: DeviceDesktop}))
}

func TestMatchesContext_PagePrefix(t *testing.T) {
	ad := &Ad{PageTargets: "/news/*, /home"}

	assert.True(t, ad.MatchesContext(ViewContext{PagePath: "/news/2026/03/01"}))
	assert.True(t, ad.MatchesContext(ViewContext{PagePath: "/home"}))
	assert.False(t, ad.MatchesContext(ViewContext{PagePath: "/home/settings"}))
	assert.False(t, ad.MatchesContext(ViewContext{PagePath: "/sports"}))
}

func TestMatchesContext_AudienceTags(t *testing.T) {
	ad := &Ad{AudienceTargets: "gamer, developer"}

	assert.True(t, ad.MatchesContext(ViewContext{AudienceTags: []string{"parent", "gamer"}}))
	assert.False(t, ad.MatchesContext(ViewContext{AudienceTags: []string{"parent"}}))
	assert.False(t, ad.MatchesContext(ViewContext{}))
}

func TestMatchesContext_EmptyCriteriaMatchAll(t *testing.T) {
	ad := &Ad{}
	assert.True(t, ad.MatchesContext(ViewContext{
		Device:   DeviceDesktop,
		PagePath: "/anything",
	}))
}

func TestDeliveryRef_RoundTrip(t *testing.T) {
	ref := NewDeliveryRef("ad-1", "zone-1", "asg-1", "B")

	adID, zoneID, assignmentID, variant, err := ref.Decode()
	assert.NoError(t, err)
	assert.Equal(t, "ad-1", adID)
	assert.Equal(t, "zone-1", zoneID)
	assert.Equal(t, "asg-1", assignmentID)
	assert.Equal(t, "B", variant)
}

func TestDeliveryRef_Unique(t *testing.T) {
	a := NewDeliveryRef("ad-1", "zone-1", "", "")
	b := NewDeliveryRef("ad-1", "zone-1", "", "")
	assert.NotEqual(t, a, b)
}

func TestDeliveryRef_DecodeGarbage(t *testing.T) {
	_, _, _, _, err := DeliveryRef("not-a-ref").Decode()
	assert.Error(t, err)
}
