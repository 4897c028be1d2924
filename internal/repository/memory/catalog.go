// Package memory provides an in-memory catalog implementation. It backs
// the engine's tests and lets the API run without a database connection
// in local development. Metering serializes through the catalog mutex;
// the cap compare and the increment are one critical section, matching
// the guarded UPDATE of the MySQL catalog.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
)

// Catalog holds all engine records in process memory. It implements
// repository.AdRepository, repository.ZoneRepository,
// repository.EventRepository and repository.ABTestRepository.
type Catalog struct {
	mu          sync.RWMutex
	ads         map[string]*domain.Ad
	zones       map[string]*domain.Zone
	zoneBySlug  map[string]string
	assignments map[string]*domain.ZoneAssignment
	tests       map[string]*domain.ABTest // keyed by ad id
	events      []*domain.AdEvent
	eventRefs   map[string]bool // ref+kind dedupe
}

// NewCatalog creates an empty in-memory catalog
func NewCatalog() *Catalog {
	return &Catalog{
		ads:         make(map[string]*domain.Ad),
		zones:       make(map[string]*domain.Zone),
		zoneBySlug:  make(map[string]string),
		assignments: make(map[string]*domain.ZoneAssignment),
		tests:       make(map[string]*domain.ABTest),
		eventRefs:   make(map[string]bool),
	}
}

// --- AdRepository ---

// List retrieves ads with pagination
func (c *Catalog) List(page, limit int) ([]*domain.Ad, int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]*domain.Ad, 0, len(c.ads))
	for _, ad := range c.ads {
		all = append(all, ad)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	out := make([]*domain.Ad, end-start)
	for i, ad := range all[start:end] {
		copied := *ad
		out[i] = &copied
	}
	return out, total, nil
}

// FindByID finds an ad by ID
func (c *Catalog) FindByID(id string) (*domain.Ad, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ad, ok := c.ads[id]
	if !ok {
		return nil, common.ErrAdNotFound
	}
	copied := *ad
	return &copied, nil
}

// Create inserts a new ad
func (c *Catalog) Create(ad *domain.Ad) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ad.ID == "" {
		ad.ID = uuid.New().String()
	}
	if ad.Status == "" {
		ad.Status = domain.AdStatusDraft
	}
	now := time.Now()
	ad.CreatedAt = now
	ad.UpdatedAt = now
	copied := *ad
	c.ads[ad.ID] = &copied
	return nil
}

// Update saves all fields of an ad
func (c *Catalog) Update(ad *domain.Ad) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ads[ad.ID]; !ok {
		return common.ErrAdNotFound
	}
	ad.UpdatedAt = time.Now()
	copied := *ad
	c.ads[ad.ID] = &copied
	return nil
}

// Delete removes an ad and its assignments
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ads[id]; !ok {
		return common.ErrAdNotFound
	}
	delete(c.ads, id)
	for aid, assignment := range c.assignments {
		if assignment.AdID == id {
			delete(c.assignments, aid)
		}
	}
	return nil
}

// FindEligible returns candidates with an active assignment to the zone,
// status active and now inside the date window
func (c *Catalog) FindEligible(zoneSlug string, now time.Time) ([]domain.Candidate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	zoneID, ok := c.zoneBySlug[zoneSlug]
	if !ok {
		return nil, common.ErrZoneNotFound
	}
	zone := c.zones[zoneID]
	if !zone.IsActive {
		return nil, common.ErrZoneNotFound
	}

	var candidates []domain.Candidate
	for _, assignment := range c.assignments {
		if assignment.ZoneID != zoneID || !assignment.IsActive {
			continue
		}
		ad, ok := c.ads[assignment.AdID]
		if !ok || ad.Status != domain.AdStatusActive || !ad.InWindow(now) {
			continue
		}
		copied := *ad
		candidates = append(candidates, domain.Candidate{
			Ad:               &copied,
			ZoneID:           zoneID,
			AssignmentID:     assignment.ID,
			PriorityOverride: assignment.PriorityOverride,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Ad.ID < candidates[j].Ad.ID
	})
	return candidates, nil
}

// UpdateStatus flips status with a guard on the current value
func (c *Catalog) UpdateStatus(id string, from, to domain.AdStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ad, ok := c.ads[id]
	if !ok {
		return common.ErrAdNotFound
	}
	if ad.Status != from {
		return common.ErrInvalidTransition
	}
	ad.Status = to
	ad.UpdatedAt = time.Now()
	return nil
}

// AtomicIncrement applies one event as a single atomic unit: dedupe by
// ref, cap guard, counter and spend increment, event append, and the
// completed transition when a cap is reached.
func (c *Catalog) AtomicIncrement(event *domain.AdEvent) (*domain.AdCounters, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	refKey := event.Ref + "/" + string(event.Kind)
	if c.eventRefs[refKey] {
		return nil, false, common.ErrDuplicateEvent
	}

	ad, ok := c.ads[event.AdID]
	if !ok {
		return nil, false, common.ErrAdNotFound
	}
	if ad.Status != domain.AdStatusActive {
		return nil, false, common.ErrCapExhausted
	}

	// Cap guard before any mutation: the compare and the increment are
	// one critical section, never read-then-write across it
	switch event.Kind {
	case domain.EventKindClick:
		if ad.MaxClicks != nil && ad.CurrentClicks >= *ad.MaxClicks {
			return nil, false, common.ErrCapExhausted
		}
	default:
		if ad.MaxImpressions != nil && ad.CurrentImpressions >= *ad.MaxImpressions {
			return nil, false, common.ErrCapExhausted
		}
	}
	if ad.Budget.Valid && ad.SpentAmount.Add(event.Cost).GreaterThan(ad.Budget.Decimal) {
		return nil, false, common.ErrCapExhausted
	}

	if event.Kind == domain.EventKindClick {
		ad.CurrentClicks++
	} else {
		ad.CurrentImpressions++
	}
	ad.SpentAmount = ad.SpentAmount.Add(event.Cost)
	ad.UpdatedAt = time.Now()

	event.ID = int64(len(c.events) + 1)
	event.CreatedAt = time.Now()
	stored := *event
	c.events = append(c.events, &stored)
	c.eventRefs[refKey] = true

	statusChanged := false
	if !ad.WithinCaps() {
		if next, ok := domain.NextStatus(ad.Status, domain.TriggerCapReached); ok {
			ad.Status = next
			statusChanged = true
		}
	}

	return &domain.AdCounters{
		Impressions: ad.CurrentImpressions,
		Clicks:      ad.CurrentClicks,
		Spent:       ad.SpentAmount,
	}, statusChanged, nil
}

// --- ZoneRepository ---

// GetAllZones retrieves all zones
func (c *Catalog) GetAllZones() ([]*domain.Zone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	zones := make([]*domain.Zone, 0, len(c.zones))
	for _, zone := range c.zones {
		copied := *zone
		zones = append(zones, &copied)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Slug < zones[j].Slug })
	return zones, nil
}

// FindZoneByID finds a zone by ID
func (c *Catalog) FindZoneByID(id string) (*domain.Zone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	zone, ok := c.zones[id]
	if !ok {
		return nil, common.ErrZoneNotFound
	}
	copied := *zone
	return &copied, nil
}

// FindZoneBySlug finds a zone by its slug
func (c *Catalog) FindZoneBySlug(slug string) (*domain.Zone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	zoneID, ok := c.zoneBySlug[slug]
	if !ok {
		return nil, common.ErrZoneNotFound
	}
	copied := *c.zones[zoneID]
	return &copied, nil
}

// CreateZone inserts a new zone
func (c *Catalog) CreateZone(zone *domain.Zone) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if zone.ID == "" {
		zone.ID = uuid.New().String()
	}
	now := time.Now()
	zone.CreatedAt = now
	zone.UpdatedAt = now
	copied := *zone
	c.zones[zone.ID] = &copied
	c.zoneBySlug[zone.Slug] = zone.ID
	return nil
}

// UpdateZone saves all fields of a zone
func (c *Catalog) UpdateZone(zone *domain.Zone) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.zones[zone.ID]
	if !ok {
		return common.ErrZoneNotFound
	}
	if old.Slug != zone.Slug {
		delete(c.zoneBySlug, old.Slug)
		c.zoneBySlug[zone.Slug] = zone.ID
	}
	zone.UpdatedAt = time.Now()
	copied := *zone
	c.zones[zone.ID] = &copied
	return nil
}

// DeleteZone removes a zone and its assignments
func (c *Catalog) DeleteZone(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	zone, ok := c.zones[id]
	if !ok {
		return common.ErrZoneNotFound
	}
	delete(c.zoneBySlug, zone.Slug)
	delete(c.zones, id)
	for aid, assignment := range c.assignments {
		if assignment.ZoneID == id {
			delete(c.assignments, aid)
		}
	}
	return nil
}

// GetAssignmentsByZone retrieves all assignments of a zone
func (c *Catalog) GetAssignmentsByZone(zoneID string) ([]*domain.ZoneAssignment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var assignments []*domain.ZoneAssignment
	for _, assignment := range c.assignments {
		if assignment.ZoneID == zoneID {
			copied := *assignment
			assignments = append(assignments, &copied)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	return assignments, nil
}

// FindAssignmentByID finds an assignment by ID
func (c *Catalog) FindAssignmentByID(id string) (*domain.ZoneAssignment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	assignment, ok := c.assignments[id]
	if !ok {
		return nil, common.ErrAssignmentNotFound
	}
	copied := *assignment
	return &copied, nil
}

// CreateAssignment inserts a new assignment
func (c *Catalog) CreateAssignment(assignment *domain.ZoneAssignment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if assignment.ID == "" {
		assignment.ID = uuid.New().String()
	}
	now := time.Now()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	copied := *assignment
	c.assignments[assignment.ID] = &copied
	return nil
}

// UpdateAssignment saves all fields of an assignment
func (c *Catalog) UpdateAssignment(assignment *domain.ZoneAssignment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.assignments[assignment.ID]; !ok {
		return common.ErrAssignmentNotFound
	}
	assignment.UpdatedAt = time.Now()
	copied := *assignment
	c.assignments[assignment.ID] = &copied
	return nil
}

// DeleteAssignment removes an assignment
func (c *Catalog) DeleteAssignment(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.assignments[id]; !ok {
		return common.ErrAssignmentNotFound
	}
	delete(c.assignments, id)
	return nil
}

// --- EventRepository ---

// GetByAd retrieves the most recent events of an ad
func (c *Catalog) GetByAd(adID string, limit int) ([]*domain.AdEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var events []*domain.AdEvent
	for i := len(c.events) - 1; i >= 0 && len(events) < limit; i-- {
		if c.events[i].AdID == adID {
			copied := *c.events[i]
			events = append(events, &copied)
		}
	}
	return events, nil
}

// CountByAd counts events of one kind for an ad
func (c *Catalog) CountByAd(adID string, kind domain.EventKind) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int64
	for _, event := range c.events {
		if event.AdID == adID && event.Kind == kind {
			count++
		}
	}
	return count, nil
}

// Exists reports whether an event with the ref/kind pair was already recorded
func (c *Catalog) Exists(ref string, kind domain.EventKind) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.eventRefs[ref+"/"+string(kind)], nil
}

// --- ABTestRepository ---

// FindByAd retrieves the test attached to an ad
func (c *Catalog) FindByAd(adID string) (*domain.ABTest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	test, ok := c.tests[adID]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *test
	copied.Variants = append([]domain.ABVariant(nil), test.Variants...)
	return &copied, nil
}

// Upsert replaces the ad's test configuration
func (c *Catalog) Upsert(test *domain.ABTest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if test.ID == "" {
		test.ID = uuid.New().String()
	}
	for i := range test.Variants {
		if test.Variants[i].ID == "" {
			test.Variants[i].ID = uuid.New().String()
		}
		test.Variants[i].TestID = test.ID
	}
	now := time.Now()
	test.CreatedAt = now
	test.UpdatedAt = now
	copied := *test
	copied.Variants = append([]domain.ABVariant(nil), test.Variants...)
	c.tests[test.AdID] = &copied
	return nil
}

// DeleteByAd removes the ad's test
func (c *Catalog) DeleteByAd(adID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tests[adID]; !ok {
		return common.ErrNotFound
	}
	delete(c.tests, adID)
	return nil
}

// TotalSpent reports the sum of event costs for an ad. Test helper.
func (c *Catalog) TotalSpent(adID string) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, event := range c.events {
		if event.AdID == adID {
			total = total.Add(event.Cost)
		}
	}
	return total
}
