package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"gorm.io/gorm"
)

// AdRepository defines the catalog access for ads, including the atomic
// metering path
type AdRepository interface {
	// CRUD
	List(page, limit int) ([]*domain.Ad, int64, error)
	FindByID(id string) (*domain.Ad, error)
	Create(ad *domain.Ad) error
	Update(ad *domain.Ad) error
	Delete(id string) error

	// FindEligible returns candidates with an active assignment to the
	// zone, status active and now inside the ad's date window. Cap and
	// targeting checks happen in the eligibility service on top of this.
	FindEligible(zoneSlug string, now time.Time) ([]domain.Candidate, error)

	// UpdateStatus flips status only when the ad is still in `from`,
	// so concurrent transitions cannot double-fire
	UpdateStatus(id string, from, to domain.AdStatus) error

	// AtomicIncrement applies one event as a single atomic unit: append
	// the event row, bump the counter and spend with the cap guard, and
	// flip status to completed when a cap is reached. It returns
	// common.ErrDuplicateEvent for a ref already recorded and
	// common.ErrCapExhausted when the guarded update matches no row.
	AtomicIncrement(event *domain.AdEvent) (*domain.AdCounters, bool, error)
}

// adRepository implements AdRepository with GORM
type adRepository struct {
	db *gorm.DB
}

// NewAdRepository creates a new AdRepository
func NewAdRepository(db *gorm.DB) AdRepository {
	return &adRepository{db: db}
}

// List retrieves ads with pagination
func (r *adRepository) List(page, limit int) ([]*domain.Ad, int64, error) {
	var ads []*domain.Ad
	var total int64

	if err := r.db.Model(&domain.Ad{}).Count(&total).Error; err != nil {
		return nil, 0, wrapStorage(err)
	}

	err := r.db.
		Order("priority DESC, created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&ads).Error
	if err != nil {
		return nil, 0, wrapStorage(err)
	}

	return ads, total, nil
}

// FindByID finds an ad by ID
func (r *adRepository) FindByID(id string) (*domain.Ad, error) {
	var ad domain.Ad

	err := r.db.
		Where("id = ?", id).
		First(&ad).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrAdNotFound
		}
		return nil, wrapStorage(err)
	}

	return &ad, nil
}

// Create inserts a new ad
func (r *adRepository) Create(ad *domain.Ad) error {
	if err := r.db.Create(ad).Error; err != nil {
		return wrapStorage(err)
	}
	return nil
}

// Update saves all fields of an ad
func (r *adRepository) Update(ad *domain.Ad) error {
	if err := r.db.Save(ad).Error; err != nil {
		return wrapStorage(err)
	}
	return nil
}

// Delete removes an ad and its assignments
func (r *adRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ad_id = ?", id).Delete(&domain.ZoneAssignment{}).Error; err != nil {
			return wrapStorage(err)
		}
		res := tx.Where("id = ?", id).Delete(&domain.Ad{})
		if res.Error != nil {
			return wrapStorage(res.Error)
		}
		if res.RowsAffected == 0 {
			return common.ErrAdNotFound
		}
		return nil
	})
}

// FindEligible retrieves active ads assigned to the zone whose date
// window contains now
func (r *adRepository) FindEligible(zoneSlug string, now time.Time) ([]domain.Candidate, error) {
	var zone domain.Zone
	err := r.db.Where("slug = ? AND is_active = ?", zoneSlug, true).First(&zone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrZoneNotFound
		}
		return nil, wrapStorage(err)
	}

	var assignments []domain.ZoneAssignment
	err = r.db.
		Where("zone_id = ? AND is_active = ?", zone.ID, true).
		Find(&assignments).Error
	if err != nil {
		return nil, wrapStorage(err)
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	adIDs := make([]string, 0, len(assignments))
	byAd := make(map[string]*domain.ZoneAssignment, len(assignments))
	for i := range assignments {
		adIDs = append(adIDs, assignments[i].AdID)
		byAd[assignments[i].AdID] = &assignments[i]
	}

	var ads []*domain.Ad
	err = r.db.
		Where("id IN ?", adIDs).
		Where("status = ?", domain.AdStatusActive).
		Where("start_at <= ?", now).
		Where("(end_at IS NULL OR end_at > ?)", now).
		Order("id ASC").
		Find(&ads).Error
	if err != nil {
		return nil, wrapStorage(err)
	}

	candidates := make([]domain.Candidate, 0, len(ads))
	for _, ad := range ads {
		assignment := byAd[ad.ID]
		candidates = append(candidates, domain.Candidate{
			Ad:               ad,
			ZoneID:           zone.ID,
			AssignmentID:     assignment.ID,
			PriorityOverride: assignment.PriorityOverride,
		})
	}

	return candidates, nil
}

// UpdateStatus flips status with a guard on the current value
func (r *adRepository) UpdateStatus(id string, from, to domain.AdStatus) error {
	res := r.db.Model(&domain.Ad{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return wrapStorage(res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrInvalidTransition
	}
	return nil
}

// AtomicIncrement records one event and its counter/spend delta in a
// single transaction. The guarded UPDATE is the linearization point:
// two concurrent calls for an ad one unit below its cap cannot both
// pass the guard, so the counter never overshoots.
func (r *adRepository) AtomicIncrement(event *domain.AdEvent) (*domain.AdCounters, bool, error) {
	var counters domain.AdCounters
	statusChanged := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			if isDuplicateKey(err) {
				return common.ErrDuplicateEvent
			}
			return wrapStorage(err)
		}

		var res *gorm.DB
		now := time.Now()
		if event.Kind == domain.EventKindClick {
			res = tx.Exec(`
				UPDATE ads
				SET current_clicks = current_clicks + 1,
				    spent_amount = spent_amount + ?,
				    updated_at = ?
				WHERE id = ?
				  AND status = ?
				  AND (max_clicks IS NULL OR current_clicks < max_clicks)
				  AND (budget IS NULL OR spent_amount + ? <= budget)`,
				event.Cost, now, event.AdID, domain.AdStatusActive, event.Cost)
		} else {
			res = tx.Exec(`
				UPDATE ads
				SET current_impressions = current_impressions + 1,
				    spent_amount = spent_amount + ?,
				    updated_at = ?
				WHERE id = ?
				  AND status = ?
				  AND (max_impressions IS NULL OR current_impressions < max_impressions)
				  AND (budget IS NULL OR spent_amount + ? <= budget)`,
				event.Cost, now, event.AdID, domain.AdStatusActive, event.Cost)
		}
		if res.Error != nil {
			return wrapStorage(res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race against the cap, or the ad left active.
			// Rolling back also discards the event row, keeping the
			// log and the counters in agreement.
			return common.ErrCapExhausted
		}

		var ad domain.Ad
		if err := tx.Where("id = ?", event.AdID).First(&ad).Error; err != nil {
			return wrapStorage(err)
		}
		counters = domain.AdCounters{
			Impressions: ad.CurrentImpressions,
			Clicks:      ad.CurrentClicks,
			Spent:       ad.SpentAmount,
		}

		if !ad.WithinCaps() {
			next, ok := domain.NextStatus(ad.Status, domain.TriggerCapReached)
			if ok {
				upd := tx.Model(&domain.Ad{}).
					Where("id = ? AND status = ?", ad.ID, ad.Status).
					Updates(map[string]interface{}{"status": next, "updated_at": now})
				if upd.Error != nil {
					return wrapStorage(upd.Error)
				}
				statusChanged = upd.RowsAffected > 0
			}
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &counters, statusChanged, nil
}

// isDuplicateKey detects a unique index violation (idempotent replay)
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL 1062 surfaces through the driver before GORM translation
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

// wrapStorage tags infrastructure failures so callers can distinguish
// them from business outcomes
func wrapStorage(err error) error {
	return fmt.Errorf("%w: %v", common.ErrStorage, err)
}
