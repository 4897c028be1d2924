package repository

import (
	"github.com/vantagemedia/adserver/internal/domain"
	"gorm.io/gorm"
)

// EventRepository defines read access to the append-only event log.
// Writes go through AdRepository.AtomicIncrement so the event row and
// the counter move in one transaction; rows are never updated here.
type EventRepository interface {
	GetByAd(adID string, limit int) ([]*domain.AdEvent, error)
	CountByAd(adID string, kind domain.EventKind) (int64, error)
	Exists(ref string, kind domain.EventKind) (bool, error)
}

// eventRepository implements EventRepository with GORM
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// GetByAd retrieves the most recent events of an ad
func (r *eventRepository) GetByAd(adID string, limit int) ([]*domain.AdEvent, error) {
	var events []*domain.AdEvent

	if limit <= 0 {
		limit = 100
	}

	err := r.db.
		Where("ad_id = ?", adID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, wrapStorage(err)
	}

	return events, nil
}

// CountByAd counts events of one kind for an ad
func (r *eventRepository) CountByAd(adID string, kind domain.EventKind) (int64, error) {
	var count int64

	err := r.db.Model(&domain.AdEvent{}).
		Where("ad_id = ? AND kind = ?", adID, kind).
		Count(&count).Error
	if err != nil {
		return 0, wrapStorage(err)
	}

	return count, nil
}

// Exists reports whether an event with the ref/kind pair was already recorded
func (r *eventRepository) Exists(ref string, kind domain.EventKind) (bool, error) {
	var count int64

	err := r.db.Model(&domain.AdEvent{}).
		Where("ref = ? AND kind = ?", ref, kind).
		Count(&count).Error
	if err != nil {
		return false, wrapStorage(err)
	}

	return count > 0, nil
}
