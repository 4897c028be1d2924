package repository

import (
	"errors"

	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"gorm.io/gorm"
)

// ABTestRepository defines the data access for A/B test configurations
type ABTestRepository interface {
	FindByAd(adID string) (*domain.ABTest, error)
	Upsert(test *domain.ABTest) error
	DeleteByAd(adID string) error
}

// abTestRepository implements ABTestRepository with GORM
type abTestRepository struct {
	db *gorm.DB
}

// NewABTestRepository creates a new ABTestRepository
func NewABTestRepository(db *gorm.DB) ABTestRepository {
	return &abTestRepository{db: db}
}

// FindByAd retrieves the test attached to an ad, variants included.
// Returns common.ErrNotFound when the ad has no test.
func (r *abTestRepository) FindByAd(adID string) (*domain.ABTest, error) {
	var test domain.ABTest

	err := r.db.
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("ad_id = ?", adID).
		First(&test).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, wrapStorage(err)
	}

	return &test, nil
}

// Upsert replaces the ad's test configuration. Variants are rewritten
// wholesale; partial variant edits are not supported.
func (r *abTestRepository) Upsert(test *domain.ABTest) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing domain.ABTest
		err := tx.Where("ad_id = ?", test.AdID).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Where("test_id = ?", existing.ID).Delete(&domain.ABVariant{}).Error; err != nil {
				return wrapStorage(err)
			}
			if err := tx.Where("id = ?", existing.ID).Delete(&domain.ABTest{}).Error; err != nil {
				return wrapStorage(err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first configuration for this ad
		default:
			return wrapStorage(err)
		}

		if err := tx.Create(test).Error; err != nil {
			return wrapStorage(err)
		}
		return nil
	})
}

// DeleteByAd removes the ad's test and its variants
func (r *abTestRepository) DeleteByAd(adID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var test domain.ABTest
		err := tx.Where("ad_id = ?", adID).First(&test).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound
			}
			return wrapStorage(err)
		}
		if err := tx.Where("test_id = ?", test.ID).Delete(&domain.ABVariant{}).Error; err != nil {
			return wrapStorage(err)
		}
		if err := tx.Where("id = ?", test.ID).Delete(&domain.ABTest{}).Error; err != nil {
			return wrapStorage(err)
		}
		return nil
	})
}
