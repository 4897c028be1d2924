package migration

import (
	"github.com/vantagemedia/adserver/internal/domain"
	"gorm.io/gorm"
)

// Run executes AutoMigrate for all ad delivery tables and seeds
// default zones when the zones table is empty.
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Ad{},
		&domain.Zone{},
		&domain.ZoneAssignment{},
		&domain.AdEvent{},
		&domain.ABTest{},
		&domain.ABVariant{},
	); err != nil {
		return err
	}

	var count int64
	db.Model(&domain.Zone{}).Count(&count)
	if count == 0 {
		return seedZones(db)
	}

	return nil
}

func seedZones(db *gorm.DB) error {
	zones := []domain.Zone{
		{Slug: "home-top", Name: "Home Top Banner", Width: 728, Height: 90, MaxAds: 1, IsActive: true},
		{Slug: "home-sidebar", Name: "Home Sidebar", Device: domain.DeviceDesktop, Width: 300, Height: 250, MaxAds: 2, IsActive: true},
		{Slug: "article-inline", Name: "Article Inline", Width: 468, Height: 60, MaxAds: 1, IsActive: true},
		{Slug: "mobile-footer", Name: "Mobile Footer", Device: domain.DeviceMobile, Width: 320, Height: 50, MaxAds: 1, IsActive: true},
	}

	return db.Create(&zones).Error
}
