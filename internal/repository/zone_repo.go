package repository

import (
	"errors"

	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"gorm.io/gorm"
)

// ZoneRepository defines the data access for zones and assignments
type ZoneRepository interface {
	// Zone methods
	GetAllZones() ([]*domain.Zone, error)
	FindZoneByID(id string) (*domain.Zone, error)
	FindZoneBySlug(slug string) (*domain.Zone, error)
	CreateZone(zone *domain.Zone) error
	UpdateZone(zone *domain.Zone) error
	DeleteZone(id string) error

	// Assignment methods
	GetAssignmentsByZone(zoneID string) ([]*domain.ZoneAssignment, error)
	FindAssignmentByID(id string) (*domain.ZoneAssignment, error)
	CreateAssignment(assignment *domain.ZoneAssignment) error
	UpdateAssignment(assignment *domain.ZoneAssignment) error
	DeleteAssignment(id string) error
}

// zoneRepository implements ZoneRepository with GORM
type zoneRepository struct {
	db *gorm.DB
}

// NewZoneRepository creates a new ZoneRepository
func NewZoneRepository(db *gorm.DB) ZoneRepository {
	return &zoneRepository{db: db}
}

// GetAllZones retrieves all zones
func (r *zoneRepository) GetAllZones() ([]*domain.Zone, error) {
	var zones []*domain.Zone

	err := r.db.
		Order("slug ASC").
		Find(&zones).Error
	if err != nil {
		return nil, wrapStorage(err)
	}

	return zones, nil
}

// FindZoneByID finds a zone by ID
func (r *zoneRepository) FindZoneByID(id string) (*domain.Zone, error) {
	var zone domain.Zone

	err := r.db.
		Where("id = ?", id).
		First(&zone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrZoneNotFound
		}
		return nil, wrapStorage(err)
	}

	return &zone, nil
}

// FindZoneBySlug finds a zone by its slug
func (r *zoneRepository) FindZoneBySlug(slug string) (*domain.Zone, error) {
	var zone domain.Zone

	err := r.db.
		Where("slug = ?", slug).
		First(&zone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrZoneNotFound
		}
		return nil, wrapStorage(err)
	}

	return &zone, nil
}

// CreateZone inserts a new zone
func (r *zoneRepository) CreateZone(zone *domain.Zone) error {
	if err := r.db.Create(zone).Error; err != nil {
		return wrapStorage(err)
	}
	return nil
}

// UpdateZone saves all fields of a zone
func (r *zoneRepository) UpdateZone(zone *domain.Zone) error {
	if err := r.db.Save(zone).Error; err != nil {
		return wrapStorage(err)
	}
	return nil
}

// DeleteZone removes a zone and its assignments
func (r *zoneRepository) DeleteZone(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("zone_id = ?", id).Delete(&domain.ZoneAssignment{}).Error; err != nil {
			return wrapStorage(err)
		}
		res := tx.Where("id = ?", id).Delete(&domain.Zone{})
		if res.Error != nil {
			return wrapStorage(res.Error)
		}
		if res.RowsAffected == 0 {
			return common.ErrZoneNotFound
		}
		return nil
	})
}

// GetAssignmentsByZone retrieves all assignments of a zone
func (r *zoneRepository) GetAssignmentsByZone(zoneID string) ([]*domain.ZoneAssignment, error) {
	var assignments []*domain.ZoneAssignment

	err := r.db.
		Where("zone_id = ?", zoneID).
		Order("created_at ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, wrapStorage(err)
	}

	return assignments, nil
}

// FindAssignmentByID finds an assignment by ID
func (r *zoneRepository) FindAssignmentByID(id string) (*domain.ZoneAssignment, error) {
	var assignment domain.ZoneAssignment

	err := r.db.
		Where("id = ?", id).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrAssignmentNotFound
		}
		return nil, wrapStorage(err)
	}

	return &assignment, nil
}

// CreateAssignment inserts a new assignment
func (r *zoneRepository) CreateAssignment(assignment *domain.ZoneAssignment) error {
	if err := r.db.Create(assignment).Error; err != nil {
		return wrapStorage(err)
	}
	return nil
}

// UpdateAssignment saves all fields of an assignment
func (r *zoneRepository) UpdateAssignment(assignment *domain.ZoneAssignment) error {
	if err := r.db.Save(assignment).Error; err != nil {
		return wrapStorage(err)
	}
	return nil
}

// DeleteAssignment removes an assignment
func (r *zoneRepository) DeleteAssignment(id string) error {
	res := r.db.Where("id = ?", id).Delete(&domain.ZoneAssignment{})
	if res.Error != nil {
		return wrapStorage(res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrAssignmentNotFound
	}
	return nil
}
