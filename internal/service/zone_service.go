package service

import (
	"fmt"

	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/repository"
)

// ZoneService defines the admin-console business logic for zones and
// zone assignments
type ZoneService interface {
	// Zone methods
	GetAllZones() ([]domain.ZoneResponse, error)
	GetZoneByID(id string) (*domain.ZoneResponse, error)
	CreateZone(req *domain.CreateZoneRequest) (*domain.ZoneResponse, error)
	UpdateZone(id string, req *domain.UpdateZoneRequest) (*domain.ZoneResponse, error)
	DeleteZone(id string) error

	// Assignment methods
	GetAssignments(zoneID string) ([]*domain.ZoneAssignment, error)
	CreateAssignment(zoneID string, req *domain.CreateAssignmentRequest) (*domain.ZoneAssignment, error)
	UpdateAssignment(id string, req *domain.UpdateAssignmentRequest) (*domain.ZoneAssignment, error)
	DeleteAssignment(id string) error
}

type zoneService struct {
	zones repository.ZoneRepository
	ads   repository.AdRepository
}

// NewZoneService creates a new ZoneService
func NewZoneService(zones repository.ZoneRepository, ads repository.AdRepository) ZoneService {
	return &zoneService{zones: zones, ads: ads}
}

// GetAllZones retrieves all zones
func (s *zoneService) GetAllZones() ([]domain.ZoneResponse, error) {
	zones, err := s.zones.GetAllZones()
	if err != nil {
		return nil, err
	}

	responses := make([]domain.ZoneResponse, len(zones))
	for i, zone := range zones {
		responses[i] = zone.ToResponse()
	}

	return responses, nil
}

// GetZoneByID retrieves a zone by ID
func (s *zoneService) GetZoneByID(id string) (*domain.ZoneResponse, error) {
	zone, err := s.zones.FindZoneByID(id)
	if err != nil {
		return nil, err
	}

	resp := zone.ToResponse()
	return &resp, nil
}

// CreateZone creates a new zone
func (s *zoneService) CreateZone(req *domain.CreateZoneRequest) (*domain.ZoneResponse, error) {
	if req.Device != "" && !req.Device.IsValid() {
		return nil, fmt.Errorf("%w: unknown device type %q", common.ErrInvalidInput, req.Device)
	}
	if _, err := s.zones.FindZoneBySlug(req.Slug); err == nil {
		return nil, fmt.Errorf("%w: slug %q already exists", common.ErrInvalidInput, req.Slug)
	}

	maxAds := req.MaxAds
	if maxAds < 1 {
		maxAds = 1
	}

	zone := &domain.Zone{
		Slug:     req.Slug,
		Name:     req.Name,
		Device:   req.Device,
		Width:    req.Width,
		Height:   req.Height,
		MaxAds:   maxAds,
		IsActive: true,
	}

	if err := s.zones.CreateZone(zone); err != nil {
		return nil, err
	}

	resp := zone.ToResponse()
	return &resp, nil
}

// UpdateZone updates a zone
func (s *zoneService) UpdateZone(id string, req *domain.UpdateZoneRequest) (*domain.ZoneResponse, error) {
	zone, err := s.zones.FindZoneByID(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		zone.Name = *req.Name
	}
	if req.Device != nil {
		if *req.Device != "" && !req.Device.IsValid() {
			return nil, fmt.Errorf("%w: unknown device type %q", common.ErrInvalidInput, *req.Device)
		}
		zone.Device = *req.Device
	}
	if req.Width != nil {
		zone.Width = *req.Width
	}
	if req.Height != nil {
		zone.Height = *req.Height
	}
	if req.MaxAds != nil && *req.MaxAds >= 1 {
		zone.MaxAds = *req.MaxAds
	}
	if req.IsActive != nil {
		zone.IsActive = *req.IsActive
	}

	if err := s.zones.UpdateZone(zone); err != nil {
		return nil, err
	}

	resp := zone.ToResponse()
	return &resp, nil
}

// DeleteZone removes a zone and its assignments
func (s *zoneService) DeleteZone(id string) error {
	return s.zones.DeleteZone(id)
}

// GetAssignments retrieves all assignments of a zone
func (s *zoneService) GetAssignments(zoneID string) ([]*domain.ZoneAssignment, error) {
	if _, err := s.zones.FindZoneByID(zoneID); err != nil {
		return nil, err
	}
	return s.zones.GetAssignmentsByZone(zoneID)
}

// CreateAssignment links an ad into a zone
func (s *zoneService) CreateAssignment(zoneID string, req *domain.CreateAssignmentRequest) (*domain.ZoneAssignment, error) {
	if _, err := s.zones.FindZoneByID(zoneID); err != nil {
		return nil, err
	}
	if _, err := s.ads.FindByID(req.AdID); err != nil {
		return nil, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	assignment := &domain.ZoneAssignment{
		AdID:             req.AdID,
		ZoneID:           zoneID,
		PriorityOverride: req.PriorityOverride,
		IsActive:         isActive,
	}

	if err := s.zones.CreateAssignment(assignment); err != nil {
		return nil, err
	}

	return assignment, nil
}

// UpdateAssignment updates an assignment's override or active flag
func (s *zoneService) UpdateAssignment(id string, req *domain.UpdateAssignmentRequest) (*domain.ZoneAssignment, error) {
	assignment, err := s.zones.FindAssignmentByID(id)
	if err != nil {
		return nil, err
	}

	if req.PriorityOverride != nil {
		assignment.PriorityOverride = req.PriorityOverride
	}
	if req.IsActive != nil {
		assignment.IsActive = *req.IsActive
	}

	if err := s.zones.UpdateAssignment(assignment); err != nil {
		return nil, err
	}

	return assignment, nil
}

// DeleteAssignment removes an assignment
func (s *zoneService) DeleteAssignment(id string) error {
	return s.zones.DeleteAssignment(id)
}
