package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/service"
)

// ZoneHandler exposes the admin console API for zones and placements
type ZoneHandler struct {
	zones service.ZoneService
}

// NewZoneHandler creates a new ZoneHandler
func NewZoneHandler(zones service.ZoneService) *ZoneHandler {
	return &ZoneHandler{zones: zones}
}

// List handles GET /api/v1/admin/zones
func (h *ZoneHandler) List(c *gin.Context) {
	resp, err := h.zones.GetAllZones()
	if err != nil {
		h.zoneError(c, err)
		return
	}

	common.SuccessResponse(c, resp, &common.Meta{Total: int64(len(resp))})
}

// Get handles GET /api/v1/admin/zones/:id
func (h *ZoneHandler) Get(c *gin.Context) {
	resp, err := h.zones.GetZoneByID(c.Param("id"))
	if err != nil {
		h.zoneError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// Create handles POST /api/v1/admin/zones
func (h *ZoneHandler) Create(c *gin.Context) {
	var req domain.CreateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.zones.CreateZone(&req)
	if err != nil {
		h.zoneError(c, err)
		return
	}

	common.CreatedResponse(c, resp)
}

// Update handles PUT /api/v1/admin/zones/:id
func (h *ZoneHandler) Update(c *gin.Context) {
	var req domain.UpdateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.zones.UpdateZone(c.Param("id"), &req)
	if err != nil {
		h.zoneError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// Delete handles DELETE /api/v1/admin/zones/:id
func (h *ZoneHandler) Delete(c *gin.Context) {
	if err := h.zones.DeleteZone(c.Param("id")); err != nil {
		h.zoneError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"deleted": true}, nil)
}

// ListAssignments handles GET /api/v1/admin/zones/:id/assignments
func (h *ZoneHandler) ListAssignments(c *gin.Context) {
	resp, err := h.zones.GetAssignments(c.Param("id"))
	if err != nil {
		h.zoneError(c, err)
		return
	}

	common.SuccessResponse(c, resp, &common.Meta{Total: int64(len(resp))})
}

// CreateAssignment handles POST /api/v1/admin/zones/:id/assignments
func (h *ZoneHandler) CreateAssignment(c *gin.Context) {
	var req domain.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.zones.CreateAssignment(c.Param("id"), &req)
	if err != nil {
		h.zoneError(c, err)
		return
	}

	common.CreatedResponse(c, resp)
}

// UpdateAssignment handles PUT /api/v1/admin/assignments/:id
func (h *ZoneHandler) UpdateAssignment(c *gin.Context) {
	var req domain.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.zones.UpdateAssignment(c.Param("id"), &req)
	if err != nil {
		h.zoneError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// DeleteAssignment handles DELETE /api/v1/admin/assignments/:id
func (h *ZoneHandler) DeleteAssignment(c *gin.Context) {
	if err := h.zones.DeleteAssignment(c.Param("id")); err != nil {
		h.zoneError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"deleted": true}, nil)
}

func (h *ZoneHandler) zoneError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrZoneNotFound),
		errors.Is(err, common.ErrAdNotFound),
		errors.Is(err, common.ErrAssignmentNotFound),
		errors.Is(err, common.ErrNotFound):
		common.ErrorResponse(c, http.StatusNotFound, "not found", nil)
	case errors.Is(err, common.ErrInvalidInput):
		common.ErrorResponse(c, http.StatusBadRequest, "invalid input", err)
	case errors.Is(err, common.ErrStorage):
		common.ErrorResponse(c, http.StatusServiceUnavailable, "storage unavailable", err)
	default:
		common.ErrorResponse(c, http.StatusInternalServerError, "internal error", err)
	}
}
