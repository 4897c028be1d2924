package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/service"
)

// AdHandler exposes the admin console API for ads
type AdHandler struct {
	ads service.AdService
}

// NewAdHandler creates a new AdHandler
func NewAdHandler(ads service.AdService) *AdHandler {
	return &AdHandler{ads: ads}
}

// List handles GET /api/v1/admin/ads
func (h *AdHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	resp, err := h.ads.ListAds(page, limit)
	if err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, resp, &common.Meta{Page: page, Limit: limit, Total: int64(resp.Total)})
}

// Get handles GET /api/v1/admin/ads/:id
func (h *AdHandler) Get(c *gin.Context) {
	resp, err := h.ads.GetAdByID(c.Param("id"))
	if err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// Create handles POST /api/v1/admin/ads
func (h *AdHandler) Create(c *gin.Context) {
	var req domain.CreateAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.ads.CreateAd(&req)
	if err != nil {
		h.adError(c, err)
		return
	}

	common.CreatedResponse(c, resp)
}

// Update handles PUT /api/v1/admin/ads/:id
func (h *AdHandler) Update(c *gin.Context) {
	var req domain.UpdateAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.ads.UpdateAd(c.Param("id"), &req)
	if err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// Delete handles DELETE /api/v1/admin/ads/:id
func (h *AdHandler) Delete(c *gin.Context) {
	if err := h.ads.DeleteAd(c.Param("id")); err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"deleted": true}, nil)
}

// Activate handles POST /api/v1/admin/ads/:id/activate
func (h *AdHandler) Activate(c *gin.Context) {
	h.lifecycle(c, h.ads.ActivateAd)
}

// Pause handles POST /api/v1/admin/ads/:id/pause
func (h *AdHandler) Pause(c *gin.Context) {
	h.lifecycle(c, h.ads.PauseAd)
}

// Resume handles POST /api/v1/admin/ads/:id/resume
func (h *AdHandler) Resume(c *gin.Context) {
	h.lifecycle(c, h.ads.ResumeAd)
}

func (h *AdHandler) lifecycle(c *gin.Context, action func(string) (*domain.AdResponse, error)) {
	resp, err := action(c.Param("id"))
	if err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// Stats handles GET /api/v1/admin/ads/:id/stats
func (h *AdHandler) Stats(c *gin.Context) {
	resp, err := h.ads.GetAdStats(c.Param("id"))
	if err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// GetABTest handles GET /api/v1/admin/ads/:id/abtest
func (h *AdHandler) GetABTest(c *gin.Context) {
	resp, err := h.ads.GetABTest(c.Param("id"))
	if err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// UpsertABTest handles PUT /api/v1/admin/ads/:id/abtest
func (h *AdHandler) UpsertABTest(c *gin.Context) {
	var req domain.UpsertABTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.ads.UpsertABTest(c.Param("id"), &req)
	if err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// DeleteABTest handles DELETE /api/v1/admin/ads/:id/abtest
func (h *AdHandler) DeleteABTest(c *gin.Context) {
	if err := h.ads.DeleteABTest(c.Param("id")); err != nil {
		h.adError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"deleted": true}, nil)
}

// adError maps service errors onto HTTP statuses
func (h *AdHandler) adError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrAdNotFound), errors.Is(err, common.ErrNotFound):
		common.ErrorResponse(c, http.StatusNotFound, "ad not found", nil)
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrInvalidTrafficSplit):
		common.ErrorResponse(c, http.StatusBadRequest, "invalid input", err)
	case errors.Is(err, common.ErrInvalidTransition):
		common.ErrorResponse(c, http.StatusConflict, "invalid status transition", err)
	case errors.Is(err, common.ErrStorage):
		common.ErrorResponse(c, http.StatusServiceUnavailable, "storage unavailable", err)
	default:
		common.ErrorResponse(c, http.StatusInternalServerError, "internal error", err)
	}
}
