package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
	"github.com/vantagemedia/adserver/internal/service"
	"github.com/vantagemedia/adserver/pkg/logger"
)

var clickRedirectLossesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "click_redirect_losses_total",
		Help: "Click-through redirects served without a recorded click",
	},
)

// DeliveryHandler exposes the public delivery and event endpoints
type DeliveryHandler struct {
	delivery service.DeliveryService
}

// NewDeliveryHandler creates a new DeliveryHandler
func NewDeliveryHandler(delivery service.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{delivery: delivery}
}

// GetAdForZone handles GET /api/v1/zones/:slug/ad
// Query: device, path, tags (comma-separated), visitor
func (h *DeliveryHandler) GetAdForZone(c *gin.Context) {
	vctx := viewContextFromQuery(c)

	delivered, err := h.delivery.GetAdForZone(c.Request.Context(), c.Param("slug"), vctx)
	if err != nil {
		if errors.Is(err, common.ErrInvalidTrafficSplit) {
			common.ErrorResponse(c, http.StatusUnprocessableEntity, "broken A/B configuration", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "ad selection failed", err)
		return
	}
	if delivered == nil {
		// Nothing eligible: routine, the caller renders a fallback
		c.Status(http.StatusNoContent)
		return
	}

	common.SuccessResponse(c, delivered, nil)
}

// GetAdsForZone handles GET /api/v1/zones/:slug/ads — multi-slot
// zones get up to max_ads distinct ads in one response
func (h *DeliveryHandler) GetAdsForZone(c *gin.Context) {
	vctx := viewContextFromQuery(c)

	delivered, err := h.delivery.GetAdsForZone(c.Request.Context(), c.Param("slug"), vctx)
	if err != nil {
		if errors.Is(err, common.ErrInvalidTrafficSplit) {
			common.ErrorResponse(c, http.StatusUnprocessableEntity, "broken A/B configuration", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "ad selection failed", err)
		return
	}
	if len(delivered) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	common.SuccessResponse(c, delivered, nil)
}

// RecordImpression handles POST /api/v1/events/impression
func (h *DeliveryHandler) RecordImpression(c *gin.Context) {
	var req domain.RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	err := h.delivery.RecordImpression(c.Request.Context(), req.Ref, req.Context)
	if err != nil {
		h.eventError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"recorded": true}, nil)
}

// RecordClick handles POST /api/v1/events/click
func (h *DeliveryHandler) RecordClick(c *gin.Context) {
	var req domain.RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	err := h.delivery.RecordClick(c.Request.Context(), req.Ref, req.Context)
	if err != nil {
		h.eventError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"recorded": true}, nil)
}

// ClickRedirect handles GET /api/v1/click/:ref — the click-through
// path used by plain anchor tags: record the click, then redirect to
// the ad's (or variant's) target link
func (h *DeliveryHandler) ClickRedirect(c *gin.Context) {
	ref := domain.DeliveryRef(c.Param("ref"))
	vctx := viewContextFromQuery(c)

	target, err := h.delivery.ClickTarget(ref)
	if err != nil {
		if errors.Is(err, common.ErrInvalidDeliveryRef) || errors.Is(err, common.ErrAdNotFound) {
			common.ErrorResponse(c, http.StatusNotFound, "unknown delivery ref", nil)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "click-through failed", err)
		return
	}

	// Record before redirecting; a metering failure must not strand
	// the visitor, so log the loss and redirect anyway. The click is
	// gone for good (the browser never retries a ref), which is why
	// it gets a warning and a counter rather than c.Errors.
	if err := h.delivery.RecordClick(c.Request.Context(), ref, vctx); err != nil &&
		!errors.Is(err, common.ErrInvalidDeliveryRef) {
		clickRedirectLossesTotal.Inc()
		logger.GetLogger().Warn().
			Err(err).
			Str("ref", string(ref)).
			Msg("click-through redirect served but click not recorded")
	}

	c.Redirect(http.StatusFound, target)
}

// eventError maps metering failures onto HTTP statuses. Storage errors
// are retryable with the same ref, which the 503 signals.
func (h *DeliveryHandler) eventError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidDeliveryRef):
		common.ErrorResponse(c, http.StatusBadRequest, "unknown delivery ref", nil)
	case errors.Is(err, common.ErrStorage):
		common.ErrorResponse(c, http.StatusServiceUnavailable, "storage unavailable, retry with the same ref", err)
	default:
		common.ErrorResponse(c, http.StatusInternalServerError, "event recording failed", err)
	}
}

// viewContextFromQuery builds a ViewContext from delivery query params
// and request headers
func viewContextFromQuery(c *gin.Context) domain.ViewContext {
	vctx := domain.ViewContext{
		Device:     domain.DeviceType(c.DefaultQuery("device", string(domain.DeviceDesktop))),
		PagePath:   c.Query("path"),
		VisitorKey: c.Query("visitor"),
		Referrer:   c.GetHeader("Referer"),
		Viewport:   c.Query("viewport"),
	}
	if tags := c.Query("tags"); tags != "" {
		vctx.AudienceTags = strings.Split(tags, ",")
	}
	if !vctx.Device.IsValid() {
		vctx.Device = domain.DeviceDesktop
	}
	return vctx
}
