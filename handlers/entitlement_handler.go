package handlers

import (
	"context"
	"net/http"
	"time"

	"tarot-backend/locale"
	"tarot-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EntitlementHandler handles HTTP requests for premium state
type EntitlementHandler struct {
	entitlementService *service.EntitlementService
	bundle             *locale.Bundle
}

// NewEntitlementHandler creates a new entitlement handler
func NewEntitlementHandler(entitlementService *service.EntitlementService, bundle *locale.Bundle) *EntitlementHandler {
	return &EntitlementHandler{
		entitlementService: entitlementService,
		bundle:             bundle,
	}
}

type entitlementAction func(ctx context.Context, id uuid.UUID, now time.Time) (*service.Status, error)

func (h *EntitlementHandler) run(c *gin.Context, action entitlementAction, messageID string) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	status, err := action(c.Request.Context(), id, nowFunc())
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}

	data := gin.H{"status": NewStatusView(status, loc)}
	if messageID != "" {
		data["message"] = loc.T(messageID)
	}
	respondData(c, http.StatusOK, data)
}

// GetStatus handles GET /api/status
func (h *EntitlementHandler) GetStatus(c *gin.Context) {
	h.run(c, h.entitlementService.Status, "")
}

// Subscribe handles POST /api/entitlements/subscribe
func (h *EntitlementHandler) Subscribe(c *gin.Context) {
	h.run(c, h.entitlementService.Subscribe, locale.SubscribeSuccess)
}

// RedeemRatingReward handles POST /api/entitlements/rating-reward
func (h *EntitlementHandler) RedeemRatingReward(c *gin.Context) {
	h.run(c, h.entitlementService.RedeemRatingReward, locale.RatingRewardGranted)
}

// WatchAdReward handles POST /api/entitlements/ad-reward
func (h *EntitlementHandler) WatchAdReward(c *gin.Context) {
	h.run(c, h.entitlementService.WatchAdReward, locale.AdRewardGranted)
}

// GetPreferences handles GET /api/preferences
func (h *EntitlementHandler) GetPreferences(c *gin.Context) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	status, err := h.entitlementService.Status(c.Request.Context(), id, nowFunc())
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}

	respondData(c, http.StatusOK, status.Preferences)
}
