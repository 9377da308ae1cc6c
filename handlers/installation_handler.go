package handlers

import (
	"net/http"

	"tarot-backend/locale"
	"tarot-backend/service"

	"github.com/gin-gonic/gin"
)

// InstallationHandler registers devices
type InstallationHandler struct {
	installationService *service.InstallationService
	bundle              *locale.Bundle
}

// NewInstallationHandler creates a new installation handler
func NewInstallationHandler(installationService *service.InstallationService, bundle *locale.Bundle) *InstallationHandler {
	return &InstallationHandler{
		installationService: installationService,
		bundle:              bundle,
	}
}

// Register handles POST /api/installations
func (h *InstallationHandler) Register(c *gin.Context) {
	result, err := h.installationService.Register(c.Request.Context())
	if err != nil {
		respondServiceError(c, locale.FromContext(c, h.bundle), err)
		return
	}

	respondData(c, http.StatusCreated, result)
}
