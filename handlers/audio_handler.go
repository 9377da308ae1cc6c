package handlers

import (
	"fmt"
	"net/http"

	"tarot-backend/locale"
	"tarot-backend/service"

	"github.com/gin-gonic/gin"
)

// AudioHandler serves reading narrations
type AudioHandler struct {
	audioService *service.AudioService
	bundle       *locale.Bundle
}

// NewAudioHandler creates a new audio handler
func NewAudioHandler(audioService *service.AudioService, bundle *locale.Bundle) *AudioHandler {
	return &AudioHandler{
		audioService: audioService,
		bundle:       bundle,
	}
}

// GetNarration handles GET /api/readings/:id/audio
func (h *AudioHandler) GetNarration(c *gin.Context) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	readingID := c.Param("id")
	result, err := h.audioService.Narrate(c.Request.Context(), id, readingID)
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"%s.wav\"", readingID))
	if result.Cached {
		c.Header("X-Narration-Cache", "hit")
	}
	c.Data(http.StatusOK, "audio/wav", result.WAV)
}
