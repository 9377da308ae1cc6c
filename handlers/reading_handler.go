package handlers

import (
	"net/http"

	"tarot-backend/entitlement"
	"tarot-backend/locale"
	"tarot-backend/models"
	"tarot-backend/service"
	"tarot-backend/tarot"

	"github.com/gin-gonic/gin"
)

// ReadingHandler handles HTTP requests for readings
type ReadingHandler struct {
	readingService *service.ReadingService
	bundle         *locale.Bundle
}

// NewReadingHandler creates a new reading handler
func NewReadingHandler(readingService *service.ReadingService, bundle *locale.Bundle) *ReadingHandler {
	return &ReadingHandler{
		readingService: readingService,
		bundle:         bundle,
	}
}

// CreateReadingRequest represents the request body for a reading
type CreateReadingRequest struct {
	Question string `json:"question"`
}

// CreateReadingResponse is a served reading plus the state it left behind
type CreateReadingResponse struct {
	Reading             models.ReadingResult `json:"reading"`
	HistorySize         int                  `json:"history_size"`
	CooldownRemainingMs int64                `json:"cooldown_remaining_ms"`
	RatingOfferInMs     int64                `json:"rating_offer_in_ms,omitempty"`
}

// CreateReading handles POST /api/readings
func (h *ReadingHandler) CreateReading(c *gin.Context) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	var req CreateReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	now := nowFunc()
	result, err := h.readingService.RequestReading(c.Request.Context(), service.RequestReadingRequest{
		InstallationID: id,
		Question:       req.Question,
		Now:            now,
	})
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}

	respondData(c, http.StatusCreated, CreateReadingResponse{
		Reading:             result.Reading,
		HistorySize:         len(result.History),
		CooldownRemainingMs: entitlement.CooldownRemaining(result.Preferences, now).Milliseconds(),
		RatingOfferInMs:     result.RatingOfferIn.Milliseconds(),
	})
}

// ListReadings handles GET /api/readings
func (h *ReadingHandler) ListReadings(c *gin.Context) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	readings, err := h.readingService.History(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}
	if readings == nil {
		readings = []models.ReadingResult{}
	}

	respondData(c, http.StatusOK, readings)
}

// GetReading handles GET /api/readings/:id
func (h *ReadingHandler) GetReading(c *gin.Context) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	reading, err := h.readingService.Reading(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}

	respondData(c, http.StatusOK, reading)
}

// ShareReading handles GET /api/readings/:id/share
func (h *ReadingHandler) ShareReading(c *gin.Context) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	reading, err := h.readingService.Reading(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{
		"text": loc.T(locale.ShareText, map[string]any{
			"Question": reading.Question,
			"Excerpt":  service.ShareExcerpt(reading.Interpretation),
		}),
	})
}

// CardView is a deck card with its image candidates
type CardView struct {
	models.TarotCard
	ImageURLs []string `json:"image_urls"`
}

// ListCards handles GET /api/cards
func (h *ReadingHandler) ListCards(c *gin.Context) {
	deck := tarot.Deck()
	cards := make([]CardView, 0, len(deck))
	for _, card := range deck {
		cards = append(cards, CardView{TarotCard: card, ImageURLs: tarot.ImageURLs(card)})
	}
	respondData(c, http.StatusOK, cards)
}
