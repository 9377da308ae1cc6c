package handlers

import (
	"net/http"
	"time"

	"tarot-backend/locale"
	"tarot-backend/service"
	"tarot-backend/zodiac"

	"github.com/gin-gonic/gin"
)

// TimezoneHeader carries the client's IANA zone, deciding which day is "today"
const TimezoneHeader = "X-Timezone"

// HoroscopeHandler handles HTTP requests for the daily horoscope
type HoroscopeHandler struct {
	horoscopeService *service.HoroscopeService
	bundle           *locale.Bundle
}

// NewHoroscopeHandler creates a new horoscope handler
func NewHoroscopeHandler(horoscopeService *service.HoroscopeService, bundle *locale.Bundle) *HoroscopeHandler {
	return &HoroscopeHandler{
		horoscopeService: horoscopeService,
		bundle:           bundle,
	}
}

// SetBirthDateRequest represents the request body for storing a birth date
type SetBirthDateRequest struct {
	BirthDate string `json:"birth_date" binding:"required"`
}

// SetBirthDate handles PUT /api/horoscope/birth-date
func (h *HoroscopeHandler) SetBirthDate(c *gin.Context) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	var req SetBirthDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_BIRTH_DATE", loc.T(locale.InvalidBirthDate))
		return
	}

	prefs, err := h.horoscopeService.SetBirthDate(c.Request.Context(), id, req.BirthDate)
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}

	sign, _ := zodiac.SignForBirthDate(prefs.BirthDate)
	respondData(c, http.StatusOK, gin.H{
		"birth_date": prefs.BirthDate,
		"sign":       sign,
	})
}

// GetHoroscope handles GET /api/horoscope
func (h *HoroscopeHandler) GetHoroscope(c *gin.Context) {
	loc := locale.FromContext(c, h.bundle)
	id, ok := installationID(c, loc)
	if !ok {
		return
	}

	req := service.HoroscopeRequest{
		InstallationID: id,
		Now:            nowFunc(),
	}
	if tz := c.GetHeader(TimezoneHeader); tz != "" {
		// Unknown zones fall back to the server default
		if zone, err := time.LoadLocation(tz); err == nil {
			req.Location = zone
		}
	}

	result, err := h.horoscopeService.Horoscope(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, loc, err)
		return
	}

	if result.Fallback {
		result.Content = loc.T(locale.HoroscopeUnavailable)
	}
	respondData(c, http.StatusOK, result)
}
