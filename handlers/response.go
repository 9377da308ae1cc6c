package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tarot-backend/entitlement"
	"tarot-backend/locale"
	"tarot-backend/middleware"
	"tarot-backend/models"
	"tarot-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CooldownOptions are the ways out of a cooldown offered to the client
var CooldownOptions = []string{"ad", "subscribe"}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps service errors onto status codes and localized messages
func respondServiceError(c *gin.Context, loc *locale.Localizer, err error) {
	var cooldown *service.CooldownError
	switch {
	case errors.As(err, &cooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error": gin.H{
				"code": "COOLDOWN_ACTIVE",
				"message": loc.T(locale.CooldownActive, map[string]any{
					"Remaining": entitlement.FormatRemaining(cooldown.Remaining),
				}),
				"remaining_ms": cooldown.Remaining.Milliseconds(),
				"options":      CooldownOptions,
			},
		})
	case errors.Is(err, service.ErrEmptyQuestion):
		respondError(c, http.StatusBadRequest, "EMPTY_QUESTION", loc.T(locale.EmptyQuestion))
	case errors.Is(err, service.ErrQuestionTooLong):
		respondError(c, http.StatusBadRequest, "QUESTION_TOO_LONG", loc.T(locale.QuestionTooLong, map[string]any{
			"Max": service.MaxQuestionLength,
		}))
	case errors.Is(err, service.ErrInvalidBirthDate):
		respondError(c, http.StatusBadRequest, "INVALID_BIRTH_DATE", loc.T(locale.InvalidBirthDate))
	case errors.Is(err, service.ErrMissingBirthDate):
		respondError(c, http.StatusBadRequest, "MISSING_BIRTH_DATE", loc.T(locale.MissingBirthDate))
	case errors.Is(err, service.ErrReadingNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", loc.T(locale.ReadingNotFound))
	case errors.Is(err, service.ErrReadingInProgress):
		respondError(c, http.StatusConflict, "READING_IN_PROGRESS", loc.T(locale.ReadingInProgress))
	case errors.Is(err, service.ErrPlaybackActive):
		respondError(c, http.StatusConflict, "PLAYBACK_ACTIVE", loc.T(locale.PlaybackActive))
	case errors.Is(err, service.ErrTrialAlreadyRedeemed):
		respondError(c, http.StatusConflict, "TRIAL_ALREADY_REDEEMED", loc.T(locale.TrialAlreadyRedeemed))
	case errors.Is(err, service.ErrAlreadyPermanent):
		respondError(c, http.StatusConflict, "ALREADY_PERMANENT", loc.T(locale.AlreadyPermanent))
	case errors.Is(err, service.ErrInterpretationFailed):
		respondError(c, http.StatusBadGateway, "INTERPRETATION_FAILED", loc.T(locale.InterpretationFailed))
	case errors.Is(err, service.ErrNarrationFailed):
		respondError(c, http.StatusBadGateway, "NARRATION_FAILED", loc.T(locale.AudioUnavailable))
	default:
		slog.Error("Request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", loc.T(locale.InternalError))
	}
}

// installationID reads the id InstallationAuth stored; routes without the
// middleware get a 401
func installationID(c *gin.Context, loc *locale.Localizer) (uuid.UUID, bool) {
	id, ok := middleware.InstallationID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "AUTH_REQUIRED", loc.T(locale.Unauthorized))
		return uuid.Nil, false
	}
	return id, true
}

// StatusView is the entitlement snapshot sent to clients
type StatusView struct {
	State               models.PremiumState `json:"state"`
	IsPremium           bool                `json:"is_premium"`
	PremiumExpiry       *int64              `json:"premium_expiry,omitempty"`
	HasRedeemedTrial    bool                `json:"has_redeemed_trial"`
	CooldownRemainingMs int64               `json:"cooldown_remaining_ms"`
	CooldownLabel       string              `json:"cooldown_label,omitempty"`
	LastReadingAt       *time.Time          `json:"last_reading_at,omitempty"`
	BirthDate           string              `json:"birth_date,omitempty"`
	Notice              string              `json:"notice,omitempty"`
}

// NewStatusView renders a status, localizing the one-time expiry notice
func NewStatusView(status *service.Status, loc *locale.Localizer) StatusView {
	view := StatusView{
		State:               status.State,
		IsPremium:           status.Preferences.IsPremium,
		PremiumExpiry:       status.Preferences.PremiumExpiry,
		HasRedeemedTrial:    status.Preferences.HasRedeemedTrial,
		CooldownRemainingMs: status.CooldownRemaining.Milliseconds(),
		BirthDate:           status.Preferences.BirthDate,
	}
	if status.CooldownRemaining > 0 {
		view.CooldownLabel = entitlement.FormatRemaining(status.CooldownRemaining)
	}
	if at := status.Preferences.LastReadingAt(); !at.IsZero() {
		view.LastReadingAt = &at
	}
	if status.ExpiryNotice {
		view.Notice = loc.T(locale.PremiumExpired)
	}
	return view
}

// nowFunc is swapped in tests
var nowFunc = time.Now
