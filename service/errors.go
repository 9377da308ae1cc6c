package service

import (
	"errors"
	"fmt"
	"time"

	"tarot-backend/entitlement"
)

// Service errors
var (
	ErrEmptyQuestion        = errors.New("question is empty")
	ErrQuestionTooLong      = errors.New("question is too long")
	ErrCooldownActive       = errors.New("reading cooldown active")
	ErrReadingInProgress    = errors.New("a reading is already in progress")
	ErrReadingNotFound      = errors.New("reading not found")
	ErrInterpretationFailed = errors.New("failed to interpret reading")
	ErrMissingBirthDate     = errors.New("birth date not set")
	ErrInvalidBirthDate     = errors.New("invalid birth date")
	ErrPlaybackActive       = errors.New("narration already playing")
	ErrNarrationFailed      = errors.New("failed to synthesize narration")
	ErrInvalidCredentials   = errors.New("invalid installation credentials")
	ErrEmptyResponse        = errors.New("provider returned empty content")
	ErrTrialAlreadyRedeemed = entitlement.ErrTrialAlreadyRedeemed
	ErrAlreadyPermanent     = entitlement.ErrAlreadyPermanent
)

// CooldownError refuses a reading; it matches ErrCooldownActive
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("reading cooldown active, %s remaining", entitlement.FormatRemaining(e.Remaining))
}

// Is lets errors.Is match ErrCooldownActive
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}
