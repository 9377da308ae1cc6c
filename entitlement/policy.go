// Package entitlement holds the pure rules deciding who may read when:
// cooldown, premium lifecycle and horoscope cache validity.
// Functions here never touch a store; they compute values and patches.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"tarot-backend/models"
)

const (
	// CooldownDuration is the wait between free readings
	CooldownDuration = 60 * time.Minute
	// TrialDuration is the length of the rating reward
	TrialDuration = time.Hour
	// RatingOfferDelay is how long after a first reading the rating offer appears
	RatingOfferDelay = 8 * time.Second
	// HistoryLimit is the number of readings kept per installation
	HistoryLimit = 10
)

var (
	ErrTrialAlreadyRedeemed = errors.New("rating reward already redeemed")
	ErrAlreadyPermanent     = errors.New("installation already has permanent premium")
)

// CooldownRemaining is the wait before the next reading, in [0, CooldownDuration].
// Premium installations never wait.
func CooldownRemaining(prefs models.UserPreferences, now time.Time) time.Duration {
	if prefs.IsPremium || prefs.LastReadingTime == 0 {
		return 0
	}

	remaining := time.Duration(prefs.LastReadingTime+CooldownDuration.Milliseconds()-now.UnixMilli()) * time.Millisecond
	if remaining < 0 {
		return 0
	}
	if remaining > CooldownDuration {
		return CooldownDuration
	}
	return remaining
}

// StateOf derives the premium state from the stored flags
func StateOf(prefs models.UserPreferences) models.PremiumState {
	switch {
	case !prefs.IsPremium:
		return models.PremiumStateFree
	case prefs.PremiumExpiry == nil:
		return models.PremiumStatePermanent
	default:
		return models.PremiumStateTemporary
	}
}

// Subscribe grants permanent premium and clears any pending cooldown
func Subscribe() models.PreferencesPatch {
	return models.PreferencesPatch{
		IsPremium:          models.Bool(true),
		ClearPremiumExpiry: true,
		LastReadingTime:    models.Int64(0),
	}
}

// RatingReward grants TrialDuration of premium, once per installation
func RatingReward(prefs models.UserPreferences, now time.Time) (models.PreferencesPatch, error) {
	if prefs.HasRedeemedTrial {
		return models.PreferencesPatch{}, ErrTrialAlreadyRedeemed
	}
	if StateOf(prefs) == models.PremiumStatePermanent {
		return models.PreferencesPatch{}, ErrAlreadyPermanent
	}

	return models.PreferencesPatch{
		IsPremium:        models.Bool(true),
		PremiumExpiry:    models.Int64(now.Add(TrialDuration).UnixMilli()),
		HasRedeemedTrial: models.Bool(true),
		LastReadingTime:  models.Int64(0),
	}, nil
}

// AdBypass clears the cooldown without touching premium flags
func AdBypass() models.PreferencesPatch {
	return models.PreferencesPatch{LastReadingTime: models.Int64(0)}
}

// CheckExpiry revokes a temporary grant whose expiry has passed.
// It reports false, with an empty patch, when there is nothing to revoke,
// so running it again after a revocation changes nothing.
func CheckExpiry(prefs models.UserPreferences, now time.Time) (models.PreferencesPatch, bool) {
	if !prefs.IsPremium || prefs.PremiumExpiry == nil {
		return models.PreferencesPatch{}, false
	}
	if now.UnixMilli() <= *prefs.PremiumExpiry {
		return models.PreferencesPatch{}, false
	}

	return models.PreferencesPatch{
		IsPremium:           models.Bool(false),
		ClearPremiumExpiry:  true,
		ExpiryNoticePending: models.Bool(true),
	}, true
}

// RecordReading returns the patch applied after a successful reading
func RecordReading(prefs models.UserPreferences, now time.Time) models.PreferencesPatch {
	if prefs.IsPremium {
		return models.PreferencesPatch{}
	}
	return models.PreferencesPatch{LastReadingTime: models.Int64(now.UnixMilli())}
}

// QualifiesForRatingOffer reports whether a reading made with prefs, on an
// empty history, should be followed by the rating offer
func QualifiesForRatingOffer(prefs models.UserPreferences, historyWasEmpty bool) bool {
	return historyWasEmpty && !prefs.HasRedeemedTrial && !prefs.IsPremium
}

// CalendarDay returns the YYYY-MM-DD day of now in loc
func CalendarDay(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format("2006-01-02")
}

// HoroscopeCacheValid reports whether cache belongs to today.
// The birth date is not part of the key.
func HoroscopeCacheValid(cache *models.HoroscopeCache, today string) bool {
	return cache != nil && cache.Date == today
}

// FormatRemaining renders a wait as "Xm SSs"
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%dm %02ds", total/60, total%60)
}
