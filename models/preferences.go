package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// HoroscopeCache holds the last generated horoscope and the calendar day it belongs to
type HoroscopeCache struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Content string `json:"content"`
}

// UserPreferences is the per-installation entitlement and personalisation record.
// Times are epoch milliseconds; LastReadingTime 0 means "no cooldown".
type UserPreferences struct {
	LastReadingTime     int64           `json:"lastReadingTime"`
	IsPremium           bool            `json:"isPremium"`
	PremiumExpiry       *int64          `json:"premiumExpiry"`
	HasRedeemedTrial    bool            `json:"hasRedeemedTrial"`
	BirthDate           string          `json:"birthDate,omitempty"`
	CachedHoroscope     *HoroscopeCache `json:"cachedHoroscope,omitempty"`
	ExpiryNoticePending bool            `json:"expiryNoticePending"`
}

// DefaultPreferences returns the record of a fresh installation
func DefaultPreferences() UserPreferences {
	return UserPreferences{}
}

// DecodePreferences overlays a stored document on the defaults, so fields
// missing from older documents keep their default values.
func DecodePreferences(data []byte) (UserPreferences, error) {
	prefs := DefaultPreferences()
	if len(data) == 0 {
		return prefs, nil
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return DefaultPreferences(), err
	}
	return prefs, nil
}

// Value implements driver.Valuer for JSONB
func (p UserPreferences) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB; a corrupt document scans as defaults
func (p *UserPreferences) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*p = DefaultPreferences()
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	// DecodePreferences falls back to defaults on error
	*p, _ = DecodePreferences(bytes)
	return nil
}

// LastReadingAt returns LastReadingTime as a time, zero when unset
func (p UserPreferences) LastReadingAt() time.Time {
	if p.LastReadingTime == 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.LastReadingTime)
}

// PremiumExpiresAt returns the temporary premium expiry, nil for none
func (p UserPreferences) PremiumExpiresAt() *time.Time {
	if p.PremiumExpiry == nil {
		return nil
	}
	t := time.UnixMilli(*p.PremiumExpiry)
	return &t
}

// PreferencesPatch is a partial update; nil fields are left untouched.
type PreferencesPatch struct {
	LastReadingTime     *int64
	IsPremium           *bool
	PremiumExpiry       *int64
	ClearPremiumExpiry  bool
	HasRedeemedTrial    *bool
	BirthDate           *string
	CachedHoroscope     *HoroscopeCache
	ExpiryNoticePending *bool
}

// IsEmpty reports whether the patch changes nothing
func (p PreferencesPatch) IsEmpty() bool {
	return p.LastReadingTime == nil &&
		p.IsPremium == nil &&
		p.PremiumExpiry == nil &&
		!p.ClearPremiumExpiry &&
		p.HasRedeemedTrial == nil &&
		p.BirthDate == nil &&
		p.CachedHoroscope == nil &&
		p.ExpiryNoticePending == nil
}

// Apply merges the patch into prefs, field by field
func (p PreferencesPatch) Apply(prefs *UserPreferences) {
	if p.LastReadingTime != nil {
		prefs.LastReadingTime = *p.LastReadingTime
	}
	if p.IsPremium != nil {
		prefs.IsPremium = *p.IsPremium
	}
	if p.ClearPremiumExpiry {
		prefs.PremiumExpiry = nil
	} else if p.PremiumExpiry != nil {
		expiry := *p.PremiumExpiry
		prefs.PremiumExpiry = &expiry
	}
	if p.HasRedeemedTrial != nil {
		prefs.HasRedeemedTrial = *p.HasRedeemedTrial
	}
	if p.BirthDate != nil {
		prefs.BirthDate = *p.BirthDate
	}
	if p.CachedHoroscope != nil {
		cache := *p.CachedHoroscope
		prefs.CachedHoroscope = &cache
	}
	if p.ExpiryNoticePending != nil {
		prefs.ExpiryNoticePending = *p.ExpiryNoticePending
	}
}

// Bool returns a pointer to b, for building patches
func Bool(b bool) *bool {
	return &b
}

// Int64 returns a pointer to v, for building patches
func Int64(v int64) *int64 {
	return &v
}

// String returns a pointer to s, for building patches
func String(s string) *string {
	return &s
}
