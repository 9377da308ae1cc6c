package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tarot-backend/entitlement"
	"tarot-backend/metrics"
	"tarot-backend/models"
	"tarot-backend/repository"

	"github.com/google/uuid"
)

// EntitlementService applies the premium lifecycle to stored preferences
type EntitlementService struct {
	preferences repository.PreferenceStore
	logger      *slog.Logger
}

// EntitlementServiceOption is a functional option for EntitlementService
type EntitlementServiceOption func(*EntitlementService)

// EntitlementWithPreferenceStore sets the preference store
func EntitlementWithPreferenceStore(store repository.PreferenceStore) EntitlementServiceOption {
	return func(s *EntitlementService) {
		s.preferences = store
	}
}

// EntitlementWithLogger sets the logger
func EntitlementWithLogger(logger *slog.Logger) EntitlementServiceOption {
	return func(s *EntitlementService) {
		s.logger = logger
	}
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(opts ...EntitlementServiceOption) *EntitlementService {
	s := &EntitlementService{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status is the entitlement snapshot of an installation
type Status struct {
	Preferences       models.UserPreferences
	State             models.PremiumState
	PremiumExpiresAt  *time.Time
	CooldownRemaining time.Duration
	// ExpiryNotice is true exactly once after a temporary grant is revoked
	ExpiryNotice bool
}

func statusOf(prefs models.UserPreferences, now time.Time) *Status {
	return &Status{
		Preferences:       prefs,
		State:             entitlement.StateOf(prefs),
		PremiumExpiresAt:  prefs.PremiumExpiresAt(),
		CooldownRemaining: entitlement.CooldownRemaining(prefs, now),
	}
}

// Status re-reads preferences, revokes an expired grant and delivers the
// pending expiry notice, if any
func (s *EntitlementService) Status(ctx context.Context, installationID uuid.UUID, now time.Time) (*Status, error) {
	if s.preferences == nil {
		return nil, errors.New("preference store not set")
	}

	prefs, err := refreshPreferences(ctx, s.preferences, installationID, now)
	if err != nil {
		return nil, err
	}

	notice := false
	if prefs.ExpiryNoticePending {
		prefs, err = s.preferences.Save(ctx, installationID, models.PreferencesPatch{
			ExpiryNoticePending: models.Bool(false),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to clear expiry notice: %w", err)
		}
		notice = true
	}

	status := statusOf(prefs, now)
	status.ExpiryNotice = notice
	return status, nil
}

// Subscribe grants permanent premium
func (s *EntitlementService) Subscribe(ctx context.Context, installationID uuid.UUID, now time.Time) (*Status, error) {
	if s.preferences == nil {
		return nil, errors.New("preference store not set")
	}

	prefs, err := s.preferences.Save(ctx, installationID, entitlement.Subscribe())
	if err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	metrics.PremiumTransitionsTotal.WithLabelValues("subscribe").Inc()
	s.logger.Info("Premium subscribed", slog.String("installation_id", installationID.String()))
	return statusOf(prefs, now), nil
}

// RedeemRatingReward grants one hour of premium, once per installation
func (s *EntitlementService) RedeemRatingReward(ctx context.Context, installationID uuid.UUID, now time.Time) (*Status, error) {
	if s.preferences == nil {
		return nil, errors.New("preference store not set")
	}

	prefs, err := refreshPreferences(ctx, s.preferences, installationID, now)
	if err != nil {
		return nil, err
	}

	patch, err := entitlement.RatingReward(prefs, now)
	if err != nil {
		return nil, err
	}

	prefs, err = s.preferences.Save(ctx, installationID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to save rating reward: %w", err)
	}

	metrics.PremiumTransitionsTotal.WithLabelValues("rating_reward").Inc()
	s.logger.Info("Rating reward granted",
		slog.String("installation_id", installationID.String()),
		slog.Int64("premium_expiry", *prefs.PremiumExpiry))
	return statusOf(prefs, now), nil
}

// WatchAdReward clears the cooldown after an ad was watched
func (s *EntitlementService) WatchAdReward(ctx context.Context, installationID uuid.UUID, now time.Time) (*Status, error) {
	if s.preferences == nil {
		return nil, errors.New("preference store not set")
	}

	prefs, err := s.preferences.Save(ctx, installationID, entitlement.AdBypass())
	if err != nil {
		return nil, fmt.Errorf("failed to save ad reward: %w", err)
	}

	metrics.PremiumTransitionsTotal.WithLabelValues("ad_bypass").Inc()
	return statusOf(prefs, now), nil
}

// SweepExpired revokes every temporary grant that has ended. The notice
// stays pending until a session or status call delivers it.
func (s *EntitlementService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if s.preferences == nil {
		return 0, errors.New("preference store not set")
	}

	ids, err := s.preferences.ListExpiredPremium(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired grants: %w", err)
	}

	revoked := 0
	for _, id := range ids {
		before, err := s.preferences.Load(ctx, id)
		if err != nil {
			s.logger.Warn("Sweep: failed to load preferences", slog.String("installation_id", id.String()), slog.Any("error", err))
			continue
		}
		if _, expired := entitlement.CheckExpiry(before, now); !expired {
			continue
		}
		if _, err := refreshPreferences(ctx, s.preferences, id, now); err != nil {
			s.logger.Warn("Sweep: failed to revoke", slog.String("installation_id", id.String()), slog.Any("error", err))
			continue
		}
		revoked++
	}

	return revoked, nil
}
