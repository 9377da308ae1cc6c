package models

import (
	"time"

	"github.com/google/uuid"
)

// Installation identifies one client install; it carries no personal data
type Installation struct {
	ID         uuid.UUID `json:"id" gorm:"type:text;primaryKey"`
	SecretHash string    `json:"-"` // Never serialize token hash
	CreatedAt  time.Time `json:"created_at"`
}

// PremiumState is the derived entitlement state
type PremiumState string

const (
	PremiumStateFree      PremiumState = "FREE"
	PremiumStatePermanent PremiumState = "PREMIUM_PERMANENT"
	PremiumStateTemporary PremiumState = "PREMIUM_TEMPORARY"
)
