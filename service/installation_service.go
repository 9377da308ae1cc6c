package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tarot-backend/models"
	"tarot-backend/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenBytes = 32

// InstallationService issues and verifies per-device credentials
type InstallationService struct {
	installations repository.InstallationStore
	cost          int
	logger        *slog.Logger

	// verified remembers a digest of the last token that passed bcrypt
	mu       sync.RWMutex
	verified map[uuid.UUID][sha256.Size]byte
}

// InstallationServiceOption is a functional option for InstallationService
type InstallationServiceOption func(*InstallationService)

// InstallationWithStore sets the installation store
func InstallationWithStore(store repository.InstallationStore) InstallationServiceOption {
	return func(s *InstallationService) {
		s.installations = store
	}
}

// InstallationWithBcryptCost overrides the hashing cost
func InstallationWithBcryptCost(cost int) InstallationServiceOption {
	return func(s *InstallationService) {
		s.cost = cost
	}
}

// InstallationWithLogger sets the logger
func InstallationWithLogger(logger *slog.Logger) InstallationServiceOption {
	return func(s *InstallationService) {
		s.logger = logger
	}
}

// NewInstallationService creates a new installation service
func NewInstallationService(opts ...InstallationServiceOption) *InstallationService {
	s := &InstallationService{
		cost:     bcrypt.DefaultCost,
		logger:   slog.Default(),
		verified: make(map[uuid.UUID][sha256.Size]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterResult holds a new installation's credentials. The token is only
// ever returned here.
type RegisterResult struct {
	InstallationID uuid.UUID `json:"installation_id"`
	Token          string    `json:"token"`
	CreatedAt      time.Time `json:"created_at"`
}

// Register creates an installation with a fresh random token
func (s *InstallationService) Register(ctx context.Context) (*RegisterResult, error) {
	if s.installations == nil {
		return nil, errors.New("installation store not set")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash token: %w", err)
	}

	inst := &models.Installation{
		ID:         uuid.New(),
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.installations.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create installation: %w", err)
	}

	s.logger.Info("Installation registered", slog.String("installation_id", inst.ID.String()))
	return &RegisterResult{
		InstallationID: inst.ID,
		Token:          token,
		CreatedAt:      inst.CreatedAt,
	}, nil
}

// Authenticate checks a token against the stored hash
func (s *InstallationService) Authenticate(ctx context.Context, installationID uuid.UUID, token string) error {
	if s.installations == nil {
		return errors.New("installation store not set")
	}
	if token == "" {
		return ErrInvalidCredentials
	}

	digest := sha256.Sum256([]byte(token))
	s.mu.RLock()
	known, ok := s.verified[installationID]
	s.mu.RUnlock()
	if ok && subtle.ConstantTimeCompare(known[:], digest[:]) == 1 {
		return nil
	}

	inst, err := s.installations.GetByID(ctx, installationID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to load installation: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(inst.SecretHash), []byte(token)); err != nil {
		return ErrInvalidCredentials
	}

	s.mu.Lock()
	s.verified[installationID] = digest
	s.mu.Unlock()
	return nil
}
