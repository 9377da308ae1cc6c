package service

import (
	"context"
	"sync"

	"tarot-backend/models"

	"github.com/google/uuid"
)

// Interpreter turns a question and a spread into a reading
type Interpreter interface {
	Interpret(ctx context.Context, question string, cards []models.DrawnCard) (string, error)
}

// HoroscopeWriter writes the daily horoscope for a sign; premium asks for the detailed version
type HoroscopeWriter interface {
	WriteHoroscope(ctx context.Context, sign, birthDate string, premium bool) (string, error)
}

// Synthesizer narrates text as 24 kHz mono PCM
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*models.AudioBuffer, error)
}

// Event types pushed to live sessions
const (
	EventStatus      = "status"
	EventNotice      = "notice"
	EventRatingOffer = "rating_offer"
)

// Event is a message for an installation's live sessions
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"` // locale message ID
	Data    any    `json:"data,omitempty"`
}

// Notifier delivers events to whatever sessions an installation has open
type Notifier interface {
	Notify(installationID uuid.UUID, event Event)
}

// inflight admits at most one operation per installation
type inflight struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func newInflight() *inflight {
	return &inflight{active: make(map[uuid.UUID]struct{})}
}

func (g *inflight) acquire(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[id]; busy {
		return false
	}
	g.active[id] = struct{}{}
	return true
}

func (g *inflight) release(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, id)
}
