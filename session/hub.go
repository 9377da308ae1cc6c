// Package session keeps live websocket sessions: a per-session 1s tick that
// pushes entitlement status, plus delivery of events raised by services.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"tarot-backend/handlers"
	"tarot-backend/locale"
	"tarot-backend/metrics"
	"tarot-backend/middleware"
	"tarot-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	tickInterval = 1 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 16
)

// StatusSource reports entitlement status; *service.EntitlementService satisfies it
type StatusSource interface {
	Status(ctx context.Context, installationID uuid.UUID, now time.Time) (*service.Status, error)
}

// Message is the wire form of an event
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Hub tracks open sessions by installation
type Hub struct {
	status   StatusSource
	bundle   *locale.Bundle
	upgrader websocket.Upgrader
	tick     time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*Session]struct{}
	closed   bool
}

// HubOption is a functional option for Hub
type HubOption func(*Hub)

// WithTickInterval overrides the status tick
func WithTickInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.tick = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// WithCheckOrigin sets the websocket origin check
func WithCheckOrigin(check func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = check
	}
}

// NewHub creates a session hub
func NewHub(status StatusSource, bundle *locale.Bundle, opts ...HubOption) *Hub {
	h := &Hub{
		status: status,
		bundle: bundle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		tick:     tickInterval,
		now:      time.Now,
		sessions: make(map[uuid.UUID]map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve handles GET /api/session. It must run behind InstallationAuth.
func (h *Hub) Serve(c *gin.Context) {
	id, ok := middleware.InstallationID(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("Session upgrade failed", slog.Any("error", err))
		return
	}

	s := newSession(h, conn, id, locale.FromContext(c, h.bundle))
	if !h.register(s) {
		conn.Close()
		return
	}
	defer h.unregister(s)

	s.run()
}

// Notify queues an event for every session of an installation
func (h *Hub) Notify(installationID uuid.UUID, event service.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.sessions[installationID] {
		s.enqueue(event)
	}
}

// Count returns the number of open sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.sessions {
		n += len(set)
	}
	return n
}

// Close ends every session and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Session
	for _, set := range h.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

func (h *Hub) register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	set, ok := h.sessions[s.installationID]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[s.installationID] = set
	}
	set[s] = struct{}{}
	metrics.ActiveSessions.Inc()
	return true
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.sessions[s.installationID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, s.installationID)
	}
	metrics.ActiveSessions.Dec()
}

// Session is one websocket connection
type Session struct {
	hub            *Hub
	conn           *websocket.Conn
	installationID uuid.UUID
	localizer      *locale.Localizer

	events  chan service.Event
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	lastStatus *handlers.StatusView
}

func newSession(h *Hub, conn *websocket.Conn, id uuid.UUID, loc *locale.Localizer) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		hub:            h,
		conn:           conn,
		installationID: id,
		localizer:      loc,
		events:         make(chan service.Event, sendBuffer),
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (s *Session) enqueue(event service.Event) {
	select {
	case s.events <- event:
	default:
		slog.Warn("Session buffer full, dropping event",
			slog.String("installation_id", s.installationID.String()),
			slog.String("type", event.Type))
	}
}

func (s *Session) stop() {
	s.cancel()
}

// run owns the tick; it returns when the client goes away or the hub closes
func (s *Session) run() {
	defer s.conn.Close()
	defer s.cancel()

	go s.readLoop()

	ticker := time.NewTicker(s.hub.tick)
	defer ticker.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	if err := s.pushStatus(); err != nil {
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			s.writeClose()
			return
		case <-ticker.C:
			if err := s.pushStatus(); err != nil {
				return
			}
		case event := <-s.events:
			if err := s.writeEvent(event); err != nil {
				return
			}
		case <-ping.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so control messages are processed
func (s *Session) readLoop() {
	defer s.cancel()

	s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

func (s *Session) pushStatus() error {
	status, err := s.hub.status.Status(s.ctx, s.installationID, s.hub.now())
	if err != nil {
		if s.ctx.Err() != nil {
			return err
		}
		slog.Warn("Session status failed", slog.String("installation_id", s.installationID.String()), slog.Any("error", err))
		return nil
	}

	view := handlers.NewStatusView(status, s.localizer)
	if view.Notice != "" {
		if err := s.writeEvent(service.Event{Type: service.EventNotice, Message: locale.PremiumExpired}); err != nil {
			return err
		}
		view.Notice = ""
	}

	if s.lastStatus != nil && reflect.DeepEqual(*s.lastStatus, view) {
		return nil
	}
	s.lastStatus = &view
	return s.writeJSON(Message{Type: service.EventStatus, Data: view})
}

func (s *Session) writeEvent(event service.Event) error {
	msg := Message{Type: event.Type, Data: event.Data}
	if event.Message != "" {
		msg.Message = s.localizer.T(event.Message)
	}
	return s.writeJSON(msg)
}

func (s *Session) writeJSON(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, b)
}

func (s *Session) write(msgType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(msgType, data)
}

func (s *Session) writeClose() {
	s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}
