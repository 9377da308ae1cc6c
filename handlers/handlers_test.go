package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tarot-backend/locale"
	"tarot-backend/middleware"
	"tarot-backend/models"
	"tarot-backend/repository"
	"tarot-backend/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type stubInterpreter struct{ err error }

func (s stubInterpreter) Interpret(ctx context.Context, question string, cards []models.DrawnCard) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "O caminho se abre diante de você, com coragem e paciência.", nil
}

type stubWriter struct{ err error }

func (s stubWriter) WriteHoroscope(ctx context.Context, sign, birthDate string, premium bool) (string, error) {
	return "Hoje " + sign + " brilha.", s.err
}

type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, text string) (*models.AudioBuffer, error) {
	return &models.AudioBuffer{SampleRate: models.NarrationSampleRate, Channels: 1, Samples: []int16{1, 2, 3}}, nil
}

type testEnv struct {
	router *gin.Engine
	store  *repository.MemoryStore
	id     string
	token  string
	now    time.Time
}

func setupTestEnv(t *testing.T, interp service.Interpreter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bundle, err := locale.NewBundle("pt-BR")
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}

	store := repository.NewMemoryStore(0)
	installs := service.NewInstallationService(
		service.InstallationWithStore(store),
		service.InstallationWithBcryptCost(bcrypt.MinCost),
	)
	readings := service.NewReadingService(
		service.ReadingWithPreferenceStore(store),
		service.ReadingWithHistoryStore(store),
		service.ReadingWithRecorder(store),
		service.ReadingWithInterpreter(interp),
	)
	t.Cleanup(readings.Close)
	entitlements := service.NewEntitlementService(service.EntitlementWithPreferenceStore(store))
	horoscopes := service.NewHoroscopeService(
		service.HoroscopeWithPreferenceStore(store),
		service.HoroscopeWithWriter(stubWriter{}),
	)
	audio := service.NewAudioService(
		service.AudioWithHistoryStore(store),
		service.AudioWithSynthesizer(stubSynth{}),
	)

	env := &testEnv{
		store: store,
		now:   time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	nowFunc = func() time.Time { return env.now }
	t.Cleanup(func() { nowFunc = time.Now })

	installationHandler := NewInstallationHandler(installs, bundle)
	readingHandler := NewReadingHandler(readings, bundle)
	entitlementHandler := NewEntitlementHandler(entitlements, bundle)
	horoscopeHandler := NewHoroscopeHandler(horoscopes, bundle)
	audioHandler := NewAudioHandler(audio, bundle)

	r := gin.New()
	r.Use(bundle.Middleware())
	api := r.Group("/api")
	api.POST("/installations", installationHandler.Register)
	api.GET("/cards", readingHandler.ListCards)

	authed := api.Group("")
	authed.Use(middleware.InstallationAuth(installs, bundle))
	authed.GET("/status", entitlementHandler.GetStatus)
	authed.GET("/preferences", entitlementHandler.GetPreferences)
	authed.POST("/readings", readingHandler.CreateReading)
	authed.GET("/readings", readingHandler.ListReadings)
	authed.GET("/readings/:id", readingHandler.GetReading)
	authed.GET("/readings/:id/share", readingHandler.ShareReading)
	authed.GET("/readings/:id/audio", audioHandler.GetNarration)
	authed.POST("/entitlements/subscribe", entitlementHandler.Subscribe)
	authed.POST("/entitlements/rating-reward", entitlementHandler.RedeemRatingReward)
	authed.POST("/entitlements/ad-reward", entitlementHandler.WatchAdReward)
	authed.PUT("/horoscope/birth-date", horoscopeHandler.SetBirthDate)
	authed.GET("/horoscope", horoscopeHandler.GetHoroscope)
	env.router = r

	w := env.do(t, http.MethodPost, "/api/installations", "", false)
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	var reg struct {
		Data struct {
			InstallationID string `json:"installation_id"`
			Token          string `json:"token"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &reg)
	env.id, env.token = reg.Data.InstallationID, reg.Data.Token
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("X-Installation-ID", e.id)
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code        string   `json:"code"`
		Message     string   `json:"message"`
		RemainingMs int64    `json:"remaining_ms"`
		Options     []string `json:"options"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return env
}

func TestReadingFlow(t *testing.T) {
	env := setupTestEnv(t, stubInterpreter{})

	w := env.do(t, http.MethodPost, "/api/readings", `{"question":"Vou passar na prova?"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var created CreateReadingResponse
	json.Unmarshal(decode(t, w).Data, &created)
	if len(created.Reading.Cards) != 3 || created.HistorySize != 1 {
		t.Errorf("created = %+v", created)
	}
	if created.CooldownRemainingMs != time.Hour.Milliseconds() {
		t.Errorf("cooldown = %d", created.CooldownRemainingMs)
	}
	if created.RatingOfferInMs != 8000 {
		t.Errorf("rating offer in = %d, want 8000", created.RatingOfferInMs)
	}

	w = env.do(t, http.MethodGet, "/api/status", "", true)
	var current struct {
		Status StatusView `json:"status"`
	}
	json.Unmarshal(decode(t, w).Data, &current)
	if current.Status.LastReadingAt == nil || !current.Status.LastReadingAt.Equal(env.now) {
		t.Errorf("last reading at = %v, want %v", current.Status.LastReadingAt, env.now)
	}

	env.now = env.now.Add(30 * time.Minute)
	w = env.do(t, http.MethodPost, "/api/readings", `{"question":"E agora?"}`, true)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	refused := decode(t, w)
	if refused.Error.Code != "COOLDOWN_ACTIVE" || refused.Error.RemainingMs != (30*time.Minute).Milliseconds() {
		t.Errorf("refusal = %+v", refused.Error)
	}
	if len(refused.Error.Options) != 2 || !strings.Contains(refused.Error.Message, "30m 00s") {
		t.Errorf("refusal = %+v", refused.Error)
	}

	w = env.do(t, http.MethodPost, "/api/entitlements/ad-reward", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("ad reward status = %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/readings", `{"question":"E agora?"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("after ad status = %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/readings", "", true)
	var history []models.ReadingResult
	json.Unmarshal(decode(t, w).Data, &history)
	if len(history) != 2 || history[0].Question != "E agora?" {
		t.Fatalf("history = %+v", history)
	}

	w = env.do(t, http.MethodGet, "/api/readings/"+history[1].ID+"/share", "", true)
	var share struct {
		Text string `json:"text"`
	}
	json.Unmarshal(decode(t, w).Data, &share)
	if !strings.Contains(share.Text, "Vou passar na prova?") || !strings.Contains(share.Text, "TAROT VERDADEIRO") {
		t.Errorf("share text = %q", share.Text)
	}

	w = env.do(t, http.MethodGet, "/api/readings/"+history[0].ID+"/audio", "", true)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "audio/wav" {
		t.Errorf("audio status = %d type = %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = env.do(t, http.MethodGet, "/api/readings/missing", "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing reading status = %d", w.Code)
	}
}

func TestCreateReadingErrors(t *testing.T) {
	tests := []struct {
		name           string
		interp         service.Interpreter
		body           string
		expectedStatus int
		expectedCode   string
	}{
		{"empty question", stubInterpreter{}, `{"question":"   "}`, http.StatusBadRequest, "EMPTY_QUESTION"},
		{"too long", stubInterpreter{}, `{"question":"` + strings.Repeat("a", 201) + `"}`, http.StatusBadRequest, "QUESTION_TOO_LONG"},
		{"malformed body", stubInterpreter{}, `{`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"provider failure", stubInterpreter{err: errors.New("boom")}, `{"question":"oi"}`, http.StatusBadGateway, "INTERPRETATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, tt.interp)
			w := env.do(t, http.MethodPost, "/api/readings", tt.body, true)
			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}
			if got := decode(t, w); got.Error.Code != tt.expectedCode {
				t.Errorf("code = %q, want %q", got.Error.Code, tt.expectedCode)
			}
		})
	}
}

func TestReadingsRequireAuth(t *testing.T) {
	env := setupTestEnv(t, stubInterpreter{})
	w := env.do(t, http.MethodPost, "/api/readings", `{"question":"oi"}`, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestEntitlementEndpoints(t *testing.T) {
	env := setupTestEnv(t, stubInterpreter{})

	w := env.do(t, http.MethodPost, "/api/entitlements/rating-reward", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("rating reward status = %d: %s", w.Code, w.Body.String())
	}
	var granted struct {
		Status  StatusView `json:"status"`
		Message string     `json:"message"`
	}
	json.Unmarshal(decode(t, w).Data, &granted)
	if granted.Status.State != models.PremiumStateTemporary || granted.Message == "" {
		t.Errorf("granted = %+v", granted)
	}

	w = env.do(t, http.MethodPost, "/api/entitlements/rating-reward", "", true)
	if w.Code != http.StatusConflict || decode(t, w).Error.Code != "TRIAL_ALREADY_REDEEMED" {
		t.Errorf("second redeem = %d %s", w.Code, w.Body.String())
	}

	env.now = env.now.Add(2 * time.Hour)
	w = env.do(t, http.MethodGet, "/api/status", "", true)
	var status struct {
		Status StatusView `json:"status"`
	}
	json.Unmarshal(decode(t, w).Data, &status)
	if status.Status.State != models.PremiumStateFree || status.Status.Notice == "" {
		t.Errorf("status after expiry = %+v", status.Status)
	}

	w = env.do(t, http.MethodGet, "/api/status", "", true)
	status.Status = StatusView{}
	json.Unmarshal(decode(t, w).Data, &status)
	if status.Status.Notice != "" {
		t.Error("expiry notice repeated")
	}

	w = env.do(t, http.MethodPost, "/api/entitlements/subscribe", "", true)
	json.Unmarshal(decode(t, w).Data, &status)
	if status.Status.State != models.PremiumStatePermanent {
		t.Errorf("after subscribe = %+v", status.Status)
	}

	w = env.do(t, http.MethodGet, "/api/preferences", "", true)
	var prefs models.UserPreferences
	json.Unmarshal(decode(t, w).Data, &prefs)
	if !prefs.IsPremium || !prefs.HasRedeemedTrial || prefs.PremiumExpiry != nil {
		t.Errorf("preferences = %+v", prefs)
	}
}

func TestHoroscopeEndpoints(t *testing.T) {
	env := setupTestEnv(t, stubInterpreter{})

	w := env.do(t, http.MethodGet, "/api/horoscope", "", true)
	if w.Code != http.StatusBadRequest || decode(t, w).Error.Code != "MISSING_BIRTH_DATE" {
		t.Errorf("without birth date = %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPut, "/api/horoscope/birth-date", `{"birth_date":"15/07/1990"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad birth date status = %d", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/horoscope/birth-date", `{"birth_date":"1990-07-15"}`, true)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Câncer") {
		t.Fatalf("set birth date = %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/horoscope", "", true)
	var first service.HoroscopeResult
	json.Unmarshal(decode(t, w).Data, &first)
	if first.Cached || first.Content != "Hoje Câncer brilha." {
		t.Errorf("first = %+v", first)
	}

	w = env.do(t, http.MethodGet, "/api/horoscope", "", true)
	var second service.HoroscopeResult
	json.Unmarshal(decode(t, w).Data, &second)
	if !second.Cached {
		t.Errorf("second = %+v, want cached", second)
	}
}

func TestListCards(t *testing.T) {
	env := setupTestEnv(t, stubInterpreter{})
	w := env.do(t, http.MethodGet, "/api/cards", "", false)

	var cards []CardView
	json.Unmarshal(decode(t, w).Data, &cards)
	if len(cards) != 78 {
		t.Fatalf("got %d cards, want 78", len(cards))
	}
	if len(cards[0].ImageURLs) == 0 {
		t.Error("card has no image urls")
	}
}
