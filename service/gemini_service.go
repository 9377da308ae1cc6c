package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tarot-backend/metrics"
	"tarot-backend/models"

	"github.com/google/generative-ai-go/genai"
)

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiService implements Interpreter, HoroscopeWriter and Synthesizer on Gemini.
// Text goes through the SDK; speech uses the REST endpoint because the SDK
// cannot request the audio modality.
type GeminiService struct {
	client      *genai.Client
	apiKey      string
	textModel   string
	speechModel string
	voice       string
	timeout     time.Duration
	apiBase     string
	httpClient  *http.Client
}

// GeminiServiceOption is a functional option for GeminiService
type GeminiServiceOption func(*GeminiService)

// GeminiWithClient sets the SDK client used for text generation
func GeminiWithClient(client *genai.Client) GeminiServiceOption {
	return func(s *GeminiService) {
		s.client = client
	}
}

// GeminiWithAPIKey sets the key used for REST calls
func GeminiWithAPIKey(key string) GeminiServiceOption {
	return func(s *GeminiService) {
		s.apiKey = key
	}
}

// GeminiWithModels overrides the text and speech models
func GeminiWithModels(textModel, speechModel string) GeminiServiceOption {
	return func(s *GeminiService) {
		if textModel != "" {
			s.textModel = textModel
		}
		if speechModel != "" {
			s.speechModel = speechModel
		}
	}
}

// GeminiWithVoice sets the prebuilt narration voice
func GeminiWithVoice(voice string) GeminiServiceOption {
	return func(s *GeminiService) {
		if voice != "" {
			s.voice = voice
		}
	}
}

// GeminiWithTimeout bounds every provider call; zero leaves calls unbounded
func GeminiWithTimeout(timeout time.Duration) GeminiServiceOption {
	return func(s *GeminiService) {
		s.timeout = timeout
	}
}

// GeminiWithAPIBase points REST calls at another host
func GeminiWithAPIBase(base string) GeminiServiceOption {
	return func(s *GeminiService) {
		s.apiBase = strings.TrimSuffix(base, "/")
	}
}

// NewGeminiService creates a new Gemini service
func NewGeminiService(opts ...GeminiServiceOption) *GeminiService {
	s := &GeminiService{
		textModel:   "gemini-2.5-flash",
		speechModel: "gemini-2.5-flash-preview-tts",
		voice:       "Charon",
		apiBase:     geminiAPIBase,
		httpClient:  &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interpret generates the reading text
func (s *GeminiService) Interpret(ctx context.Context, question string, cards []models.DrawnCard) (string, error) {
	return s.generateText(ctx, "interpret", readingPrompt(question, cards), 0.9)
}

// WriteHoroscope generates the daily horoscope text
func (s *GeminiService) WriteHoroscope(ctx context.Context, sign, birthDate string, premium bool) (string, error) {
	return s.generateText(ctx, "horoscope", horoscopePrompt(sign, birthDate, premium), 0.8)
}

func (s *GeminiService) generateText(ctx context.Context, operation, prompt string, temperature float32) (string, error) {
	if s.client == nil {
		return "", errors.New("gemini client not set")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	model := s.client.GenerativeModel(s.textModel)
	model.SetTemperature(temperature)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(readerPersona)}}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	metrics.AIRequestDuration.WithLabelValues("gemini", operation).Observe(time.Since(start).Seconds())
	if err != nil {
		recordAIError("gemini", operation, err)
		return "", fmt.Errorf("gemini %s: %w", operation, err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		break // first candidate only
	}

	result := strings.TrimSpace(text.String())
	if result == "" {
		recordAIError("gemini", operation, ErrEmptyResponse)
		return "", ErrEmptyResponse
	}
	return result, nil
}

// Synthesize narrates text through the Gemini speech endpoint
func (s *GeminiService) Synthesize(ctx context.Context, text string) (*models.AudioBuffer, error) {
	if s.apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": narrationText(text)},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]interface{}{
				"voiceConfig": map[string]interface{}{
					"prebuiltVoiceConfig": map[string]interface{}{
						"voiceName": s.voice,
					},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", s.apiBase, s.speechModel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		recordAIError("gemini", "speech", err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	metrics.AIRequestDuration.WithLabelValues("gemini", "speech").Observe(time.Since(start).Seconds())
	if err != nil {
		recordAIError("gemini", "speech", err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.AIErrorsTotal.WithLabelValues("gemini", "speech", "status").Inc()
		slog.Warn("Gemini speech API error", slog.Int("status", resp.StatusCode), slog.String("body", truncate(string(bodyBytes), 500)))
		return nil, fmt.Errorf("API error: %d", resp.StatusCode)
	}

	var apiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					InlineData struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason,omitempty"`
		} `json:"candidates"`
		Error struct {
			Code    int    `json:"code,omitempty"`
			Message string `json:"message,omitempty"`
		} `json:"error,omitempty"`
	}

	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		metrics.AIErrorsTotal.WithLabelValues("gemini", "speech", "decode").Inc()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Error.Message != "" {
		metrics.AIErrorsTotal.WithLabelValues("gemini", "speech", "api").Inc()
		return nil, fmt.Errorf("API error: %s (code: %d)", apiResp.Error.Message, apiResp.Error.Code)
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		metrics.AIErrorsTotal.WithLabelValues("gemini", "speech", "empty").Inc()
		return nil, ErrEmptyResponse
	}

	encoded := apiResp.Candidates[0].Content.Parts[0].InlineData.Data
	if encoded == "" {
		metrics.AIErrorsTotal.WithLabelValues("gemini", "speech", "empty").Inc()
		return nil, ErrEmptyResponse
	}

	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		metrics.AIErrorsTotal.WithLabelValues("gemini", "speech", "decode").Inc()
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	return models.DecodePCM16(pcm, models.NarrationSampleRate), nil
}

func (s *GeminiService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// recordAIError counts a provider failure by kind
func recordAIError(provider, operation string, err error) {
	kind := "api"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	case errors.Is(err, context.Canceled):
		kind = "canceled"
	case errors.Is(err, ErrEmptyResponse):
		kind = "empty"
	}
	metrics.AIErrorsTotal.WithLabelValues(provider, operation, kind).Inc()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
