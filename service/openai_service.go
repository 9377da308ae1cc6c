package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tarot-backend/metrics"
	"tarot-backend/models"

	"github.com/sashabaranov/go-openai"
)

// OpenAIService implements Interpreter and HoroscopeWriter on an
// OpenAI-compatible chat completion API
type OpenAIService struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIService creates a new OpenAI-backed text provider; baseURL may be empty
func NewOpenAIService(apiKey, baseURL, model string, timeout time.Duration) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" || strings.HasPrefix(model, "gemini") {
		model = openai.GPT4oMini
	}

	return &OpenAIService{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}
}

// Interpret generates the reading text
func (s *OpenAIService) Interpret(ctx context.Context, question string, cards []models.DrawnCard) (string, error) {
	return s.complete(ctx, "interpret", readingPrompt(question, cards), 0.9)
}

// WriteHoroscope generates the daily horoscope text
func (s *OpenAIService) WriteHoroscope(ctx context.Context, sign, birthDate string, premium bool) (string, error) {
	return s.complete(ctx, "horoscope", horoscopePrompt(sign, birthDate, premium), 0.8)
}

func (s *OpenAIService) complete(ctx context.Context, operation, prompt string, temperature float32) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       s.model,
			Temperature: temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: readerPersona,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	metrics.AIRequestDuration.WithLabelValues("openai", operation).Observe(time.Since(start).Seconds())
	if err != nil {
		recordAIError("openai", operation, err)
		return "", fmt.Errorf("openai %s: %w", operation, err)
	}

	if len(resp.Choices) == 0 {
		recordAIError("openai", operation, ErrEmptyResponse)
		return "", ErrEmptyResponse
	}

	result := strings.TrimSpace(resp.Choices[0].Message.Content)
	if result == "" {
		recordAIError("openai", operation, ErrEmptyResponse)
		return "", ErrEmptyResponse
	}
	return result, nil
}
