// Package locale serves the user-facing messages in the caller's language.
package locale

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed translation/*
var translationFS embed.FS

// Message IDs
const (
	EmptyQuestion        = "EmptyQuestion"
	QuestionTooLong      = "QuestionTooLong"
	CooldownActive       = "CooldownActive"
	InterpretationFailed = "InterpretationFailed"
	ReadingFallback      = "ReadingFallback"
	ReadingInProgress    = "ReadingInProgress"
	ReadingNotFound      = "ReadingNotFound"
	PremiumExpired       = "PremiumExpired"
	SubscribeSuccess     = "SubscribeSuccess"
	RatingRewardGranted  = "RatingRewardGranted"
	TrialAlreadyRedeemed = "TrialAlreadyRedeemed"
	AlreadyPermanent     = "AlreadyPermanent"
	AdRewardGranted      = "AdRewardGranted"
	RatingOffer          = "RatingOffer"
	MissingBirthDate     = "MissingBirthDate"
	InvalidBirthDate     = "InvalidBirthDate"
	HoroscopeSilent      = "HoroscopeSilent"
	HoroscopeUnavailable = "HoroscopeUnavailable"
	AudioUnavailable     = "AudioUnavailable"
	PlaybackActive       = "PlaybackActive"
	Unauthorized         = "Unauthorized"
	RateLimited          = "RateLimited"
	InternalError        = "InternalError"
	ShareText            = "ShareText"
)

const contextKey = "localizer"

// Bundle holds every loaded translation
type Bundle struct {
	bundle   *i18n.Bundle
	fallback string
}

// NewBundle loads the embedded translations; defaultLang answers callers
// whose languages are not available
func NewBundle(defaultLang string) (*Bundle, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid default locale %q: %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(translationFS, "translation/*.toml")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(translationFS, file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return &Bundle{bundle: bundle, fallback: tag.String()}, nil
}

// Localizer resolves messages for one caller
type Localizer struct {
	localizer *i18n.Localizer
}

// Localizer builds a localizer for the given Accept-Language values
func (b *Bundle) Localizer(langs ...string) *Localizer {
	langs = append(langs, b.fallback)
	return &Localizer{localizer: i18n.NewLocalizer(b.bundle, langs...)}
}

// T returns the message with the given ID, or the ID itself when missing
func (l *Localizer) T(id string, data ...map[string]any) string {
	cfg := &i18n.LocalizeConfig{MessageID: id}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
	}

	msg, err := l.localizer.Localize(cfg)
	if err != nil {
		slog.Warn("Missing translation", slog.String("message_id", id), slog.Any("error", err))
		return id
	}
	return msg
}

// Middleware attaches a localizer chosen from Accept-Language
func (b *Bundle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKey, b.Localizer(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// FromContext returns the request localizer, or a default one when the
// middleware did not run
func FromContext(c *gin.Context, fallback *Bundle) *Localizer {
	if v, ok := c.Get(contextKey); ok {
		if l, ok := v.(*Localizer); ok {
			return l
		}
	}
	return fallback.Localizer()
}
