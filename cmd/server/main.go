package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tarot-backend/config"
	"tarot-backend/handlers"
	"tarot-backend/jobs"
	"tarot-backend/locale"
	"tarot-backend/logger"
	"tarot-backend/metrics"
	"tarot-backend/middleware"
	"tarot-backend/repository"
	"tarot-backend/service"
	"tarot-backend/session"
	"tarot-backend/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr := logger.New(cfg.Logging.Level, cfg.Logging.Dir)
	slog.SetDefault(logr)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize stores
	stores, err := repository.NewStores(ctx, repository.StoresConfig{
		Driver:      repository.Driver(cfg.Database.Driver),
		DatabaseURL: cfg.Database.URL,
		SQLitePath:  cfg.Database.SQLitePath,
	})
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Database.Driver, err)
	}
	defer stores.Close()
	slog.Info("Store initialized", slog.String("driver", cfg.Database.Driver))

	// Initialize storage
	clipStorage, err := storage.NewStorage(storage.StorageConfig{
		Type:         storage.StorageType(cfg.Storage.Type),
		LocalPath:    cfg.Storage.LocalPath,
		S3Bucket:     cfg.Storage.S3Bucket,
		S3Region:     cfg.Storage.S3Region,
		S3Endpoint:   cfg.Storage.S3Endpoint,
		AWSAccessKey: cfg.Storage.AWSAccessKey,
		AWSSecretKey: cfg.Storage.AWSSecretKey,
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	slog.Info("Storage initialized", slog.String("type", cfg.Storage.Type))

	bundle, err := locale.NewBundle(cfg.Locale.Default)
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	// Initialize AI providers
	gemini, closeGemini, err := initGemini(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini: %v", err)
	}
	defer closeGemini()

	var interpreter service.Interpreter = gemini
	var writer service.HoroscopeWriter = gemini
	if cfg.AI.Provider == "openai" {
		openai := service.NewOpenAIService(cfg.AI.OpenAIAPIKey, cfg.AI.OpenAIBaseURL, cfg.AI.TextModel, cfg.AI.RequestTimeout)
		interpreter, writer = openai, openai
		slog.Info("Text generation uses OpenAI-compatible API")
	}

	// Initialize services
	installationService := service.NewInstallationService(
		service.InstallationWithStore(stores.Installations),
		service.InstallationWithLogger(logr),
	)

	entitlementService := service.NewEntitlementService(
		service.EntitlementWithPreferenceStore(stores.Preferences),
		service.EntitlementWithLogger(logr),
	)

	hub := session.NewHub(entitlementService, bundle, session.WithCheckOrigin(originChecker(cfg.Server.AllowedOrigins)))
	defer hub.Close()

	readingService := service.NewReadingService(
		service.ReadingWithPreferenceStore(stores.Preferences),
		service.ReadingWithHistoryStore(stores.History),
		service.ReadingWithRecorder(stores.Readings),
		service.ReadingWithClipStorage(clipStorage),
		service.ReadingWithInterpreter(interpreter),
		service.ReadingWithNotifier(hub),
		service.ReadingWithLogger(logr),
	)
	defer readingService.Close()

	horoscopeService := service.NewHoroscopeService(
		service.HoroscopeWithPreferenceStore(stores.Preferences),
		service.HoroscopeWithWriter(writer),
		service.HoroscopeWithLocation(loc),
		service.HoroscopeWithLogger(logr),
	)

	audioService := service.NewAudioService(
		service.AudioWithHistoryStore(stores.History),
		service.AudioWithSynthesizer(gemini),
		service.AudioWithStorage(clipStorage),
		service.AudioWithLogger(logr),
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	// Background jobs
	scheduler, err := jobs.NewScheduler(loc,
		jobs.Entry{Spec: cfg.Entitlements.ExpirySweep, Job: jobs.NewExpirySweepJob(entitlementService)},
		jobs.Entry{Spec: "@every 10m", Job: jobs.NewLimiterPruneJob(limiter)},
	)
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize handlers
	installationHandler := handlers.NewInstallationHandler(installationService, bundle)
	readingHandler := handlers.NewReadingHandler(readingService, bundle)
	entitlementHandler := handlers.NewEntitlementHandler(entitlementService, bundle)
	horoscopeHandler := handlers.NewHoroscopeHandler(horoscopeService, bundle)
	audioHandler := handlers.NewAudioHandler(audioService, bundle)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), metrics.HTTPMetrics(), bundle.Middleware())
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", metrics.Handler())

	// API routes
	api := r.Group("/api")
	{
		api.POST("/installations", limiter.Middleware(bundle), installationHandler.Register)
		api.GET("/cards", readingHandler.ListCards)

		authed := api.Group("")
		authed.Use(middleware.InstallationAuth(installationService, bundle))
		{
			// Entitlement endpoints
			authed.GET("/status", entitlementHandler.GetStatus)
			authed.GET("/preferences", entitlementHandler.GetPreferences)
			authed.POST("/entitlements/subscribe", entitlementHandler.Subscribe)
			authed.POST("/entitlements/rating-reward", entitlementHandler.RedeemRatingReward)
			authed.POST("/entitlements/ad-reward", entitlementHandler.WatchAdReward)

			// Reading endpoints
			authed.POST("/readings", limiter.Middleware(bundle), readingHandler.CreateReading)
			authed.GET("/readings", readingHandler.ListReadings)
			authed.GET("/readings/:id", readingHandler.GetReading)
			authed.GET("/readings/:id/share", readingHandler.ShareReading)
			authed.GET("/readings/:id/audio", limiter.Middleware(bundle), audioHandler.GetNarration)

			// Horoscope endpoints
			authed.PUT("/horoscope/birth-date", horoscopeHandler.SetBirthDate)
			authed.GET("/horoscope", limiter.Middleware(bundle), horoscopeHandler.GetHoroscope)

			// Live session
			authed.GET("/session", hub.Serve)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", slog.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", slog.Any("error", err))
	}
}

func initGemini(ctx context.Context, cfg *config.Config) (*service.GeminiService, func(), error) {
	apiKey := cfg.AI.GeminiAPIKey
	if apiKey == "" {
		slog.Warn("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, nil, err
	}

	svc := service.NewGeminiService(
		service.GeminiWithClient(client),
		service.GeminiWithAPIKey(apiKey),
		service.GeminiWithModels(cfg.AI.TextModel, cfg.AI.SpeechModel),
		service.GeminiWithVoice(cfg.AI.Voice),
		service.GeminiWithTimeout(cfg.AI.RequestTimeout),
	)

	slog.Info("Gemini client initialized")
	return svc, func() { client.Close() }, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Installation-ID", handlers.TimezoneHeader, "Accept-Language")
	c.ExposeHeaders = []string{"X-Narration-Cache"}
	return c
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Native clients send no Origin
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
