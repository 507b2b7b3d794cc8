package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/investocrafy/internal/ai"
	"github.com/suPer8Hu/investocrafy/internal/chat"
	"github.com/suPer8Hu/investocrafy/internal/config"
	"github.com/suPer8Hu/investocrafy/internal/db"
	"github.com/suPer8Hu/investocrafy/internal/email"
	"github.com/suPer8Hu/investocrafy/internal/httpapi"
	"github.com/suPer8Hu/investocrafy/internal/httpapi/handlers"
	"github.com/suPer8Hu/investocrafy/internal/logging"
	"github.com/suPer8Hu/investocrafy/internal/ratelimit"
	"github.com/suPer8Hu/investocrafy/internal/store/objectstore"
	"github.com/suPer8Hu/investocrafy/internal/store/rabbitmq"
	"github.com/suPer8Hu/investocrafy/internal/store/redisstore"
)

func main() {
	cfg := config.Load()
	log := logging.Init(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDSN)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	if err := rds.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
	}

	// Provider registry
	reg := ai.NewRegistry()
	defer reg.Close()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("gemini", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.GeminiModel
		}
		// the client outlives the request that first needs it
		return ai.NewGeminiProvider(context.WithoutCancel(ctx), cfg.GeminiAPIKey, m)
	})
	log.Info().Strs("providers", reg.Names()).Str("active", cfg.AIProvider).Msg("ai providers registered")

	generator := ai.NewAdvisorGenerator(reg, cfg.AIProvider, "", log.With().Str("component", "advisor").Logger())
	chatSvc := chat.NewService(chat.NewRepo(gdb), rds, generator)

	// mail goes through the broker when one is reachable
	smtpCfg := email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}
	var mailer email.Mailer
	if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, sending mail directly")
		mailer = email.NewDirectMailer(smtpCfg, log)
	} else {
		defer pub.Close()
		mailer = pub
	}

	var avatars objectstore.AvatarStore
	if cfg.MinioEndpoint != "" {
		ms, err := objectstore.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatal().Err(err).Msg("object storage init failed")
		}
		avatars = ms
	} else {
		log.Warn().Msg("MINIO_ENDPOINT not set, avatar uploads disabled")
	}

	limiter, err := ratelimit.NewFixedWindowLimiter(rds.Client(), "user-prompt", cfg.PromptRateLimit, time.Duration(cfg.PromptRateWindowSeconds)*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("rate limiter init failed")
	}

	r := httpapi.NewRouter(handlers.Deps{
		DB:      gdb,
		Cfg:     cfg,
		Redis:   rds,
		ChatSvc: chatSvc,
		Mailer:  mailer,
		Avatars: avatars,
	}, limiter, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
