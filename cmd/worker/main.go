package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/suPer8Hu/investocrafy/internal/config"
	"github.com/suPer8Hu/investocrafy/internal/email"
	"github.com/suPer8Hu/investocrafy/internal/logging"
	"github.com/suPer8Hu/investocrafy/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()
	log := logging.Init(logging.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "investocrafy-worker",
	})

	smtpCfg := email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}
	if !smtpCfg.Enabled() {
		log.Fatal().Msg("SMTP_HOST and SMTP_FROM are required")
	}

	concurrency := workerConcurrency()
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, concurrency, log)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit connect")
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	err = consumer.Run(ctx, func(ctx context.Context, job email.Job) error {
		start := time.Now()
		if err := email.SendText(smtpCfg, job.To, job.Subject, job.Body); err != nil {
			return err
		}
		if cost := time.Since(start); cost > 2*time.Second {
			log.Info().Str("kind", string(job.Kind)).Dur("cost", cost).Msg("slow mail delivery")
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("consumer stopped")
	}
}
