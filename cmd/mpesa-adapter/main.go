package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/api"
	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/daraja"
	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/httpclient"
	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/publisher"
	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/rate"
	internalsecrets "github.com/Checker-Finance/adapters/mpesa-adapter/internal/secrets"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/config"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/logger"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/secrets"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [mpesa-adapter]...")

	if missing := cfg.Missing(); len(missing) > 0 {
		logg.Fatalw("missing required environment variables", "missing", missing)
	}

	envCreds := daraja.Credentials{
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		BaseURL:        cfg.BaseURL,
	}

	// --- Credential source: env, or AWS Secrets Manager with env fallback ---
	var (
		source     daraja.CredentialSource = daraja.StaticCredentials(envCreds)
		clientOpts []daraja.ClientOption
	)
	stopCleaner := make(chan struct{})
	if cfg.CredentialsSecret != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}

		credCache := secrets.NewCache[daraja.Credentials](cfg.CacheTTL)
		go credCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

		resolver := internalsecrets.NewAWSResolver(logg.Desugar(), awsProvider, credCache)
		source = internalsecrets.NewCredentialSource(resolver, cfg.CredentialsSecret, envCreds)
		// Registration reads the base URL from the secret on each call.
		clientOpts = append(clientOpts, daraja.WithBaseURLSource(source))
		logg.Infow("daraja credentials from secrets manager", "secret", cfg.CredentialsSecret)
	} else {
		logg.Infow("daraja credentials from environment",
			"consumer_key", utils.MaskSecret(cfg.ConsumerKey),
			"base_url", cfg.BaseURL)
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateRPS,
		Burst:             cfg.RateBurst,
	})

	// --- Daraja HTTP executor, token manager and client ---
	exec := httpclient.New(logg.Desugar(), rateMgr, &http.Client{Timeout: cfg.UpstreamTimeout}, "daraja")
	tokenMgr := daraja.NewTokenManager(logg.Desugar(), exec, source,
		daraja.WithTokenTTL(cfg.TokenTTL),
		daraja.WithSingleFlight(cfg.TokenSingleFlight),
	)
	darajaClient := daraja.NewClient(logg.Desugar(), exec, tokenMgr, clientOpts...)

	// --- Optional NATS publisher ---
	var (
		nc        *nats.Conn
		pub       *publisher.Publisher
		eventSink daraja.EventPublisher
	)
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err = publisher.New(nc, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		if err := pub.EnsureStream(cfg.EventStream); err != nil {
			logg.Warnw("publisher.ensure_stream_failed", "stream", cfg.EventStream, "error", err)
		}
		eventSink = pub
	} else {
		logg.Info("NATS_URL not set; c2b event publishing disabled")
	}

	webhookHandler := daraja.NewWebhookHandler(logg.Desugar(), daraja.AcceptAll, eventSink,
		daraja.WithPublishTimeout(cfg.PublishTimeout))

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
		ErrorHandler: api.NewErrorHandler(logg.Desugar()),
	})

	darajaHandler := api.NewDarajaHandler(logg.Desugar(), tokenMgr, darajaClient, daraja.RegistrationConfig{
		BaseURL:         cfg.BaseURL,
		ShortCode:       cfg.ShortCode,
		ConfirmationURL: cfg.ConfirmationURL,
		ValidationURL:   cfg.ValidationURL,
		ResponseType:    cfg.ResponseType,
	})

	api.RegisterRoutes(app, darajaHandler, webhookHandler)

	// Start HTTP server
	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[mpesa-adapter] running",
		"env", cfg.Env,
		"short_code", cfg.ShortCode,
		"nats", cfg.NATSURL != "",
		"token_ttl", cfg.TokenTTL)

	<-ctx.Done()
	logg.Info("shutting down [mpesa-adapter]...")

	close(stopCleaner)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if pub != nil {
		pub.Close()
	}
}
