// Package main wires together the fundwatch service: the periodic scrape
// runner and the read-only HTTP API over the shared project store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fundwatch/internal/api"
	"fundwatch/internal/clock/system"
	"fundwatch/internal/config"
	collyfetcher "fundwatch/internal/fetcher/colly"
	"fundwatch/internal/logging"
	"fundwatch/internal/metrics"
	"fundwatch/internal/notify"
	"fundwatch/internal/runner"
	"fundwatch/internal/scrape"
	"fundwatch/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	st, err := store.Load(cfg.Store.Path, logger.Named("store"))
	if err != nil {
		logger.Fatal("load results file failed", zap.Error(err))
	}
	metrics.SetStoreSize(st.Len())

	clock := system.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Source.Timeout(),
	})
	extractor := scrape.NewExtractor(logger.Named("extractor"))
	filter := scrape.NewFilter(scrape.FilterConfig{
		Penalties:               cfg.Filter.Penalties,
		CostOffset:              cfg.Filter.CostOffset,
		MinYield:                cfg.Filter.MinYield,
		ExcludedClassifications: cfg.Filter.ExcludedClassifications,
		MaxDefaultRating:        cfg.Filter.MaxDefaultRating,
		MinCreditScore:          cfg.Filter.MinCreditScore,
	}, clock)
	mailer := notify.New(notify.Config{
		Host:           cfg.Mail.Host,
		Port:           cfg.Mail.Port,
		Account:        cfg.Mail.Account,
		Password:       cfg.Mail.Password,
		ClientID:       cfg.Mail.ClientID,
		ClientSecret:   cfg.Mail.ClientSecret,
		RefreshToken:   cfg.Mail.RefreshToken,
		To:             cfg.Mail.To,
		ProjectBaseURL: cfg.Mail.ProjectBaseURL,
	}, logger.Named("mailer"))

	run := runner.New(
		fetcher,
		extractor,
		filter,
		st,
		mailer,
		clock,
		runner.Config{
			SourceURL: cfg.Source.URL,
			Interval:  cfg.Source.Interval(),
		},
		logger.Named("runner"),
	)

	apiServer := api.NewServer(st, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("runner started",
			zap.String("url", cfg.Source.URL),
			zap.Duration("interval", cfg.Source.Interval()),
		)
		run.Start(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
