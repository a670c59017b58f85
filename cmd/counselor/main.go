package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsAakanksha/career-counselor-ai/internal/app"
	"github.com/itsAakanksha/career-counselor-ai/internal/config"
	"github.com/itsAakanksha/career-counselor-ai/internal/httpapi"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, st, err := app.Build(ctx, cfg)
	if err != nil {
		logger.L.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpapi.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.LLM.Timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("shutdown failed", "error", err)
		}
	}()

	logger.L.Info("starting server", "address", srv.Addr, "storage", cfg.Storage.Driver, "identity", cfg.Identity.Mode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.L.Info("server stopped")
}
