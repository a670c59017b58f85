package main

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/itsAakanksha/career-counselor-ai/internal/app"
	"github.com/itsAakanksha/career-counselor-ai/internal/config"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
	"github.com/itsAakanksha/career-counselor-ai/internal/mcpserver"
)

var version = "dev"

func main() {
	// stdout carries the protocol
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	svc, st, err := app.Build(context.Background(), cfg)
	if err != nil {
		logger.L.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.L.Info("serving MCP over stdio", "storage", cfg.Storage.Driver, "identity", cfg.Identity.Mode)
	if err := server.ServeStdio(mcpserver.New(svc, version)); err != nil {
		logger.L.Error("mcp server stopped", "error", err)
		st.Close()
		os.Exit(1)
	}
}
