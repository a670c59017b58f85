// Package app assembles the conversation service from configuration. Both
// binaries start here.
package app

import (
	"context"
	"fmt"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/config"
	"github.com/itsAakanksha/career-counselor-ai/internal/conversation"
	"github.com/itsAakanksha/career-counselor-ai/internal/llm"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
	"github.com/itsAakanksha/career-counselor-ai/internal/responder"
	"github.com/itsAakanksha/career-counselor-ai/internal/store/memstore"
	"github.com/itsAakanksha/career-counselor-ai/internal/store/sqlstore"
)

// OpenStore opens the storage backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (chat.Store, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memstore.New(nil), nil
	case config.StorageSQLite, config.StoragePostgres:
		st, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// Build wires store, completion client and responder into a Service. The
// caller must Close the returned store.
func Build(ctx context.Context, cfg *config.Config) (*conversation.Service, chat.Store, error) {
	st, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LLM.APIKey == "" {
		logger.L.Warn("llm.api_key is empty; completion requests will likely be rejected")
	}
	r := responder.New(llm.NewClient(cfg.LLM), cfg.LLM)
	return conversation.NewService(st, r, *cfg), st, nil
}
