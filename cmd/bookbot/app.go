package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/bookbot/internal/auth"
	"github.com/user/bookbot/internal/config"
	ctxengine "github.com/user/bookbot/internal/context"
	"github.com/user/bookbot/internal/gateway"
	"github.com/user/bookbot/internal/runtime"
	"github.com/user/bookbot/internal/runtime/tools"
	"github.com/user/bookbot/internal/state"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/pkg/llm"
	"github.com/user/bookbot/pkg/llm/openai"
)

// app holds the components shared by the serve and chat commands.
type app struct {
	store         types.ChatStore
	persister     *state.Persister
	conversations *state.Manager
	orchestrator  *runtime.Orchestrator
	gateway       *gateway.Gateway
	close         func() error
}

// openStore opens the chat store selected by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config) (types.ChatStore, func() error, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	switch cfg.Store {
	case "", "file":
		return state.NewFileStore(cfg.DataDir), func() error { return nil }, nil
	case "sqlite":
		s, err := state.OpenSQLiteStore(ctx, filepath.Join(cfg.DataDir, "bookbot.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want file or sqlite)", cfg.Store)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	persister := state.NewPersister(store, auth.Static{UserID: cfg.UserID})
	conversations := state.NewManager(persister)

	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	engine, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("create context engine: %w", err)
	}

	orch := runtime.New(provider, engine, tools.Default(), conversations,
		runtime.WithToolLatency(cfg.Latency()))

	gw := gateway.New(int64(cfg.MaxConcurrent))
	gw.SetProcessor(orch.ProcessRun)

	return &app{
		store:         store,
		persister:     persister,
		conversations: conversations,
		orchestrator:  orch,
		gateway:       gw,
		close:         closeStore,
	}, nil
}
