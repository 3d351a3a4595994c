package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"

	"github.com/helix-collective/z88/internal/adapters/llm"
	"github.com/helix-collective/z88/internal/adapters/store"
	"github.com/helix-collective/z88/internal/agents"
	"github.com/helix-collective/z88/internal/config"
	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/events"
	"github.com/helix-collective/z88/internal/logging"
	"github.com/helix-collective/z88/internal/service"
)

// loadConfig loads and validates the configuration, honouring --config
// and the bound log flags.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) *logging.Logger {
	if out == nil {
		out = os.Stderr
	}
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
}

// app holds the wired services shared by serve and generate.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	router   *llm.Router
	store    *store.Store
	presets  *agents.Registry
	bus      *events.EventBus
	stories  *service.Stories
	enhancer *service.Enhancer
}

// newApp opens storage and builds the ritual services. Close releases
// the store and the event bus.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	utility, err := core.ParseProvider(cfg.Ritual.UtilityProvider)
	if err != nil {
		return nil, err
	}

	presets, err := loadPresets(cfg.Agents.PresetsFile, logger)
	if err != nil {
		return nil, err
	}

	router, err := llm.NewRouter(ctx, cfg.Providers, cfg.LLM, llm.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating llm router: %w", err)
	}
	if len(router.Configured()) == 0 {
		logger.Warn("no provider API keys configured, rituals will fail")
	}

	st, err := store.Open(ctx, cfg.Storage, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	bus := events.New(100)
	ritual, err := service.NewRitual(router, presets,
		service.WithEventBus(bus),
		service.WithLogger(logger),
		service.WithSettings(cfg.Ritual),
	)
	if err != nil {
		bus.Close()
		_ = st.Close()
		return nil, err
	}
	prompts, err := service.NewPromptRenderer()
	if err != nil {
		bus.Close()
		_ = st.Close()
		return nil, fmt.Errorf("creating prompt renderer: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		router:   router,
		store:    st,
		presets:  presets,
		bus:      bus,
		stories:  service.NewStories(ritual, st, router, utility, bus, logger),
		enhancer: service.NewEnhancer(router, prompts, utility, logger),
	}, nil
}

func (a *app) Close() {
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

// loadPresets builds the preset registry. A presets file that does not
// exist yet is picked up later by the watcher.
func loadPresets(path string, logger *logging.Logger) (*agents.Registry, error) {
	presets := agents.NewRegistry()
	if path == "" {
		return presets, nil
	}
	if err := presets.LoadFile(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("presets file not found, using built-in presets", "path", path)
			return presets, nil
		}
		return nil, fmt.Errorf("loading presets: %w", err)
	}
	return presets, nil
}
