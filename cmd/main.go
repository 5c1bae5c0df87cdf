package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/config"
	"github.com/hearthly/hearth/internal/domain"
	"github.com/hearthly/hearth/internal/http"
	"github.com/hearthly/hearth/internal/http/middleware"
	"github.com/hearthly/hearth/internal/observability"
	"github.com/hearthly/hearth/internal/provider/anthropic"
	"github.com/hearthly/hearth/internal/provider/echo"
	"github.com/hearthly/hearth/internal/provider/gemini"
	"github.com/hearthly/hearth/internal/provider/openai"
	"github.com/hearthly/hearth/internal/provider/registry"
	"github.com/hearthly/hearth/internal/store/memstore"
	"github.com/hearthly/hearth/internal/store/redisstore"
)

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

const shutdownTimeout = 15 * time.Second

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				log.Fatalf("Server failed to start: %v", err)
			}
		case <-stop:
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				log.Fatalf("Server failed to shut down: %v", err)
			}
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

// stores bundles the two persistence interfaces one backend serves.
type stores struct {
	dig.Out

	Conversations domain.ConversationStore
	Companions    domain.CompanionStore
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(func(cfg *config.LogConfig) (*zap.Logger, error) {
		return observability.InitLogger(observability.Options{
			Level:      cfg.Level,
			File:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
		})
	}); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Invoke(func(*zap.Logger) {}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Stores
	if err := container.Provide(func(gen *config.GenerationConfig, redisCfg *redisstore.Config) stores {
		if gen.StoreBackend == "memory" {
			mem := memstore.NewStore()
			return stores{Conversations: mem, Companions: mem}
		}
		store := redisstore.NewStore(redisstore.NewClient(*redisCfg))
		return stores{Conversations: store, Companions: store}
	}); err != nil {
		log.Fatalf("Failed to provide stores: %v", err)
	}

	// Provider Registry
	if err := container.Provide(func(gen *config.GenerationConfig) *registry.Registry {
		return registry.NewRegistry(gen.DefaultProvider, registry.ParseAliases(gen.ProviderAliases))
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}
	if err := container.Provide(func(reg *registry.Registry) domain.ProviderResolver {
		return reg
	}); err != nil {
		log.Fatalf("Failed to provide resolver: %v", err)
	}

	// Providers. Each registers independently so one missing API key
	// never blocks the others.
	registerProvider(container, "OpenAI", func(reg *registry.Registry, cfg *openai.Config) error {
		if cfg.APIKey == "" {
			return ErrProviderNotConfigured
		}
		provider, err := openai.NewProvider(*cfg)
		if err != nil {
			return fmt.Errorf("failed to create OpenAI provider: %w", err)
		}
		return reg.Register(provider)
	})
	registerProvider(container, "Anthropic", func(reg *registry.Registry, cfg *anthropic.Config) error {
		if cfg.APIKey == "" {
			return ErrProviderNotConfigured
		}
		provider, err := anthropic.NewProvider(*cfg)
		if err != nil {
			return fmt.Errorf("failed to create Anthropic provider: %w", err)
		}
		return reg.Register(provider)
	})
	registerProvider(container, "Gemini", func(reg *registry.Registry, cfg *gemini.Config) error {
		if cfg.APIKey == "" {
			return ErrProviderNotConfigured
		}
		provider, err := gemini.NewProvider(context.Background(), *cfg)
		if err != nil {
			return fmt.Errorf("failed to create Gemini provider: %w", err)
		}
		return reg.Register(provider)
	})
	registerProvider(container, "Echo", func(reg *registry.Registry) error {
		return reg.Register(echo.NewProvider())
	})

	// Domain Services
	if err := container.Provide(func(gen *config.GenerationConfig) *domain.ContextAssembler {
		return domain.NewContextAssembler(domain.AssemblerConfig{
			HistoryWindow:      gen.HistoryWindow,
			MaxInputChars:      gen.MaxInputChars,
			DefaultTemperature: gen.Temperature,
			DefaultMaxTokens:   gen.MaxOutputTokens,
		})
	}); err != nil {
		log.Fatalf("Failed to provide context assembler: %v", err)
	}
	if err := container.Provide(func(conversations domain.ConversationStore) domain.Recorder {
		return domain.NewExchangeRecorder(conversations)
	}); err != nil {
		log.Fatalf("Failed to provide recorder: %v", err)
	}
	if err := container.Provide(func(
		resolver domain.ProviderResolver,
		assembler *domain.ContextAssembler,
		recorder domain.Recorder,
		conversations domain.ConversationStore,
		companions domain.CompanionStore,
		gen *config.GenerationConfig,
	) *domain.Orchestrator {
		var fallback domain.FallbackPolicy
		if gen.FallbackProvider != "" {
			fallback = domain.SecondaryOnError{Secondary: gen.FallbackProvider}
		}
		return domain.NewOrchestrator(resolver, assembler, recorder, conversations, companions, domain.OrchestratorConfig{
			ProviderTimeout: time.Duration(gen.ProviderTimeout) * time.Second,
			Fallback:        fallback,
		})
	}); err != nil {
		log.Fatalf("Failed to provide orchestrator: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(corsCfg *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(corsCfg)
	}); err != nil {
		log.Fatalf("Failed to provide middleware: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// registerProvider invokes fn for its registration side effect,
// tolerating providers that are simply not configured.
func registerProvider(container *dig.Container, name string, fn interface{}) {
	if err := container.Invoke(fn); err != nil {
		if errors.Is(err, ErrProviderNotConfigured) {
			return
		}
		log.Fatalf("Failed to register %s provider: %v", name, err)
	}
}
