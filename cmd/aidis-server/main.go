// Command aidis-server is the AIDIS core process: it loads configuration,
// wires the DB gateway, tool registry, dispatcher, and HTTP/SSE surfaces,
// then runs until a termination signal arrives. Grounded on
// cmd/pulse/main.go's cobra rootCmd/versionCmd split and signal loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aidis-project/aidis-core/internal/activeproject"
	"github.com/aidis-project/aidis-core/internal/config"
	"github.com/aidis-project/aidis-core/internal/dbgateway"
	"github.com/aidis-project/aidis-core/internal/embedding"
	"github.com/aidis-project/aidis-core/internal/httpapi"
	"github.com/aidis-project/aidis-core/internal/lifecycle"
	"github.com/aidis-project/aidis-core/internal/logging"
	"github.com/aidis-project/aidis-core/internal/sessiontracker"
	"github.com/aidis-project/aidis-core/internal/sse"
	"github.com/aidis-project/aidis-core/internal/tools"
	toolagent "github.com/aidis-project/aidis-core/internal/tools/agent"
	toolcontext "github.com/aidis-project/aidis-core/internal/tools/context"
	tooldecision "github.com/aidis-project/aidis-core/internal/tools/decision"
	toolnaming "github.com/aidis-project/aidis-core/internal/tools/naming"
	toolproject "github.com/aidis-project/aidis-core/internal/tools/project"
	toolsearch "github.com/aidis-project/aidis-core/internal/tools/search"
	tooltask "github.com/aidis-project/aidis-core/internal/tools/task"
	"github.com/aidis-project/aidis-core/internal/toolsdispatch"
)

// Version information, set at build time with -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "aidis-server",
	Short:   "AIDIS core: a tool-dispatch HTTP service for AI development intelligence",
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aidis-server %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

var configInfoCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved, redacted configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Println(cfg.Redacted())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configInfoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "aidis-server: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel)
	log.Info().Msg("aidis-server: starting")

	srv := lifecycle.New(cfg)

	buildErr := srv.Start(context.Background(), func(db *dbgateway.Gateway, hub *sse.Hub) http.Handler {
		return buildRouter(cfg, db, hub)
	})
	if buildErr != nil {
		log.Fatal().Err(buildErr).Msg("aidis-server: startup failed")
	}

	sigCh := make(chan os.Signal, 1)
	reloadCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadCh, syscall.SIGHUP)

	for {
		select {
		case <-reloadCh:
			log.Info().Msg("aidis-server: received SIGHUP, reloading disabled-tools list")
			cfg.ReloadDisabledTools()
		case <-sigCh:
			log.Info().Msg("aidis-server: received termination signal, shutting down")
			if err := srv.Shutdown(); err != nil {
				log.Error().Err(err).Msg("aidis-server: shutdown error")
			}
			return
		}
	}
}

// buildRouter wires the tool registry, every tools/... subpackage, the
// dispatcher (v1 and v2), and the chi router around an already-open DB
// gateway and SSE hub.
func buildRouter(cfg *config.Config, db *dbgateway.Gateway, hub *sse.Hub) http.Handler {
	registry := toolsdispatch.NewRegistry()
	activeProjects := activeproject.New()
	deps := tools.Deps{
		DB:             db,
		Embeddings:     embedding.NewDeterministic(cfg.EmbeddingDimensions),
		ActiveProjects: activeProjects,
	}

	toolcontext.Register(registry, deps)
	toolproject.Register(registry, deps)
	toolnaming.Register(registry, deps)
	tooldecision.Register(registry, deps)
	tooltask.Register(registry, deps)
	toolagent.Register(registry, deps)
	toolsearch.Register(registry, deps)

	tracker := sessiontracker.New(db, activeProjects)

	dispatchV1 := toolsdispatch.NewDispatcher(registry, tracker, "v1")
	dispatchV2 := toolsdispatch.NewDispatcher(registry, tracker, "v2")

	return httpapi.NewRouter(httpapi.Deps{
		Registry:   registry,
		DispatchV1: dispatchV1,
		DispatchV2: dispatchV2,
		DB:         db,
		Hub:        hub,
		Config:     cfg,
	})
}
