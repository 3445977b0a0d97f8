package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/parley/ai/backend"
	"github.com/hrygo/parley/ai/core/llm"
	"github.com/hrygo/parley/ai/metrics"
	"github.com/hrygo/parley/ai/orchestrator"
	"github.com/hrygo/parley/ai/routing"
	"github.com/hrygo/parley/ai/toolcall"
	"github.com/hrygo/parley/internal/profile"
	"github.com/hrygo/parley/internal/version"
	"github.com/hrygo/parley/server"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: `A conversational front-end that routes utterances to specialized model backends and orchestrates tool calls against capability services.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Best effort; a missing .env file is fine.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:         viper.GetString("mode"),
			Addr:         viper.GetString("addr"),
			Port:         viper.GetInt("port"),
			CatalogPath:  viper.GetString("catalog"),
			BackendsPath: viper.GetString("backends"),
			Version:      version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		catalog, err := toolcall.LoadCatalog(instanceProfile.CatalogPath)
		if err != nil {
			slog.Error("failed to load tool catalog", "path", instanceProfile.CatalogPath, "error", err)
			os.Exit(1)
		}
		slog.Info("tool catalog loaded",
			"path", instanceProfile.CatalogPath,
			"tools", len(catalog.Definitions()),
			"version", catalog.Version())

		registry, err := backend.Load(instanceProfile.BackendsPath)
		if err != nil {
			slog.Error("failed to load backend registry", "path", instanceProfile.BackendsPath, "error", err)
			os.Exit(1)
		}
		// A class without a profile is a configuration integrity
		// violation; refusing to start beats failing mid-request.
		if err := registry.Validate(routing.AllClasses()); err != nil {
			slog.Error("backend registry incomplete", "error", err)
			os.Exit(1)
		}

		exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

		client := llm.NewClient(instanceProfile.APIKey,
			llm.WithRetryHook(exporter.RecordGenerationRetry))
		warmupBackends(client, registry)
		executor := toolcall.NewExecutor(catalog, time.Duration(instanceProfile.ToolTimeoutSeconds)*time.Second)

		orch := orchestrator.New(client, registry, catalog, executor, exporter,
			orchestrator.WithTurnBudget(time.Duration(instanceProfile.TurnBudgetSeconds)*time.Second))

		s := server.NewServer(instanceProfile, orch, exporter)

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		printGreetings(instanceProfile)

		if err := s.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			cancel()
		}

		<-ctx.Done()
	},
}

// warmupBackends pings each configured backend asynchronously so the
// first request does not pay the connection cost. Best effort only.
func warmupBackends(client llm.Client, registry *backend.Registry) {
	for _, p := range registry.Profiles() {
		if p.WarmFor.Std() <= 0 {
			continue
		}
		go func(p *backend.Profile) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			client.Warmup(ctx, p)
		}(p)
	}
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("catalog", "", "path to the tool catalog YAML file")
	rootCmd.PersistentFlags().String("backends", "", "path to the backend registry YAML file")

	for _, flag := range []string{"mode", "addr", "port", "catalog", "backends"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("parley")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("Parley %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Printf("Tool catalog: %s\n", p.CatalogPath)
	fmt.Printf("Backend registry: %s\n", p.BackendsPath)
	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
