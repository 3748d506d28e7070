package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/companion/ai/engine"
	"github.com/hrygo/companion/ai/llm"
	"github.com/hrygo/companion/ai/memory"
	"github.com/hrygo/companion/ai/metrics"
	"github.com/hrygo/companion/ai/persona"
	"github.com/hrygo/companion/internal/profile"
	"github.com/hrygo/companion/internal/version"
	"github.com/hrygo/companion/server"
	"github.com/hrygo/companion/store"
	"github.com/hrygo/companion/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: `A stateful AI companion server with personality, emotions, and long-term memory.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env file from current directory (ignore error if file doesn't exist)
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			cancel()
			slog.Error("failed to create db driver", "error", err)
			return
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			cancel()
			slog.Error("failed to migrate", "error", err)
			return
		}

		backend, err := llm.NewService(&llm.Config{
			Provider: instanceProfile.BackendProvider,
			APIKey:   instanceProfile.BackendAPIKey,
			BaseURL:  instanceProfile.BackendBaseURL,
			Timeout:  instanceProfile.BackendTimeout,
		})
		if err != nil {
			cancel()
			slog.Error("failed to create generation backend", "error", err)
			return
		}

		docs, err := persona.NewFileDocumentStore(filepath.Join(instanceProfile.Data, "persona"))
		if err != nil {
			cancel()
			slog.Error("failed to create persona document store", "error", err)
			return
		}
		personaState := persona.NewState(docs)
		memoryService := memory.New(storeInstance, memory.NewRuleExtractor())
		exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

		engineInstance := engine.New(backend, personaState, memoryService, exporter, engine.Config{
			TextModel:          instanceProfile.TextModel,
			ImageModel:         instanceProfile.ImageModel,
			ContextWindow:      instanceProfile.ContextWindow,
			IncludeCurrentTurn: instanceProfile.IncludeCurrentTurn,
			BackendTimeout:     instanceProfile.BackendTimeout,
		})

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, engineInstance, exporter)
		if err != nil {
			cancel()
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		// The default signal sent by the `kill` command is SIGTERM,
		// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
				cancel()
			}
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		// Wait for CTRL-C.
		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 18080)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 18080, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("companion")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Companion %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Backend provider: %s\n", profile.BackendProvider)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Access the companion at: http://localhost:%d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		fmt.Printf("Access the companion at: http://%s:%d\n", profile.Addr, profile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
