package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/audiojournal/internal/app"
	"github.com/MrWong99/audiojournal/internal/config"
)

const defaultConfigPath = "config.yaml"

var (
	configPath string
	envFile    string
	verbose    bool

	// cfg is loaded by the root command before any sub-command runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiojournal",
	Short: "Turn voice memos into a linked Markdown journal",
	Long: `audiojournal transcribes audio recordings, rewrites the transcript into a
structured journal entry, links the people and places it mentions and keeps
an index of entries for similarity search.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}

		loaded, err := loadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		cfg = loaded

		slog.SetDefault(newLogger(cfg.Server.LogLevel, verbose))
		slog.Debug("configuration loaded", "config", configPath)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "audiojournal:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// loadConfig reads path. A missing default config file is not an error: the
// built-in defaults target a local whisper.cpp server and Ollama.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	c, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		c = config.Default()
		if err := config.Validate(c); err != nil {
			return nil, err
		}
		return c, nil
	}
	return c, err
}

func newLogger(level config.LogLevel, verbose bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openApp builds the providers named in the configuration and wires the
// application. The caller must call the returned close function.
func openApp(ctx context.Context) (*app.App, func(), error) {
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, providers)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}
	return a, closeFn, nil
}
