package main

import (
	"io"
	"log/slog"

	"github.com/koscakluka/astrape-core/core/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFiles   []string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "astrape",
	Short: "Astrape voice assistant",
	Long: `Astrape listens for speech, reacts to wake, sleep, emergency and shutdown
phrases and answers everything else through a language model.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the user configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "Environment files to load secrets from")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath, config.WithEnvFiles(envFiles...))
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
