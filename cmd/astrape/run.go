package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/astrape-core/core"
	"github.com/koscakluka/astrape-core/internal/tui"
	"github.com/spf13/cobra"
)

const tuiLogFile = "astrape.log"

var (
	runOnce bool
	runTUI  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the voice assistant",
	Long: `Start listening on the configured audio device. The assistant keeps running
until a shutdown phrase is heard or the process receives SIGINT or SIGTERM.
With --tui a status view is shown and logs are written to ` + tuiLogFile + `.`,
	Args: cobra.NoArgs,
	RunE: runAssistant,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Handle a single utterance and exit")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a terminal status view")
	rootCmd.AddCommand(runCmd)
}

func runAssistant(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logOutput io.Writer = cmd.ErrOrStderr()
	if runTUI {
		f, err := tea.LogToFile(tuiLogFile, "astrape")
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOutput = f
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(logOutput, debug || cfg.System.Debug)

	assistant, cleanup, err := newAssistant(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	var opts []orchestration.RunOption
	if runOnce || cfg.System.RunOnce {
		opts = append(opts, orchestration.WithRunOnce())
	}

	if runTUI {
		err = tui.Run(ctx, assistant, opts...)
	} else {
		opts = append(opts,
			orchestration.WithTranscriptCallback(func(transcript string) {
				log.InfoContext(ctx, "heard", "transcript", transcript)
			}),
			orchestration.WithResponseCallback(func(response string) {
				fmt.Fprintln(cmd.OutOrStdout(), response)
			}),
		)
		err = assistant.Run(ctx, opts...)
	}

	if errors.Is(err, orchestration.ErrShutdown) {
		log.InfoContext(ctx, "assistant shut down")
		return nil
	}
	return err
}
