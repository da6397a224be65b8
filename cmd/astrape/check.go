package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/astrape-core/core/config"
	"github.com/spf13/cobra"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print what it resolves to",
	Long: `Load the configuration the same way "run" does and print the resolved
providers, models and trigger phrases. Nothing is contacted.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry := config.NewRegistry(cfg, config.WithLogger(newLogger(cmd.ErrOrStderr(), debug)))
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, headingStyle.Render("Services"))
	printService(out, "speech-to-text", cfg.SpeechToText)
	printService(out, "text-to-speech", cfg.TextToSpeech)
	fmt.Fprintf(out, "  audio: %s at %d Hz\n", cfg.Audio.Backend, cfg.Audio.SampleRate)

	fmt.Fprintln(out, headingStyle.Render("Models"))
	for _, key := range registry.EnabledModels() {
		model, err := registry.Model(key)
		if err != nil {
			return err
		}
		marker := " "
		if key == cfg.System.DefaultModel {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s: %s (%s) voice=%s stream=%t\n", marker, key, model.Name, model.Model, model.Voice, model.StreamOutput)
	}

	fmt.Fprintln(out, headingStyle.Render("Phrases"))
	for _, source := range []struct {
		name  string
		fetch func() ([]string, error)
	}{
		{"emergency", registry.EmergencyPhrases},
		{"wake", registry.WakePhrases},
		{"sleep", registry.SleepPhrases},
		{"shutdown", registry.ShutdownPhrases},
	} {
		phrases, err := source.fetch()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s: %s\n", source.name, strings.Join(phrases, ", "))
	}

	if roles := registry.AvailableRoles(); len(roles) > 0 {
		fmt.Fprintln(out, headingStyle.Render("Roles"))
		for _, role := range roles {
			fmt.Fprintf(out, "  %s -> %s\n", role, registry.ModelForRole(role))
		}
	}
	return nil
}

func printService(out io.Writer, name string, settings config.ServiceSettings) {
	providers := make([]string, 0, len(settings.Providers))
	for _, provider := range settings.Providers {
		providers = append(providers, provider.String())
	}
	fmt.Fprintf(out, "  %s: %s [%s] timeout=%s\n", name, settings.Mode, strings.Join(providers, ", "), settings.Timeout)
}
