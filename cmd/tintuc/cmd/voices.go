package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/harunnryd/tintuc/pkg/tintuc"
	"github.com/spf13/cobra"
)

var voicesLanguage string

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the TTS provider's voices",
	RunE:  runVoices,
}

func init() {
	rootCmd.AddCommand(voicesCmd)
	voicesCmd.Flags().StringVarP(&voicesLanguage, "language", "l", "", "language code (default: config language)")
}

func runVoices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Audio.Mock = true
	ctx, cancel := signalContext()
	defer cancel()

	engine, err := tintuc.NewEngine(ctx, tintuc.EngineOptions{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return err
	}
	defer engine.Drain()

	voices, err := engine.Voices(ctx, voicesLanguage)
	if err != nil {
		printError("list voices", err)
		return err
	}
	out := cmd.OutOrStdout()
	for _, v := range voices {
		fmt.Fprintf(out, "%-28s %-8s %6d Hz  %s\n", v.Name, v.Gender, v.SampleRateHz, strings.Join(v.LanguageCodes, ","))
	}
	if len(voices) == 0 {
		fmt.Fprintln(out, "no voices")
	}
	return nil
}
