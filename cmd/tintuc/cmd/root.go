package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/tintuc/pkg/tintuc"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	mockAudio bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "tintuc",
	Short: "Voice-driven Vietnamese news reader",
	Long: `tintuc reads the latest headlines aloud, listens for spoken commands
("tin số 2", "dừng", "tiếp tục", "tin tiếp theo") and plays the chosen
article. It also offers a Gemini chat with stored conversations.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); defaults apply when empty")
	rootCmd.PersistentFlags().BoolVar(&mockAudio, "mock-audio", false, "use in-memory microphone and speaker")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level")
}

func loadConfig() (tintuc.Config, error) {
	cfg, err := tintuc.LoadConfig(cfgFile)
	if err != nil {
		return tintuc.Config{}, err
	}
	if mockAudio {
		cfg.Audio.Mock = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
