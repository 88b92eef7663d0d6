package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/tintuc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Read the news aloud and listen for commands",
	Long: `Fetches the feed, reads the welcome and headlines, then listens
continuously. Keyboard controls on stdin:

  r          start/stop a manual recording
  <number>   select that article
  say <text> simulate speech (with --mock-audio and the mock STT provider)
  q          quit`,
	RunE: runNews,
}

func init() {
	rootCmd.AddCommand(newsCmd)
}

func runNews(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	engine, err := tintuc.NewEngine(ctx, tintuc.EngineOptions{Config: cfg, Banner: true})
	if err != nil {
		return err
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(engine.Gatherer(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics_server_failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	go readKeys(ctx, cancel, engine, os.Stdin, cmd.OutOrStdout())
	return engine.Run(ctx)
}

func readKeys(ctx context.Context, quit context.CancelFunc, engine *tintuc.Engine, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "q" || line == "quit":
			quit()
			return
		case line == "r":
			err := engine.Reader().ToggleRecording(ctx)
			if errors.Is(err, audio.ErrPermissionDenied) {
				fmt.Fprintln(out, "Microphone access was denied. Allow it in the system settings and press r again.")
			} else if err != nil {
				fmt.Fprintln(out, "recording:", err)
			}
		case strings.HasPrefix(line, "say "):
			if err := engine.Simulate(strings.TrimPrefix(line, "say ")); err != nil {
				fmt.Fprintln(out, err)
			}
		default:
			n, err := strconv.Atoi(line)
			if err != nil {
				fmt.Fprintln(out, "unknown input:", line)
				continue
			}
			go func() {
				if err := engine.Reader().SelectArticle(ctx, n-1); err != nil {
					fmt.Fprintln(out, "select:", err)
				}
			}()
		}
	}
}
