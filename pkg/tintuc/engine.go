package tintuc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/tintuc/pkg/adapters/stt"
	"github.com/harunnryd/tintuc/pkg/adapters/tts"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/audio/loudspeaker"
	"github.com/harunnryd/tintuc/pkg/audio/microphone"
	audiomock "github.com/harunnryd/tintuc/pkg/audio/mock"
	"github.com/harunnryd/tintuc/pkg/audio/vad"
	"github.com/harunnryd/tintuc/pkg/chat"
	"github.com/harunnryd/tintuc/pkg/command"
	"github.com/harunnryd/tintuc/pkg/configutil"
	"github.com/harunnryd/tintuc/pkg/listening"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/metrics"
	"github.com/harunnryd/tintuc/pkg/news"
	"github.com/harunnryd/tintuc/pkg/playback"
	"github.com/harunnryd/tintuc/pkg/providers/mock"
	"github.com/harunnryd/tintuc/pkg/reader"
	"github.com/harunnryd/tintuc/pkg/redact"
	"github.com/harunnryd/tintuc/pkg/resilience"
	"github.com/harunnryd/tintuc/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine wires the configured providers, devices and observers into a news
// reader and, on demand, a chat service. It is the runner's drainer.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	providers *ProviderRegistry

	registry *prometheus.Registry
	asyncObs *metrics.AsyncObserver
	jsonlObs *metrics.JSONLObserver

	devices  audio.Devices
	recorder audio.Recorder
	output   audio.Output
	speech   *playback.Queue
	tts      tts.Synthesizer
	stt      stt.Guarded
	reader   *reader.Controller
	runner   *runner.LifecycleRunner

	mockRecorder *audiomock.Recorder
	mockSTT      *mock.Transcriber

	chatOnce sync.Once
	chatSvc  *chat.Service
	chatDB   *chat.SQLStore
	chatErr  error
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	// Logger overrides the logger built from log_level/log_format.
	Logger *slog.Logger
	// Recorder and Output override the configured audio devices.
	Recorder audio.Recorder
	Output   audio.Output
	News     news.Source
	// Banner prints the startup banner when the engine runs.
	Banner bool
}

func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)
	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}

	logger.Info("tintuc_init",
		"environment", cfg.Environment,
		"language", cfg.Language,
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"chat_provider", cfg.Vendors.Chat.Provider,
		"mock_audio", cfg.Audio.Mock,
	)

	e := &Engine{cfg: cfg, logger: logger, providers: providers, devices: audio.NewDevices()}
	if err := e.buildObservers(); err != nil {
		return nil, err
	}

	breaker := func() *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(cfg.Resilience.BreakerThreshold,
			configutil.Millis(cfg.Resilience.BreakerCooldownMS, 30*time.Second))
	}
	transcriber, err := providers.BuildSTT(ctx, cfg.Vendors.STT, logger)
	if err != nil {
		return nil, fmt.Errorf("build stt: %w", err)
	}
	e.mockSTT, _ = transcriber.(*mock.Transcriber)
	e.stt = stt.Guarded{Transcriber: transcriber, Breaker: breaker()}

	synth, err := providers.BuildTTS(ctx, cfg.Vendors.TTS, logger)
	if err != nil {
		return nil, fmt.Errorf("build tts: %w", err)
	}
	e.tts = synth

	e.recorder, e.output = opts.Recorder, opts.Output
	if e.recorder == nil || e.output == nil {
		e.buildAudio()
	}

	e.speech = playback.NewQueue(playback.Options{
		Synthesizer: tts.Guarded{Synthesizer: synth, Breaker: breaker()},
		Output:      e.output,
		Speaker:     e.devices.Speaker,
		Observer:    e.asyncObs,
		Logger:      logger,
	})

	var gate listening.SpeechGate
	if cfg.Listening.VADMode >= 0 {
		g, err := vad.New(cfg.Listening.VADMode, cfg.Listening.VADMinRatio)
		if err != nil {
			return nil, fmt.Errorf("build vad: %w", err)
		}
		gate = g
	}

	source := opts.News
	client := &http.Client{Timeout: configutil.Millis(cfg.News.TimeoutMS, 15*time.Second)}
	if source == nil {
		source = news.NewRSSFeed(news.RSSConfig{
			FeedURL: cfg.News.FeedURL,
			Limit:   cfg.News.Limit,
			Timeout: configutil.Millis(cfg.News.TimeoutMS, 15*time.Second),
			Retry:   resilience.NewRetryPolicy(cfg.News.Retries, 500*time.Millisecond),
		}, client, e.asyncObs, logger)
	}
	var resolver news.AudioResolver
	if cfg.News.ResolvePageAudio {
		resolver = news.NewPageAudioResolver(client, logger)
	}

	artifacts := ""
	if cfg.Observability.RecordAudio {
		artifacts = cfg.Observability.ArtifactsDir
	}
	e.reader = reader.New(reader.Options{
		Config: reader.Config{
			Language:             cfg.Language,
			AlternativeLanguages: cfg.AlternativeLanguages,
			Voice:                cfg.Playback.Voice,
			Speed:                cfg.Playback.Speed,
			HeadlineCount:        cfg.Reader.HeadlineCount,
			SettleDelay:          configutil.Millis(cfg.Reader.SettleDelayMS, 500*time.Millisecond),
			ListenDuringPlayback: configutil.Millis(cfg.Reader.ListenDuringPlaybackMS, time.Second),
			ResolvePageAudio:     cfg.News.ResolvePageAudio,
			FuzzyWhileListening:  cfg.Reader.FuzzyWhileListening,
		},
		News:        source,
		Resolver:    resolver,
		Transcriber: e.stt,
		Interpreter: command.NewInterpreter(cfg.Tuning()),
		Speech:      e.speech,
		Output:      e.output,
		Recorder:    e.recorder,
		Devices:     e.devices,
		Listening: listening.Config{
			CaptureWindow:     configutil.Millis(cfg.Listening.CaptureWindowMS, 3*time.Second),
			RestartDelay:      configutil.Millis(cfg.Listening.RestartDelayMS, time.Second),
			EnergyThresholdDB: cfg.Listening.EnergyThresholdDB,
			ArtifactsDir:      artifacts,
		},
		Gate:     gate,
		Observer: e.asyncObs,
		Logger:   logger,
	})

	hooks := runner.Hooks{
		OnStart: func() {
			logger.Info("engine_ready", "feed", cfg.News.FeedURL, "metrics_addr", cfg.Observability.MetricsAddr)
		},
		OnStop: func() {
			logger.Info("shutdown", "goroutines", runtime.NumGoroutine(), "dropped_events", e.asyncObs.Dropped())
		},
	}
	e.runner = runner.NewLifecycleRunner(e, hooks, 10*time.Second)
	e.runner.SetBanner(opts.Banner)
	return e, nil
}

func (e *Engine) buildObservers() error {
	e.registry = prometheus.NewRegistry()
	observers := metrics.Fanout{
		metrics.NewPrometheusObserver(e.registry),
		metrics.NewLogObserver(e.logger),
	}
	if dir := strings.TrimSpace(e.cfg.Observability.ArtifactsDir); dir != "" {
		if days := e.cfg.Observability.RetentionDays; days > 0 {
			n, err := metrics.PurgeCaptures(dir, time.Duration(days)*24*time.Hour)
			if err != nil {
				e.logger.Warn("capture_purge_failed", "dir", dir, "error", err)
			} else if n > 0 {
				e.logger.Info("captures_purged", "dir", dir, "removed", n)
			}
		}
		j, err := metrics.OpenJSONLFile(dir)
		if err != nil {
			return fmt.Errorf("open metrics log: %w", err)
		}
		e.jsonlObs = j
		observers = append(observers, j)
	}
	e.asyncObs = metrics.NewAsyncObserver(observers, 2048)
	return nil
}

func (e *Engine) buildAudio() {
	if e.cfg.Audio.Mock {
		rec := audiomock.NewRecorder()
		out := audiomock.NewOutput()
		out.AutoFinish = 300 * time.Millisecond
		e.mockRecorder = rec
		if e.recorder == nil {
			e.recorder = rec
		}
		if e.output == nil {
			e.output = out
		}
		return
	}
	if e.recorder == nil {
		e.recorder = microphone.New(microphone.Config{
			SampleRate:      e.cfg.Audio.SampleRate,
			Channels:        e.cfg.Audio.Channels,
			FramesPerBuffer: e.cfg.Audio.FramesPerBuffer,
			Device:          e.cfg.Audio.Device,
		}, e.logger)
	}
	if e.output == nil {
		e.output = loudspeaker.New(loudspeaker.Config{SampleRate: e.cfg.Audio.OutputSampleRate}, e.logger)
	}
}

// Run reads the news aloud and listens until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.reader.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
			_ = e.runner.Stop()
		}
	}()
	runErr := e.runner.Run(ctx)
	select {
	case err := <-errCh:
		return errors.Join(err, runErr)
	default:
		return runErr
	}
}

// Stop ends a Run early.
func (e *Engine) Stop() error { return e.runner.Stop() }

// Drain stops the reader and releases every device and sink.
func (e *Engine) Drain() error {
	e.reader.Stop()
	e.speech.Close()
	var errs []error
	if err := e.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close recorder: %w", err))
	}
	if c, ok := e.tts.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := e.stt.Transcriber.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if e.chatDB != nil {
		errs = append(errs, e.chatDB.Close())
	}
	e.asyncObs.Close()
	if e.jsonlObs != nil {
		errs = append(errs, e.jsonlObs.Close())
	}
	return errors.Join(errs...)
}

func (e *Engine) Reader() *reader.Controller { return e.reader }

func (e *Engine) Config() Config { return e.cfg }

// Gatherer exposes the engine's Prometheus collectors.
func (e *Engine) Gatherer() prometheus.Gatherer { return e.registry }

func (e *Engine) Observer() metrics.Observer { return e.asyncObs }

// Voices lists the TTS provider's voices for language.
func (e *Engine) Voices(ctx context.Context, language string) ([]tts.Voice, error) {
	lister, ok := e.tts.(tts.VoiceLister)
	if !ok {
		return nil, fmt.Errorf("tts provider %s cannot list voices", e.tts.Name())
	}
	if language == "" {
		language = e.cfg.Language
	}
	return lister.ListVoices(ctx, language)
}

// Chat opens the conversation store and model on first use.
func (e *Engine) Chat(ctx context.Context) (*chat.Service, error) {
	e.chatOnce.Do(func() {
		gen, err := e.providers.BuildChat(ctx, e.cfg.Vendors.Chat, e.logger)
		if err != nil {
			e.chatErr = fmt.Errorf("build chat: %w", err)
			return
		}
		db, err := chat.OpenSQLite(e.cfg.Chat.Database)
		if err != nil {
			e.chatErr = err
			return
		}
		svc, err := chat.NewService(chat.Options{
			Store:        db,
			Generator:    gen,
			HistoryTurns: e.cfg.Chat.HistoryTurns,
			Retry:        resilience.NewRetryPolicy(1, 500*time.Millisecond),
			Observer:     e.asyncObs,
			Logger:       e.logger,
		})
		if err != nil {
			_ = db.Close()
			e.chatErr = err
			return
		}
		e.chatDB, e.chatSvc = db, svc
	})
	return e.chatSvc, e.chatErr
}

// ChatStore returns the store opened by Chat.
func (e *Engine) ChatStore(ctx context.Context) (chat.Store, error) {
	if _, err := e.Chat(ctx); err != nil {
		return nil, err
	}
	return e.chatDB, nil
}

// Simulate feeds text as if it were spoken. It only works with mock audio
// and the mock STT provider.
func (e *Engine) Simulate(text string) error {
	if e.mockRecorder == nil || e.mockSTT == nil {
		return errors.New("simulated speech needs audio.mock and the mock stt provider")
	}
	rate := e.cfg.Audio.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	e.mockSTT.Push(mock.STTStep{Text: text})
	e.mockRecorder.Push(audiomock.Speech(rate, 500*time.Millisecond))
	return nil
}
