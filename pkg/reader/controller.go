// Package reader drives the hands-free news reader: it reads the headlines,
// listens for commands and plays the chosen article.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/tintuc/pkg/adapters/stt"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/command"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/listening"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/metrics"
	"github.com/harunnryd/tintuc/pkg/news"
	"github.com/harunnryd/tintuc/pkg/playback"
	"github.com/harunnryd/tintuc/pkg/redact"
	"github.com/harunnryd/tintuc/pkg/resilience"
	"github.com/harunnryd/tintuc/pkg/session"
)

// ManualOwner is the microphone lease owner for tap-to-record.
const ManualOwner = "manual_recording"

type Config struct {
	Language             string
	AlternativeLanguages []string
	Voice                string
	Speed                float64
	// HeadlineCount is how many headlines are read after the welcome.
	HeadlineCount int
	// SettleDelay separates consecutive spoken steps.
	SettleDelay time.Duration
	// ListenDuringPlayback re-arms listening this long after article audio
	// starts so the user can say "dừng".
	ListenDuringPlayback time.Duration
	ResolvePageAudio     bool
	// FuzzyWhileListening lets hands-free utterances select by title. When
	// false only numbers and control words act during continuous listening.
	FuzzyWhileListening bool
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = "vi-VN"
	}
	if c.HeadlineCount <= 0 {
		c.HeadlineCount = 5
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ListenDuringPlayback < 0 {
		c.ListenDuringPlayback = 3 * time.Second
	}
	return c
}

type Options struct {
	Config      Config
	News        news.Source
	Resolver    news.AudioResolver
	Transcriber stt.Transcriber
	Interpreter *command.Interpreter
	Speech      *playback.Queue
	Output      audio.Output
	Recorder    audio.Recorder
	Devices     audio.Devices
	Listening   listening.Config
	Gate        listening.SpeechGate
	Observer    metrics.Observer
	Logger      *slog.Logger
	Now         func() time.Time
}

type manualRecording struct {
	lease   *audio.Lease
	capture audio.Capture
}

// Controller sequences the voice pipeline. Any user action (tap selection,
// manual recording) cancels the passive activity before it proceeds.
type Controller struct {
	cfg      Config
	phrases  Phrases
	news     news.Source
	resolver news.AudioResolver
	stt      stt.Transcriber
	interp   *command.Interpreter
	speech   *playback.Queue
	output   audio.Output
	recorder audio.Recorder
	devices  audio.Devices
	session  *session.ArticleSession
	loop     *listening.Loop
	observer metrics.Observer
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	runCtx      context.Context
	introCancel context.CancelFunc
	selCancel   context.CancelFunc
	reading     bool
	manual      *manualRecording
	// notice raised while article audio held the speaker
	deferred string
}

func New(opts Options) *Controller {
	if opts.Devices.Microphone == nil || opts.Devices.Speaker == nil {
		opts.Devices = audio.NewDevices()
	}
	if opts.Interpreter == nil {
		opts.Interpreter = command.NewInterpreter(command.DefaultTuning())
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Speech == nil {
		panic("reader: speech queue is required")
	}
	cfg := opts.Config.withDefaults()
	c := &Controller{
		cfg:      cfg,
		phrases:  PhrasesFor(cfg.Language),
		news:     opts.News,
		resolver: opts.Resolver,
		stt:      opts.Transcriber,
		interp:   opts.Interpreter,
		speech:   opts.Speech,
		output:   opts.Output,
		recorder: opts.Recorder,
		devices:  opts.Devices,
		session:  session.New(opts.Devices.Speaker, opts.Logger),
		observer: opts.Observer,
		logger:   logging.NewComponentLogger(opts.Logger, "reader"),
		now:      opts.Now,
		runCtx:   context.Background(),
	}
	c.loop = listening.New(listening.Options{
		Config:     opts.Listening,
		Recorder:   opts.Recorder,
		Microphone: opts.Devices.Microphone,
		Pipeline:   c,
		Gate:       opts.Gate,
		Observer:   opts.Observer,
		Logger:     opts.Logger,
	})
	return c
}

func (c *Controller) Session() *session.ArticleSession { return c.session }

func (c *Controller) Loop() *listening.Loop { return c.loop }

// Recording reports whether a manual recording is in progress.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual != nil
}

// Start fetches the news, reads the welcome and headlines, then starts
// continuous listening. A selection or manual recording during the intro
// cuts it short.
func (c *Controller) Start(ctx context.Context) error {
	introCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.runCtx = ctx
	if c.introCancel != nil {
		c.introCancel()
	}
	c.introCancel = cancel
	c.mu.Unlock()
	defer cancel()

	articles, err := c.news.Latest(ctx)
	if err != nil {
		c.logger.Error("news_fetch_failed", "error", err)
		c.say(ctx, c.phrases.FetchFailed)
		return err
	}
	c.session.SetArticles(articles)
	c.logger.Info("news_loaded", "articles", len(articles))
	if len(articles) == 0 {
		return nil
	}

	c.say(introCtx, c.phrases.Welcome(c.now()))
	c.settle(introCtx)
	for i := 0; i < len(articles) && i < c.cfg.HeadlineCount; i++ {
		c.say(introCtx, fmt.Sprintf(c.phrases.Headline, i+1, articles[i].Title))
		c.settle(introCtx)
	}
	c.say(introCtx, c.phrases.Instructions)
	c.settle(introCtx)
	if introCtx.Err() != nil {
		return nil
	}
	return c.startListening(ctx)
}

// Stop cancels everything in flight and releases both devices.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.introCancel != nil {
		c.introCancel()
		c.introCancel = nil
	}
	if c.selCancel != nil {
		c.selCancel()
		c.selCancel = nil
	}
	manual := c.manual
	c.manual = nil
	c.mu.Unlock()

	if manual != nil {
		manual.capture.Discard()
		manual.lease.Release()
	}
	c.loop.Stop()
	c.speech.Stop()
	c.session.StopAudio()
}

// Handle is the continuous listening pipeline.
func (c *Controller) Handle(ctx context.Context, clip audio.Clip) listening.Outcome {
	return c.process(ctx, clip, true)
}

func (c *Controller) process(ctx context.Context, clip audio.Clip, continuous bool) listening.Outcome {
	text, err := c.transcribe(ctx, clip)
	if err != nil {
		if ctx.Err() != nil {
			return listening.Outcome{}
		}
		if errors.Is(err, stt.ErrNoSpeechDetected) && continuous {
			c.logger.Debug("no_speech_in_window")
			return listening.Outcome{}
		}
		c.notifyError(ctx, err)
		return listening.Outcome{}
	}

	titles := c.titles()
	action := c.interp.Interpret(text, titles)
	metrics.Record(c.observer, metrics.EventCommand, 1, map[string]string{"action": actionName(action)})
	c.logger.Info("command_interpreted",
		"text", redact.Text(text),
		"action", action.String(),
		"continuous", continuous)
	return c.dispatch(ctx, action, continuous)
}

func (c *Controller) transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if c.stt == nil {
		return "", errorsx.Wrap(errors.New("no transcriber configured"), errorsx.ReasonSTTTranscribe)
	}
	start := time.Now()
	utt, err := c.stt.Transcribe(ctx, clip, stt.Options{
		Language:             c.cfg.Language,
		AlternativeLanguages: c.cfg.AlternativeLanguages,
		Phrases:              append(c.interp.Phrases(), c.titles()...),
	})
	tags := map[string]string{"provider": c.stt.Name(), "outcome": "ok"}
	if err != nil {
		tags["outcome"] = string(errorsx.Reason(err))
	}
	metrics.Since(c.observer, metrics.EventTranscribe, start, tags)
	return utt.Text, err
}

func (c *Controller) dispatch(ctx context.Context, action command.Action, continuous bool) listening.Outcome {
	switch a := action.(type) {
	case command.Control:
		return c.control(ctx, a.Verb)
	case command.SelectByNumber:
		c.selectAsync(a.Index)
		return listening.Outcome{Selected: true}
	case command.SelectByFuzzyMatch:
		if continuous && !c.cfg.FuzzyWhileListening {
			return listening.Outcome{}
		}
		c.selectAsync(a.Index)
		return listening.Outcome{Selected: true}
	default:
		if !continuous {
			c.say(ctx, c.phrases.NoMatch)
		}
		return listening.Outcome{}
	}
}

// selectAsync runs a selection outside the listening pipeline so the loop
// can settle while the article is announced.
func (c *Controller) selectAsync(idx int) {
	ctx := c.baseCtx()
	go func() {
		if err := c.SelectArticle(ctx, idx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("select_failed", "index", idx, "error", err)
		}
	}()
}

func (c *Controller) control(ctx context.Context, verb command.Verb) listening.Outcome {
	snap := c.session.Snapshot()
	switch verb {
	case command.VerbStop:
		if snap.Status == session.StatusPlaying {
			if err := c.session.Pause(); err != nil {
				c.logger.Warn("pause_failed", "error", err)
				return listening.Outcome{}
			}
			c.say(ctx, c.phrases.Paused)
			c.sayDeferred(ctx)
			return listening.Outcome{}
		}
		if c.isReading() || c.speech.Busy() {
			c.cancelSelection()
			c.speech.Stop()
			c.say(ctx, c.phrases.Paused)
		}
	case command.VerbContinue:
		if snap.Status == session.StatusPaused {
			c.say(ctx, c.phrases.Continuing)
			if err := c.session.Resume(ctx); err != nil {
				c.logger.Warn("resume_failed", "error", err)
			}
		}
	case command.VerbNext, command.VerbPrevious:
		edge := c.phrases.LastArticle
		target := snap.SelectedIndex + 1
		if snap.SelectedIndex == session.NoSelection {
			target = 0
		}
		if verb == command.VerbPrevious {
			edge = c.phrases.FirstArticle
			target = snap.SelectedIndex - 1
		}
		if target < 0 || target >= len(snap.Articles) {
			c.say(ctx, edge)
			return listening.Outcome{}
		}
		c.selectAsync(target)
		return listening.Outcome{Selected: true}
	case command.VerbRepeat:
		if snap.SelectedIndex == session.NoSelection {
			c.say(ctx, c.phrases.NoSelection)
			return listening.Outcome{}
		}
		c.selectAsync(snap.SelectedIndex)
		return listening.Outcome{Selected: true}
	}
	return listening.Outcome{}
}

// SelectArticle preempts listening and speech, selects article i, announces
// it and starts playing it. It returns once article audio is playing or the
// spoken fallback has been read.
func (c *Controller) SelectArticle(ctx context.Context, i int) error {
	if n := len(c.session.Snapshot().Articles); i < 0 || i >= n {
		return fmt.Errorf("%w: %d not in [0,%d)", session.ErrIndexOutOfRange, i, n)
	}
	c.mu.Lock()
	if c.introCancel != nil {
		c.introCancel()
		c.introCancel = nil
	}
	if c.selCancel != nil {
		c.selCancel()
	}
	selCtx, cancel := context.WithCancel(ctx)
	c.selCancel = cancel
	c.deferred = ""
	c.mu.Unlock()

	c.loop.Stop()
	c.speech.Stop()

	article, err := c.session.Select(i)
	if err != nil {
		cancel()
		c.listenAfter(ctx, c.cfg.SettleDelay)
		return err
	}
	metrics.Record(c.observer, metrics.EventArticlePlay, 1, map[string]string{"stage": "selected"})
	c.logger.Info("article_selected", "index", i, "url", article.URL)

	c.say(selCtx, fmt.Sprintf(c.phrases.Selected, i+1, article.Title))
	c.settle(selCtx)
	if err := selCtx.Err(); err != nil {
		return err
	}
	return c.play(selCtx, i, article)
}

func (c *Controller) play(ctx context.Context, i int, article news.Article) error {
	audioURL := article.AudioURL
	if audioURL == "" && c.cfg.ResolvePageAudio && c.resolver != nil && article.URL != "" {
		resolved, err := c.resolver.ResolveAudio(ctx, article.URL)
		if err != nil {
			c.logger.Warn("page_audio_failed", "url", article.URL, "error", err)
		}
		audioURL = resolved
	}

	if audioURL != "" {
		c.say(ctx, fmt.Sprintf(c.phrases.Loading, i+1))
		err := c.playURL(ctx, audioURL)
		if err == nil {
			c.listenAfter(ctx, c.cfg.ListenDuringPlayback)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("article_audio_failed", "url", audioURL, "error", err)
		metrics.Record(c.observer, metrics.EventArticlePlay, 0, map[string]string{"stage": "audio_failed"})
		c.say(ctx, c.phrases.PlayFailed)
	} else {
		c.say(ctx, c.phrases.NoAudio)
	}

	c.setReading(true)
	defer c.setReading(false)
	c.settle(ctx)
	c.say(ctx, article.Title)
	if article.Description != "" && article.Description != article.Title {
		c.say(ctx, article.Description)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.listenAfter(ctx, c.cfg.SettleDelay)
	return nil
}

func (c *Controller) playURL(ctx context.Context, url string) error {
	if c.output == nil {
		return errorsx.Wrap(errors.New("no audio output configured"), errorsx.ReasonPlayback)
	}
	lease, err := c.devices.Speaker.Acquire(ctx, session.Owner, nil)
	if err != nil {
		return err
	}
	track, err := c.output.Load(ctx, audio.Source{URL: url})
	if err != nil {
		lease.Release()
		return errorsx.Wrap(err, errorsx.ReasonPlayback)
	}
	if err := track.Play(); err != nil {
		_ = track.Stop()
		lease.Release()
		return errorsx.Wrap(err, errorsx.ReasonPlayback)
	}
	if err := c.session.Attach(track, lease, c.articleFinished); err != nil {
		return err
	}
	metrics.Record(c.observer, metrics.EventArticlePlay, 1, map[string]string{"stage": "playing"})
	return nil
}

func (c *Controller) articleFinished() {
	ctx := c.baseCtx()
	c.loop.Stop()
	c.sayDeferred(ctx)
	c.say(ctx, c.phrases.Finished)
	c.listenAfter(ctx, c.cfg.SettleDelay)
}

// ToggleRecording starts a manual recording, or stops it and handles the
// transcript. Starting preempts continuous listening and speech; a denied
// microphone is returned so the caller can prompt the user.
func (c *Controller) ToggleRecording(ctx context.Context) error {
	c.mu.Lock()
	manual := c.manual
	c.manual = nil
	if manual == nil && c.introCancel != nil {
		c.introCancel()
		c.introCancel = nil
	}
	c.mu.Unlock()

	if manual != nil {
		return c.finishRecording(ctx, manual)
	}

	c.loop.Stop()
	c.speech.Stop()
	if c.session.Snapshot().Status == session.StatusPlaying {
		if err := c.session.Pause(); err != nil {
			c.logger.Warn("pause_failed", "error", err)
		}
	}
	c.say(ctx, c.phrases.Recording)
	lease, err := c.devices.Microphone.Preempt(ctx, ManualOwner, nil)
	if err != nil {
		return err
	}
	capture, err := c.recorder.StartCapture(ctx)
	if err != nil {
		lease.Release()
		if errors.Is(err, audio.ErrPermissionDenied) {
			c.logger.Warn("manual_permission_denied")
			return err
		}
		c.notifyError(ctx, err)
		c.listenAfter(ctx, c.cfg.SettleDelay)
		return err
	}
	c.mu.Lock()
	c.manual = &manualRecording{lease: lease, capture: capture}
	c.mu.Unlock()
	c.logger.Debug("manual_recording_started", "capture_id", capture.ID())
	return nil
}

func (c *Controller) finishRecording(ctx context.Context, m *manualRecording) error {
	clip, err := m.capture.Stop()
	m.lease.Release()
	if err != nil {
		c.notifyError(ctx, errorsx.Wrap(err, errorsx.ReasonRecorder))
		c.listenAfter(ctx, c.cfg.SettleDelay)
		return err
	}
	out := c.process(ctx, clip, false)
	if !out.Selected {
		c.listenAfter(ctx, c.cfg.SettleDelay)
	}
	return nil
}

// notifyError turns a failure into a spoken notice.
func (c *Controller) notifyError(ctx context.Context, err error) {
	reason := errorsx.Reason(err)
	text := c.phrases.SpeechError
	switch {
	case errors.Is(err, stt.ErrNoSpeechDetected):
		text = c.phrases.NoSpeech
	case reason == errorsx.ReasonQuotaExceeded,
		reason == errorsx.ReasonSTTCircuitOpen,
		resilience.IsRateLimit(err),
		errors.Is(err, resilience.ErrCircuitOpen):
		text = c.phrases.Quota
	}
	c.logger.Warn("error_notified", "reason", string(reason), "error", err)
	metrics.Record(c.observer, metrics.EventErrorNotified, 1, map[string]string{"reason": string(reason)})
	if c.session.Snapshot().Status == session.StatusPlaying {
		c.mu.Lock()
		c.deferred = text
		c.mu.Unlock()
		return
	}
	c.say(ctx, text)
}

// sayDeferred speaks a notice held back during article audio.
func (c *Controller) sayDeferred(ctx context.Context) {
	c.mu.Lock()
	text := c.deferred
	c.deferred = ""
	c.mu.Unlock()
	if text != "" {
		c.say(ctx, text)
	}
}

// listenAfter re-arms continuous listening after d unless ctx ends first.
func (c *Controller) listenAfter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		if ctx.Err() == nil {
			_ = c.startListening(c.baseCtx())
		}
		return
	}
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			_ = c.startListening(c.baseCtx())
		}
	}()
}

func (c *Controller) startListening(ctx context.Context) error {
	if c.Recording() {
		return nil
	}
	err := c.loop.Start(ctx)
	switch {
	case err == nil:
	case errors.Is(err, audio.ErrDeviceBusy):
		c.logger.Debug("listening_deferred", "holder", c.devices.Microphone.Holder())
		return nil
	default:
		c.logger.Warn("listening_start_failed", "error", err)
	}
	return err
}

func (c *Controller) cancelSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selCancel != nil {
		c.selCancel()
		c.selCancel = nil
	}
}

// isReading reports whether an article is being read by the synthesizer.
func (c *Controller) isReading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reading
}

func (c *Controller) setReading(v bool) {
	c.mu.Lock()
	c.reading = v
	c.mu.Unlock()
}

func (c *Controller) say(ctx context.Context, text string) {
	if ctx.Err() != nil || text == "" {
		return
	}
	err := c.speech.Say(ctx, playback.Request{
		Text:     text,
		Language: c.cfg.Language,
		Voice:    c.cfg.Voice,
		Speed:    c.cfg.Speed,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("say_interrupted", "error", err)
	}
}

func (c *Controller) settle(ctx context.Context) {
	if c.cfg.SettleDelay <= 0 {
		return
	}
	timer := time.NewTimer(c.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (c *Controller) baseCtx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runCtx
}

func (c *Controller) titles() []string {
	snap := c.session.Snapshot()
	out := make([]string, len(snap.Articles))
	for i, a := range snap.Articles {
		out[i] = a.Title
	}
	return out
}

func actionName(a command.Action) string {
	switch a.(type) {
	case command.Control:
		return "control"
	case command.SelectByNumber:
		return "select_by_number"
	case command.SelectByFuzzyMatch:
		return "select_by_fuzzy_match"
	default:
		return "unrecognized"
	}
}
