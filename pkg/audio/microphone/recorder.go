// Package microphone captures PCM audio from the default (or a named) input
// device through PortAudio.
package microphone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"
)

type Config struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	// Device selects an input by name; empty or "default" uses the system default.
	Device string
}

// Recorder implements audio.Recorder. PortAudio is initialised on the first
// StartCapture; a missing or inaccessible input device is reported as a
// permission failure.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	live        *capture
}

func New(cfg Config, logger *slog.Logger) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 512
	}
	return &Recorder{cfg: cfg, logger: logging.NewComponentLogger(logger, "microphone")}
}

func (r *Recorder) ensureInitLocked() error {
	if r.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return errorsx.Wrap(fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err), errorsx.ReasonPermissionDenied)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil || dev.MaxInputChannels < 1 {
		_ = portaudio.Terminate()
		if err == nil {
			err = errors.New("no input device")
		}
		return errorsx.Wrap(fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err), errorsx.ReasonPermissionDenied)
	}
	r.initialized = true
	r.logger.Info("microphone_ready", "device", dev.Name, "sample_rate", r.cfg.SampleRate)
	return nil
}

func (r *Recorder) StartCapture(ctx context.Context) (audio.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitLocked(); err != nil {
		return nil, err
	}
	if r.live != nil {
		return nil, errorsx.Wrap(audio.ErrDeviceBusy, errorsx.ReasonDeviceBusy)
	}

	buffer := make([]int16, r.cfg.FramesPerBuffer*r.cfg.Channels)
	stream, err := r.openStream(buffer)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("open input stream: %w", err), errorsx.ReasonRecorder)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, errorsx.Wrap(fmt.Errorf("start input stream: %w", err), errorsx.ReasonRecorder)
	}

	c := &capture{
		rec:     r,
		id:      uuid.NewString(),
		stream:  stream,
		buffer:  buffer,
		started: time.Now(),
		stop:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	r.live = c
	go c.loop()
	r.logger.Debug("capture_started", "capture_id", c.id)
	return c, nil
}

func (r *Recorder) openStream(buffer []int16) (*portaudio.Stream, error) {
	name := strings.TrimSpace(r.cfg.Device)
	if name != "" && !strings.EqualFold(name, "default") {
		devices, err := portaudio.Devices()
		if err == nil {
			for _, d := range devices {
				if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
					params := portaudio.StreamParameters{
						Input: portaudio.StreamDeviceParameters{
							Device:   d,
							Channels: r.cfg.Channels,
							Latency:  d.DefaultLowInputLatency,
						},
						SampleRate:      float64(r.cfg.SampleRate),
						FramesPerBuffer: r.cfg.FramesPerBuffer,
					}
					return portaudio.OpenStream(params, buffer)
				}
			}
		}
		r.logger.Warn("input_device_not_found", "device", name)
	}
	return portaudio.OpenDefaultStream(r.cfg.Channels, 0, float64(r.cfg.SampleRate), r.cfg.FramesPerBuffer, buffer)
}

// Close discards a live capture and terminates PortAudio.
func (r *Recorder) Close() error {
	r.mu.Lock()
	live := r.live
	r.mu.Unlock()
	if live != nil {
		live.Discard()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil
	}
	r.initialized = false
	return portaudio.Terminate()
}

type capture struct {
	rec     *Recorder
	id      string
	stream  *portaudio.Stream
	buffer  []int16
	started time.Time

	mu      sync.Mutex
	samples []int16
	readErr error
	closed  bool

	stop   chan struct{}
	exited chan struct{}
}

func (c *capture) ID() string { return c.id }

func (c *capture) loop() {
	defer close(c.exited)
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		c.samples = append(c.samples, c.buffer...)
		c.mu.Unlock()
	}
}

func (c *capture) finish() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return audio.ErrCaptureClosed
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.exited
	_ = c.stream.Stop()
	_ = c.stream.Close()

	r := c.rec
	r.mu.Lock()
	if r.live == c {
		r.live = nil
	}
	r.mu.Unlock()
	return nil
}

func (c *capture) Stop() (audio.Clip, error) {
	if err := c.finish(); err != nil {
		return audio.Clip{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil && len(c.samples) == 0 {
		return audio.Clip{}, errorsx.Wrap(fmt.Errorf("read input stream: %w", c.readErr), errorsx.ReasonRecorder)
	}
	return audio.Clip{
		ID:         c.id,
		Data:       audio.PCM16(c.samples),
		SampleRate: c.rec.cfg.SampleRate,
		Channels:   c.rec.cfg.Channels,
		CapturedAt: c.started,
	}, nil
}

func (c *capture) Discard() {
	if err := c.finish(); err == nil {
		c.rec.logger.Debug("capture_discarded", "capture_id", c.id)
	}
}
