package audio

import (
	"context"
	"path"
	"strings"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
)

// Source is playable audio: inline bytes or a remote URL.
type Source struct {
	Data   []byte
	URL    string
	Format Format
}

// DetectFormat resolves the container from the declared format, the URL
// extension or the payload magic, in that order.
func (s Source) DetectFormat() Format {
	if s.Format != FormatUnknown {
		return s.Format
	}
	if s.URL != "" {
		ext := strings.ToLower(path.Ext(strings.SplitN(s.URL, "?", 2)[0]))
		switch ext {
		case ".wav":
			return FormatWAV
		case ".mp3":
			return FormatMP3
		}
	}
	if len(s.Data) >= 12 && string(s.Data[:4]) == "RIFF" && string(s.Data[8:12]) == "WAVE" {
		return FormatWAV
	}
	return FormatMP3
}

// Output loads sources onto the speaker.
type Output interface {
	Load(ctx context.Context, src Source) (Track, error)
}

// Track is one loaded, controllable playback.
type Track interface {
	Play() error
	Pause() error
	Resume() error
	// Stop ends playback and frees the decoder. Done is closed afterwards.
	Stop() error
	// Done is closed when the track reaches its end or is stopped.
	Done() <-chan struct{}
	// Completed reports whether the track ended by reaching its end.
	Completed() bool
}
