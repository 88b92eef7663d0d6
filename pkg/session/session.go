// Package session tracks the fetched article list, the current selection and
// the loaded article audio.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/news"
)

// Owner is the speaker lease owner name for article audio.
const Owner = "article_playback"

// NoSelection is the SelectedIndex of a session with nothing selected.
const NoSelection = -1

var (
	ErrIndexOutOfRange = errors.New("article index out of range")
	ErrNoSelection     = errors.New("no article selected")
	ErrNothingLoaded   = errors.New("no article audio loaded")
)

type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

type Snapshot struct {
	Articles      []news.Article
	SelectedIndex int
	Status        Status
}

// Selected returns the selected article, if any.
func (s Snapshot) Selected() (news.Article, bool) {
	if s.SelectedIndex < 0 || s.SelectedIndex >= len(s.Articles) {
		return news.Article{}, false
	}
	return s.Articles[s.SelectedIndex], true
}

// ArticleSession owns the loaded article track and, while it sounds, the
// speaker lease. Every loaded track gets a generation; finish callbacks from
// an older generation are ignored.
type ArticleSession struct {
	speaker *audio.Device
	logger  *slog.Logger

	mu       sync.Mutex
	articles []news.Article
	selected int
	status   Status
	track    audio.Track
	lease    *audio.Lease
	gen      uint64
}

func New(speaker *audio.Device, logger *slog.Logger) *ArticleSession {
	if speaker == nil {
		speaker = audio.NewDevice("speaker")
	}
	return &ArticleSession{
		speaker:  speaker,
		logger:   logging.NewComponentLogger(logger, "session"),
		selected: NoSelection,
	}
}

// SetArticles replaces the list, clears the selection and unloads audio.
func (s *ArticleSession) SetArticles(list []news.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked()
	s.articles = append([]news.Article(nil), list...)
	s.selected = NoSelection
	s.status = StatusIdle
}

// Select unloads any audio and selects index i. An out of range index
// changes nothing.
func (s *ArticleSession) Select(i int) (news.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.articles) {
		return news.Article{}, errorsx.Wrap(
			fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, len(s.articles)),
			errorsx.ReasonIndexOutOfRange)
	}
	s.unloadLocked()
	s.selected = i
	s.status = StatusIdle
	return s.articles[i], nil
}

// Advance moves to the next article. moved is false at the last article, in
// which case nothing changes.
func (s *ArticleSession) Advance() (news.Article, bool) {
	return s.step(1)
}

// Retreat moves to the previous article. moved is false at the first one.
func (s *ArticleSession) Retreat() (news.Article, bool) {
	return s.step(-1)
}

func (s *ArticleSession) step(delta int) (news.Article, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.articles) == 0 {
		return news.Article{}, false
	}
	next := s.selected + delta
	if s.selected == NoSelection {
		if delta < 0 {
			return news.Article{}, false
		}
		next = 0
	}
	if next < 0 || next >= len(s.articles) {
		return news.Article{}, false
	}
	s.unloadLocked()
	s.selected = next
	s.status = StatusIdle
	return s.articles[next], true
}

// SetPlaybackStatus records status changes driven by the article player.
func (s *ArticleSession) SetPlaybackStatus(st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st != StatusIdle && s.selected == NoSelection {
		return ErrNoSelection
	}
	s.status = st
	return nil
}

// Attach hands a loaded, playing track to the session. lease is the speaker
// lease held for it (may be nil). onFinish runs once if the track reaches its
// end while still attached.
func (s *ArticleSession) Attach(track audio.Track, lease *audio.Lease, onFinish func()) error {
	s.mu.Lock()
	if s.selected == NoSelection {
		s.mu.Unlock()
		_ = track.Stop()
		lease.Release()
		return ErrNoSelection
	}
	s.unloadLocked()
	s.gen++
	gen := s.gen
	s.track = track
	s.lease = lease
	s.status = StatusPlaying
	s.mu.Unlock()

	go s.watch(gen, track, onFinish)
	return nil
}

func (s *ArticleSession) watch(gen uint64, track audio.Track, onFinish func()) {
	<-track.Done()
	s.mu.Lock()
	if gen != s.gen || !track.Completed() {
		s.mu.Unlock()
		return
	}
	s.track = nil
	s.lease.Release()
	s.lease = nil
	s.status = StatusIdle
	s.mu.Unlock()
	s.logger.Debug("article_finished")
	if onFinish != nil {
		onFinish()
	}
}

// Pause pauses the loaded track and gives the speaker back.
func (s *ArticleSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return ErrNothingLoaded
	}
	if s.status == StatusPaused {
		return nil
	}
	if err := s.track.Pause(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonPlayback)
	}
	s.lease.Release()
	s.lease = nil
	s.status = StatusPaused
	return nil
}

// Resume re-acquires the speaker, waiting for any utterance holding it, and
// continues the loaded track.
func (s *ArticleSession) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.track == nil {
		s.mu.Unlock()
		return ErrNothingLoaded
	}
	if s.status != StatusPaused {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.mu.Unlock()

	lease, err := s.speaker.Acquire(ctx, Owner, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.track == nil || s.status != StatusPaused {
		lease.Release()
		return nil
	}
	if err := s.track.Resume(); err != nil {
		lease.Release()
		return errorsx.Wrap(err, errorsx.ReasonPlayback)
	}
	s.lease = lease
	s.status = StatusPlaying
	return nil
}

// StopAudio unloads the track, keeping the selection.
func (s *ArticleSession) StopAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked()
	s.status = StatusIdle
}

// Loaded reports whether an article track is attached.
func (s *ArticleSession) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track != nil
}

func (s *ArticleSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Articles:      append([]news.Article(nil), s.articles...),
		SelectedIndex: s.selected,
		Status:        s.status,
	}
}

func (s *ArticleSession) unloadLocked() {
	s.gen++
	if s.track != nil {
		_ = s.track.Stop()
		s.track = nil
	}
	s.lease.Release()
	s.lease = nil
}
