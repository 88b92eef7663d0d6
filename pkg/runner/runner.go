package runner

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer releases resources once the runner leaves the running state.
type Drainer interface {
	Drain() error
}

type DrainerFunc func() error

func (f DrainerFunc) Drain() error { return f() }

var Version = "dev"

// PrintBanner writes the startup banner to w.
func PrintBanner(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	tpl := "{{ .Title \"TINTUC\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(w, true, true, bytes.NewBufferString(tpl))
}
