package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/tintuc/pkg/errorsx"
)

// ErrDeviceBusy is returned by TryAcquire when another owner holds the device.
var ErrDeviceBusy = errors.New("audio device busy")

// Device is a process-wide singleton resource (the microphone or the
// speaker). At most one Lease is live at a time.
type Device struct {
	name string

	mu       sync.Mutex
	holder   *Lease
	released chan struct{}
}

// Lease is exclusive ownership of a Device. Release is idempotent.
type Lease struct {
	dev       *Device
	owner     string
	onPreempt func()
	once      sync.Once
}

func NewDevice(name string) *Device {
	return &Device{name: name}
}

func (d *Device) Name() string { return d.name }

// Holder returns the current owner or "".
func (d *Device) Holder() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.holder == nil {
		return ""
	}
	return d.holder.owner
}

// TryAcquire grants the device only if it is free.
func (d *Device) TryAcquire(owner string, onPreempt func()) (*Lease, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.holder != nil {
		return nil, errorsx.Wrap(ErrDeviceBusy, errorsx.ReasonDeviceBusy)
	}
	return d.grantLocked(owner, onPreempt), nil
}

// Acquire waits until the device is free or ctx is done.
func (d *Device) Acquire(ctx context.Context, owner string, onPreempt func()) (*Lease, error) {
	for {
		d.mu.Lock()
		if d.holder == nil {
			l := d.grantLocked(owner, onPreempt)
			d.mu.Unlock()
			return l, nil
		}
		wait := d.released
		d.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Preempt asks the current holder to give the device up, then waits for the
// release like Acquire. The holder's callback runs on the caller goroutine.
func (d *Device) Preempt(ctx context.Context, owner string, onPreempt func()) (*Lease, error) {
	d.mu.Lock()
	current := d.holder
	d.mu.Unlock()
	if current != nil && current.onPreempt != nil {
		current.onPreempt()
	}
	return d.Acquire(ctx, owner, onPreempt)
}

func (d *Device) grantLocked(owner string, onPreempt func()) *Lease {
	l := &Lease{dev: d, owner: owner, onPreempt: onPreempt}
	d.holder = l
	d.released = make(chan struct{})
	return l
}

func (l *Lease) Owner() string {
	if l == nil {
		return ""
	}
	return l.owner
}

// Release gives the device back. Safe to call more than once and on nil.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		d := l.dev
		d.mu.Lock()
		if d.holder == l {
			d.holder = nil
			close(d.released)
		}
		d.mu.Unlock()
	})
}

// Devices bundles the two singletons shared by capture and playback.
type Devices struct {
	Microphone *Device
	Speaker    *Device
}

func NewDevices() Devices {
	return Devices{Microphone: NewDevice("microphone"), Speaker: NewDevice("speaker")}
}
