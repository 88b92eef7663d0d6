package audio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func tone(n int, amp int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

func TestClipEnergy(t *testing.T) {
	silent := Clip{Data: PCM16(make([]int16, 1600)), SampleRate: 16000, Channels: 1}
	if silent.EnergyDBFS() != SilenceDBFS {
		t.Fatalf("expected silence floor, got %f", silent.EnergyDBFS())
	}
	full := Clip{Data: PCM16(tone(1600, 32767)), SampleRate: 16000, Channels: 1}
	if math.Abs(full.EnergyDBFS()) > 0.01 {
		t.Fatalf("expected ~0 dBFS, got %f", full.EnergyDBFS())
	}
	quiet := Clip{Data: PCM16(tone(1600, 100)), SampleRate: 16000, Channels: 1}
	if quiet.EnergyDBFS() > -40 {
		t.Fatalf("expected quiet clip under -40 dBFS, got %f", quiet.EnergyDBFS())
	}
}

func TestClipDurationAndWAV(t *testing.T) {
	c := Clip{Data: PCM16(make([]int16, 16000)), SampleRate: 16000, Channels: 1}
	if c.Duration() != time.Second {
		t.Fatalf("expected 1s, got %s", c.Duration())
	}
	wav := c.WAV()
	if len(wav) != 44+len(c.Data) || string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("unexpected wav header")
	}
	if (Source{Data: wav}).DetectFormat() != FormatWAV {
		t.Fatalf("expected wav sniffing")
	}
	if (Source{URL: "https://cdn.example/a.mp3?x=1"}).DetectFormat() != FormatMP3 {
		t.Fatalf("expected mp3 from extension")
	}
}

func TestDeviceTryAcquire(t *testing.T) {
	d := NewDevice("microphone")
	l, err := d.TryAcquire("loop", nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := d.TryAcquire("manual", nil); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	l.Release()
	l.Release()
	if d.Holder() != "" {
		t.Fatalf("expected free device")
	}
	if _, err := d.TryAcquire("manual", nil); err != nil {
		t.Fatalf("expected acquire after release: %v", err)
	}
}

func TestDevicePreemptWaitsForRelease(t *testing.T) {
	d := NewDevice("microphone")
	var first *Lease
	preempted := make(chan struct{})
	first, err := d.TryAcquire("loop", func() {
		close(preempted)
		go func() {
			time.Sleep(10 * time.Millisecond)
			first.Release()
		}()
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := d.Preempt(ctx, "manual", nil)
	if err != nil {
		t.Fatalf("preempt: %v", err)
	}
	select {
	case <-preempted:
	default:
		t.Fatalf("holder was not asked to release")
	}
	if d.Holder() != "manual" {
		t.Fatalf("expected manual holder, got %q", d.Holder())
	}
	// A stale release from the old holder must not free the new lease.
	first.Release()
	if d.Holder() != "manual" {
		t.Fatalf("stale release freed the device")
	}
	second.Release()
}

func TestDeviceAcquireHonorsContext(t *testing.T) {
	d := NewDevice("speaker")
	if _, err := d.TryAcquire("a", nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Acquire(ctx, "b", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
