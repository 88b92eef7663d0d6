package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"time"
)

// SilenceDBFS is the level reported for empty or all-zero clips.
const SilenceDBFS = -100.0

// Clip is one finished capture: little-endian signed 16-bit PCM.
type Clip struct {
	ID         string
	Data       []byte
	SampleRate int
	Channels   int
	CapturedAt time.Time
}

// Samples decodes the PCM payload.
func (c Clip) Samples() []int16 {
	n := len(c.Data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(c.Data[i*2:]))
	}
	return out
}

// Duration is derived from the payload size.
func (c Clip) Duration() time.Duration {
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	if c.SampleRate <= 0 {
		return 0
	}
	frames := len(c.Data) / (2 * channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// EnergyDBFS returns the RMS level of the clip relative to full scale.
func (c Clip) EnergyDBFS() float64 {
	samples := c.Samples()
	if len(samples) == 0 {
		return SilenceDBFS
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return SilenceDBFS
	}
	db := 20 * math.Log10(rms)
	if db < SilenceDBFS {
		return SilenceDBFS
	}
	return db
}

// WAV wraps the PCM payload in a RIFF/WAVE container.
func (c Clip) WAV() []byte {
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := c.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	var buf bytes.Buffer
	dataLen := uint32(len(c.Data))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(c.Data)
	return buf.Bytes()
}

// SaveWAV writes the clip under dir and returns the file path.
func SaveWAV(dir string, c Clip) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := c.ID
	if name == "" {
		name = c.CapturedAt.UTC().Format("20060102T150405.000")
	}
	path := filepath.Join(dir, name+".wav")
	if err := os.WriteFile(path, c.WAV(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// PCM16 encodes samples as little-endian bytes.
func PCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
