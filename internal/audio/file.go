// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"pitchcoach/internal/session"

	"github.com/go-audio/wav"
)

// Clip is a decoded mono recording.
type Clip struct {
	Samples    []float32
	SampleRate float64
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / c.SampleRate * float64(time.Second))
}

// Buffers splits the clip into consecutive windows of frames samples. The
// last window may be shorter.
func (c *Clip) Buffers(frames int) [][]float32 {
	if frames <= 0 {
		return nil
	}
	out := make([][]float32, 0, (len(c.Samples)+frames-1)/frames)
	for off := 0; off < len(c.Samples); off += frames {
		out = append(out, c.Samples[off:min(off+frames, len(c.Samples))])
	}
	return out
}

// ReadWAV decodes a PCM WAV file, keeping the first channel and scaling
// samples to [-1, 1].
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("%s has no audio channels", path)
	}

	channels := buf.Format.NumChannels
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range frames {
		samples[i] = float32(buf.Data[i*channels]) / scale
	}

	return &Clip{Samples: samples, SampleRate: float64(buf.Format.SampleRate)}, nil
}

// FileSource replays a WAV file through the session as if it were a device.
// When the file ends the stream reports session.ErrDeviceUnavailable.
type FileSource struct {
	path   string
	frames int
	paced  bool
}

var _ session.AudioSource = (*FileSource)(nil)

// NewFileSource returns a source delivering frames samples per buffer. With
// paced set, buffers arrive at the rate they would from a microphone.
func NewFileSource(path string, frames int, paced bool) *FileSource {
	return &FileSource{path: path, frames: frames, paced: paced}
}

func (s *FileSource) Open(onBuffer session.BufferFunc, onError func(error)) (session.Stream, error) {
	clip, err := ReadWAV(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDeviceUnavailable, err)
	}

	fs := &fileStream{
		sampleRate: clip.SampleRate,
		stop:       make(chan struct{}),
	}
	fs.wg.Add(1)
	go fs.play(clip.Buffers(s.frames), s.paced, onBuffer, onError, s.path)
	return fs, nil
}

type fileStream struct {
	sampleRate float64
	stop       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

func (fs *fileStream) SampleRate() float64 {
	return fs.sampleRate
}

func (fs *fileStream) play(buffers [][]float32, paced bool, onBuffer session.BufferFunc, onError func(error), path string) {
	defer fs.wg.Done()

	var tick <-chan time.Time
	if paced && len(buffers) > 0 {
		interval := time.Duration(float64(len(buffers[0])) / fs.sampleRate * float64(time.Second))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for _, buf := range buffers {
		if tick != nil {
			select {
			case <-fs.stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-fs.stop:
				return
			default:
			}
		}
		onBuffer(buf, fs.sampleRate)
	}

	select {
	case <-fs.stop:
	default:
		onError(fmt.Errorf("%w: end of %s", session.ErrDeviceUnavailable, path))
	}
}

func (fs *fileStream) Close() error {
	fs.closeOnce.Do(func() {
		close(fs.stop)
		fs.wg.Wait()
	})
	return nil
}
