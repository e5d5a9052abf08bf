// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pitchcoach/internal/log"
	"pitchcoach/internal/session"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes each listening period to its own mono WAV file named
// take-<note>-<timestamp>.wav. It implements session.Recorder.
type Recorder struct {
	dir      string
	bitDepth int
	frames   int // Expected samples per Write.
	now      func() time.Time

	mu         sync.Mutex
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
	path       string
	lastPath   string
	writeErr   error
}

var _ session.Recorder = (*Recorder)(nil)

// NewRecorder creates dir if needed. framesPerBuffer sizes the conversion
// buffer so that Write, called from the audio callback, does not allocate it.
func NewRecorder(dir string, bitDepth, framesPerBuffer int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	return &Recorder{dir: dir, bitDepth: bitDepth, frames: max(framesPerBuffer, 0), now: time.Now}, nil
}

// Begin starts a new take, finishing any take still open.
func (r *Recorder) Begin(noteID string, sampleRate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wavEncoder != nil {
		if err := r.finish(); err != nil {
			log.Warnf("Recorder: Error finishing previous take: %v", err)
		}
	}

	name := fmt.Sprintf("take-%s-%s.wav", noteID, r.now().Format("20060102-150405.000"))
	path := filepath.Join(r.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, int(sampleRate), r.bitDepth, 1, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  int(sampleRate),
		},
		Data:           make([]int, 0, r.frames),
		SourceBitDepth: r.bitDepth,
	}
	r.path = path
	r.writeErr = nil

	log.Debugf("Recorder: Recording %s", path)
	return nil
}

// Write appends samples to the open take. It is a no-op between takes.
func (r *Recorder) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wavEncoder == nil || r.writeErr != nil {
		return
	}

	if err := r.wavEncoder.Write(r.fill(samples)); err != nil {
		// Logged once per take; the audio thread keeps running.
		r.writeErr = err
		log.Errorf("Recorder: Error writing to WAV file: %v", err)
	}
}

// fill converts samples to integer PCM in the reusable buffer. It only grows
// the buffer when a callback delivers more than framesPerBuffer samples.
func (r *Recorder) fill(samples []float32) *audio.IntBuffer {
	scale := float64(int64(1)<<(r.bitDepth-1) - 1)
	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		r.sampleBuf.Data[i] = int(math.Round(v * scale))
	}
	return r.sampleBuf
}

// End closes the open take. It is a no-op between takes.
func (r *Recorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finish()
}

// LastPath returns the file of the most recently finished take.
func (r *Recorder) LastPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPath
}

func (r *Recorder) finish() error {
	if r.wavEncoder == nil {
		return nil
	}

	var err error
	if cerr := r.wavEncoder.Close(); cerr != nil {
		err = cerr
	}
	if cerr := r.outputFile.Close(); cerr != nil && err == nil {
		err = cerr
	}

	r.lastPath = r.path
	r.wavEncoder = nil
	r.outputFile = nil
	r.path = ""
	return err
}
