// SPDX-License-Identifier: MIT
// Package tone plays reference pitches through the default output device.
package tone

import (
	"fmt"
	"math"
	"time"

	"pitchcoach/internal/log"
	"pitchcoach/internal/session"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// fade is the attack and release length, long enough to avoid clicks.
const fade = 10 * time.Millisecond

// BeepPlayer plays one reference tone at a time. A new tone replaces the one
// still sounding. It implements session.TonePlayer.
type BeepPlayer struct {
	sampleRate beep.SampleRate
	volume     float64
}

var _ session.TonePlayer = (*BeepPlayer)(nil)

// NewBeepPlayer opens the speaker. Call Close when done.
func NewBeepPlayer(sampleRate int, volume float64) (*BeepPlayer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid tone sample rate %d", sampleRate)
	}
	if volume <= 0 || volume > 1 {
		return nil, fmt.Errorf("tone volume must be in (0, 1], got %.2f", volume)
	}

	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(50*time.Millisecond)); err != nil {
		return nil, fmt.Errorf("failed to open speaker: %w", err)
	}
	return &BeepPlayer{sampleRate: sr, volume: volume}, nil
}

// Play starts a tone and returns immediately.
func (p *BeepPlayer) Play(frequencyHz float64, duration time.Duration) {
	if frequencyHz <= 0 || duration <= 0 {
		return
	}
	log.Debugf("Tone: Playing %.2f Hz for %v", frequencyHz, duration)

	speaker.Clear()
	speaker.Play(NewSine(p.sampleRate, frequencyHz, p.volume, duration))
}

// Close stops playback and releases the speaker.
func (p *BeepPlayer) Close() {
	speaker.Clear()
	speaker.Close()
}

// Sine is a finite sine streamer with a linear fade in and out.
type Sine struct {
	step   float64 // Phase increment per sample.
	phase  float64
	volume float64
	total  int
	pos    int
	ramp   int
}

var _ beep.Streamer = (*Sine)(nil)

// NewSine returns a tone of the given length at sampleRate.
func NewSine(sampleRate beep.SampleRate, frequencyHz, volume float64, duration time.Duration) *Sine {
	total := sampleRate.N(duration)
	return &Sine{
		step:   2 * math.Pi * frequencyHz / float64(sampleRate),
		volume: volume,
		total:  total,
		ramp:   min(sampleRate.N(fade), total/2),
	}
}

// Len returns the tone length in samples.
func (s *Sine) Len() int {
	return s.total
}

func (s *Sine) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= s.total {
		return 0, false
	}

	for i := range samples {
		if s.pos >= s.total {
			return i, true
		}

		v := math.Sin(s.phase) * s.volume * s.envelope()
		samples[i][0] = v
		samples[i][1] = v

		s.phase += s.step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
		s.pos++
	}
	return len(samples), true
}

func (s *Sine) Err() error { return nil }

func (s *Sine) envelope() float64 {
	if s.ramp == 0 {
		return 1
	}
	switch {
	case s.pos < s.ramp:
		return float64(s.pos) / float64(s.ramp)
	case s.pos >= s.total-s.ramp:
		return float64(s.total-s.pos) / float64(s.ramp)
	default:
		return 1
	}
}
