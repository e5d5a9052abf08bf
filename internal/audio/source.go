// SPDX-License-Identifier: MIT
/*
Package audio captures microphone input for the trainer:
- PortAudio capture delivering mono float32 buffers
- WAV file replay with the same interface
- A peak gate in front of the detector
- WAV recording of each listening period

Thread Safety:
- Buffers are delivered on the audio thread and reused between callbacks
- Level and gate state are atomic so the UI can read them without locks
*/
package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"pitchcoach/internal/log"
	"pitchcoach/internal/session"

	"github.com/gordonklaus/portaudio"
)

// minStallTimeout bounds how long a stream may go without a callback before
// it is reported as lost.
const minStallTimeout = time.Second

// SourceConfig selects and shapes the capture device.
type SourceConfig struct {
	DeviceID        int
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
	LowLatency      bool
}

// PortAudioSource opens PortAudio input streams. It implements session.AudioSource.
type PortAudioSource struct {
	cfg   SourceConfig
	gate  *Gate
	level atomic.Uint32 // math.Float32bits of the last buffer peak.
}

var _ session.AudioSource = (*PortAudioSource)(nil)

// NewPortAudioSource returns a source for cfg. A nil gate lets every buffer through.
func NewPortAudioSource(cfg SourceConfig, gate *Gate) *PortAudioSource {
	if gate == nil {
		gate = NewGate(0)
		gate.Disable()
	}
	if cfg.Channels < 1 {
		cfg.Channels = 1
	}
	return &PortAudioSource{cfg: cfg, gate: gate}
}

// Gate returns the gate applied to every stream.
func (s *PortAudioSource) Gate() *Gate {
	return s.gate
}

// Level returns the peak amplitude of the most recent buffer.
func (s *PortAudioSource) Level() float32 {
	return math.Float32frombits(s.level.Load())
}

// Open starts a capture stream. Errors from device lookup or PortAudio are
// reported as session.ErrDevicePermissionDenied, since the host gives no
// finer distinction.
func (s *PortAudioSource) Open(onBuffer session.BufferFunc, onError func(error)) (session.Stream, error) {
	device, err := InputDevice(s.cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDevicePermissionDenied, err)
	}

	channels := min(s.cfg.Channels, device.MaxInputChannels)
	if channels < 1 {
		return nil, fmt.Errorf("%w: device %s has no input channels", session.ErrDeviceUnavailable, device.Name)
	}

	latency := device.DefaultHighInputLatency
	if s.cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	st := &stream{
		src:        s,
		channels:   channels,
		mono:       make([]float32, s.cfg.FramesPerBuffer),
		sampleRate: s.cfg.SampleRate,
		onBuffer:   onBuffer,
		onError:    onError,
		stop:       make(chan struct{}),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: s.cfg.FramesPerBuffer,
		SampleRate:      s.cfg.SampleRate,
	}

	pa, err := portaudio.OpenStream(params, st.process)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDevicePermissionDenied, err)
	}
	if info := pa.Info(); info != nil && info.SampleRate > 0 {
		st.sampleRate = info.SampleRate
	}
	st.pa = pa

	st.last.Store(time.Now().UnixNano())
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, fmt.Errorf("%w: %v", session.ErrDevicePermissionDenied, err)
	}

	bufferTime := time.Duration(float64(s.cfg.FramesPerBuffer) / st.sampleRate * float64(time.Second))
	st.wg.Add(1)
	go st.watch(max(minStallTimeout, 10*bufferTime))

	log.Debugf("Audio: Opened %s, %d channel(s) at %.0f Hz, latency %v", device.Name, channels, st.sampleRate, latency)
	return st, nil
}

type stream struct {
	src        *PortAudioSource
	pa         *portaudio.Stream
	channels   int
	mono       []float32
	sampleRate float64
	onBuffer   session.BufferFunc
	onError    func(error)

	last      atomic.Int64 // UnixNano of the last callback.
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func (st *stream) SampleRate() float64 {
	return st.sampleRate
}

// process is the PortAudio callback. It must not allocate.
func (st *stream) process(in []float32) {
	st.last.Store(time.Now().UnixNano())

	mono := firstChannel(st.mono, in, st.channels)
	peak := Peak(mono)
	st.src.level.Store(math.Float32bits(peak))

	if !st.src.gate.Pass(peak) {
		return
	}
	st.onBuffer(mono, st.sampleRate)
}

// watch reports the stream as lost once callbacks stop arriving.
func (st *stream) watch(timeout time.Duration) {
	defer st.wg.Done()

	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case now := <-ticker.C:
			idle := now.Sub(time.Unix(0, st.last.Load()))
			if idle > timeout {
				st.onError(fmt.Errorf("%w: no audio for %v", session.ErrDeviceUnavailable, idle.Round(time.Millisecond)))
				return
			}
		}
	}
}

func (st *stream) Close() error {
	st.closeOnce.Do(func() {
		close(st.stop)
		st.wg.Wait()

		if err := st.pa.Stop(); err != nil {
			st.closeErr = err
		}
		if err := st.pa.Close(); err != nil && st.closeErr == nil {
			st.closeErr = err
		}
		st.src.level.Store(0)
	})
	return st.closeErr
}

// firstChannel copies the first channel of interleaved input into dst.
func firstChannel(dst, in []float32, channels int) []float32 {
	if channels <= 1 {
		n := copy(dst, in)
		return dst[:n]
	}
	frames := min(len(in)/channels, len(dst))
	for i := range frames {
		dst[i] = in[i*channels]
	}
	return dst[:frames]
}
