// SPDX-License-Identifier: MIT
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pitchcoach/internal/log"
	"pitchcoach/internal/pitch"
)

// BufferFunc receives one buffer of mono samples in [-1, 1].
type BufferFunc func(samples []float32, sampleRate float64)

// AudioSource opens a capture stream. onBuffer is called from the source's
// own goroutine; onError reports a stream that stopped delivering audio.
type AudioSource interface {
	Open(onBuffer BufferFunc, onError func(error)) (Stream, error)
}

// Stream is an open capture handle.
type Stream interface {
	SampleRate() float64
	Close() error
}

// TonePlayer plays a reference tone without blocking.
type TonePlayer interface {
	Play(frequencyHz float64, duration time.Duration)
}

// Detector estimates pitch from a buffer. *pitch.Detector implements it.
type Detector interface {
	Detect(samples []float32, sampleRate float64) (pitch.Estimate, error)
}

// Recorder captures raw audio for a listening period. Write is called from
// the audio callback; Begin and End from the session loop.
type Recorder interface {
	Begin(noteID string, sampleRate float64) error
	Write(samples []float32)
	End() error
}

// Observer receives every published snapshot on the session goroutine and
// must not block.
type Observer interface {
	Observe(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

// eventQueueSize bounds the pending event queue. Ticks that find it full are
// dropped; control actions wait.
const eventQueueSize = 64

type request struct {
	ev    Event
	gen   uint64 // Stream generation for audio events, 0 for control.
	reply chan error
}

// Runtime owns a Machine and executes its effects. All state changes happen
// on the goroutine running Run.
type Runtime struct {
	m        *Machine
	source   AudioSource
	detector Detector
	tone     TonePlayer
	recorder Recorder
	clock    Clock

	cooldownUnit time.Duration
	toneDuration time.Duration

	events chan request
	done   chan struct{}

	stream Stream
	gen    uint64
	ticker Ticker

	observersMu sync.RWMutex
	observers   []Observer

	snapshot atomic.Pointer[Snapshot]
	dropped  atomic.Uint64
	running  atomic.Bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithTonePlayer sets the reference tone player.
func WithTonePlayer(p TonePlayer, duration time.Duration) Option {
	return func(r *Runtime) {
		r.tone = p
		r.toneDuration = duration
	}
}

// WithRecorder records every listening period.
func WithRecorder(rec Recorder) Option {
	return func(r *Runtime) { r.recorder = rec }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Runtime) { r.clock = c }
}

// WithObserver registers an observer before Run starts.
func WithObserver(o Observer) Option {
	return func(r *Runtime) { r.observers = append(r.observers, o) }
}

// NewRuntime wires a machine to its collaborators.
func NewRuntime(m *Machine, source AudioSource, detector Detector, opts ...Option) *Runtime {
	r := &Runtime{
		m:            m,
		source:       source,
		detector:     detector,
		clock:        SystemClock{},
		cooldownUnit: m.cfg.CooldownUnit,
		toneDuration: 1500 * time.Millisecond,
		events:       make(chan request, eventQueueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	s := m.Snapshot()
	r.snapshot.Store(&s)
	return r
}

// Subscribe adds an observer. It is safe to call while running.
func (r *Runtime) Subscribe(o Observer) {
	r.observersMu.Lock()
	r.observers = append(r.observers, o)
	r.observersMu.Unlock()
}

// Snapshot returns the last published state.
func (r *Runtime) Snapshot() Snapshot {
	return *r.snapshot.Load()
}

// Dropped returns the number of ticks discarded because the queue was full.
func (r *Runtime) Dropped() uint64 {
	return r.dropped.Load()
}

// Run processes events until ctx is cancelled, then releases the device and
// timer.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session runtime already running")
	}
	defer close(r.done)
	defer r.shutdown()

	log.Infof("Session: Runtime started, target %s", r.m.Target().ID)
	r.publish()

	for {
		var tickC <-chan time.Time
		if r.ticker != nil {
			tickC = r.ticker.C()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-r.events:
			err := r.handle(req)
			if req.reply != nil {
				req.reply <- err
			}
		case <-tickC:
			r.handle(request{ev: CooldownTick{}})
		}
	}
}

func (r *Runtime) shutdown() {
	r.stopTicker()
	r.closeStream()
	log.Infof("Session: Runtime stopped")
}

// StartListening opens the audio source and starts evaluating ticks. A
// device that cannot be opened leaves the session Idle and returns an error
// wrapping ErrDevicePermissionDenied.
func (r *Runtime) StartListening(ctx context.Context) error {
	return r.do(ctx, Start{})
}

// StopListening releases the device. Calling it while not listening is a
// no-op.
func (r *Runtime) StopListening(ctx context.Context) error {
	return r.do(ctx, Stop{})
}

// ChangeNote switches to noteID, or to a random other note when empty.
func (r *Runtime) ChangeNote(ctx context.Context, noteID string) error {
	return r.do(ctx, ChangeNote{NoteID: noteID})
}

// RetryCurrentNote resumes listening after coaching.
func (r *Runtime) RetryCurrentNote(ctx context.Context) error {
	return r.do(ctx, Retry{})
}

// AdvanceToNext skips the remaining cooldown.
func (r *Runtime) AdvanceToNext(ctx context.Context) error {
	return r.do(ctx, Advance{})
}

// PlayReference plays the current target's center frequency.
func (r *Runtime) PlayReference() {
	if r.tone == nil {
		return
	}
	target := r.Snapshot().Target
	r.tone.Play(target.CenterHz(), r.toneDuration)
}

func (r *Runtime) do(ctx context.Context, ev Event) error {
	req := request{ev: ev, reply: make(chan error, 1)}
	select {
	case r.events <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return fmt.Errorf("session runtime stopped")
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return fmt.Errorf("session runtime stopped")
	}
}

// handle applies one event and executes its effects. Invalid transitions
// are logged and reported to the caller but never change state.
func (r *Runtime) handle(req request) error {
	if req.gen != 0 && req.gen != r.gen {
		return nil // Late event from a stream that is already closed.
	}

	effects, err := r.m.Apply(req.ev)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Debugf("Session: %v", err)
		}
		return err
	}
	return r.execute(effects)
}

func (r *Runtime) execute(effects []Effect) error {
	var result error
	notify := false

	for _, e := range effects {
		switch e {
		case EffectOpenDevice:
			if err := r.openStream(); err != nil {
				follow, _ := r.m.Apply(DeviceFailed{Err: err})
				if ferr := r.execute(follow); ferr != nil {
					log.Errorf("Session: %v", ferr)
				}
				result = err
				continue
			}
			follow, _ := r.m.Apply(DeviceOpened{})
			if ferr := r.execute(follow); ferr != nil {
				log.Errorf("Session: %v", ferr)
			}
		case EffectCloseDevice:
			r.closeStream()
		case EffectStartCooldown:
			r.stopTicker()
			r.ticker = r.clock.NewTicker(r.cooldownUnit)
		case EffectCancelCooldown:
			r.stopTicker()
		case EffectNotify:
			notify = true
		}
	}

	if notify {
		r.publish()
	}
	return result
}

func (r *Runtime) openStream() error {
	r.gen++
	gen := r.gen
	latch := r.m.Latch()

	onBuffer := func(samples []float32, sampleRate float64) {
		if latch.IsSet() {
			return
		}
		if r.recorder != nil {
			r.recorder.Write(samples)
		}
		est, err := r.detector.Detect(samples, sampleRate)
		if err != nil {
			if !errors.Is(err, pitch.ErrSilence) && !errors.Is(err, pitch.ErrAmbiguous) {
				log.Debugf("Session: Detection failed: %v", err)
			}
			return
		}
		r.post(request{
			ev: Tick{Detection: Detection{
				FrequencyHz: est.FrequencyHz,
				Confidence:  est.Confidence,
				At:          r.clock.Now(),
			}},
			gen: gen,
		})
	}

	onError := func(err error) {
		req := request{ev: DeviceLost{Err: err}, gen: gen}
		select {
		case r.events <- req:
		default:
			// Never block the source; it may be inside Close.
			go func() {
				select {
				case r.events <- req:
				case <-r.done:
				}
			}()
		}
	}

	stream, err := r.source.Open(onBuffer, onError)
	if err != nil {
		if !errors.Is(err, ErrDevicePermissionDenied) && !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDevicePermissionDenied, err)
		}
		return err
	}
	r.stream = stream
	log.Infof("Session: Listening for %s at %.0f Hz", r.m.Target().ID, stream.SampleRate())

	if r.recorder != nil {
		if err := r.recorder.Begin(r.m.Target().ID, stream.SampleRate()); err != nil {
			log.Warnf("Session: Recording disabled for this take: %v", err)
		}
	}
	return nil
}

// closeStream releases the device. It is safe to call with no stream open.
func (r *Runtime) closeStream() {
	if r.stream == nil {
		return
	}
	stream := r.stream
	r.stream = nil
	r.gen++ // Invalidate events still queued from this stream.

	if err := stream.Close(); err != nil {
		log.Warnf("Session: Error closing audio stream: %v", err)
	}
	if r.recorder != nil {
		if err := r.recorder.End(); err != nil {
			log.Warnf("Session: Error finishing recording: %v", err)
		}
	}
}

func (r *Runtime) stopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}

// post enqueues an audio event without blocking.
func (r *Runtime) post(req request) {
	select {
	case r.events <- req:
	default:
		r.dropped.Add(1)
	}
}

func (r *Runtime) publish() {
	s := r.m.Snapshot()
	r.snapshot.Store(&s)

	r.observersMu.RLock()
	defer r.observersMu.RUnlock()
	for _, o := range r.observers {
		o.Observe(s)
	}
}
