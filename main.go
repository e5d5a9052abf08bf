// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pitchcoach/cmd"
	"pitchcoach/internal/audio"
	"pitchcoach/internal/coaching"
	"pitchcoach/internal/config"
	"pitchcoach/internal/log"
	"pitchcoach/internal/notes"
	"pitchcoach/internal/pitch"
	"pitchcoach/internal/session"
	"pitchcoach/internal/tone"
	"pitchcoach/internal/transport"
	"pitchcoach/internal/transport/udp"
	"pitchcoach/internal/tui"
	"pitchcoach/pkg/build"
)

// main runs in three phases:
//
//  1. Startup: build info, arguments, configuration, one-off commands.
//  2. Training: the session runtime on its own goroutine, the terminal UI on
//     the main goroutine, optional network surfaces observing the session.
//  3. Shutdown: the UI exits or a signal arrives, the runtime releases the
//     device and every surface is closed.
func main() {
	if err := build.Initialize(); err != nil {
		// Development builds carry no ldflags.
		log.Debugf("Build: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if opts == nil {
		return // --help or --version
	}
	log.SetLevel(opts.Config.Level())

	if err := run(opts); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(opts *cmd.Options) error {
	table := notes.DefaultTable()

	switch opts.Command {
	case cmd.CommandNotes:
		return cmd.PrintNotes(os.Stdout, table)
	case cmd.CommandVersion:
		return cmd.PrintVersion(os.Stdout)
	case cmd.CommandAnalyze:
		rep, err := cmd.Analyze(opts.Args[0], opts.Config, table)
		if err != nil {
			return err
		}
		return rep.Print(os.Stdout)
	case cmd.CommandList:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		return audio.ListDevices(os.Stdout)
	default:
		return train(opts, table)
	}
}

func train(opts *cmd.Options, table *notes.Table) error {
	cfg := opts.Config
	live := cfg.Audio.InputFile == ""

	if live && opts.Pick {
		sel, ok, err := tui.PickDevice(nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("selected device: %w", err)
		}
	}

	// The alternate screen owns the terminal; logs go to a file instead.
	logPath := filepath.Join(os.TempDir(), "pitchcoach.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	defer log.SetOutput(os.Stderr)

	if live {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
	}

	rt, level, closers, err := newRuntime(cfg, table)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	if err != nil {
		return err
	}

	feed := tui.NewFeed()
	rt.Subscribe(feed)

	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, rt)
		if err := ws.Start(); err != nil {
			return err
		}
		defer ws.Close()
		rt.Subscribe(transport.Observe(ws))
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		pub, err := udp.NewDetectionPublisher(cfg.Transport.UDPSendInterval, sender, table)
		if err != nil {
			return err
		}
		pub.Start()
		defer pub.Close()
		rt.Subscribe(pub)
	}

	if opts.Verbose {
		rt.Subscribe(transport.Observe(transport.NewLoggingTransport()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(ctx) }()

	model := tui.NewExerciseModel(rt, feed, rt.Snapshot(), tui.ExerciseOptions{
		FailureThreshold: cfg.Session.FailureThreshold,
		CooldownUnits:    cfg.Session.CooldownUnits,
		Level:            level,
	})
	uiErr := tui.RunExercise(ctx, model)

	stop()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if uiErr != nil {
		return uiErr
	}

	log.Infof("Session: Dropped %d detection tick(s)", rt.Dropped())
	fmt.Printf("Session log: %s\n", logPath)
	return nil
}

// newRuntime builds the session and its collaborators. closers release what
// was opened, even when err is non-nil.
func newRuntime(cfg *config.Config, table *notes.Table) (rt *session.Runtime, level func() float32, closers []func(), err error) {
	dc, err := cfg.DetectorConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	detector, err := pitch.NewDetector(dc)
	if err != nil {
		return nil, nil, nil, err
	}

	analyzer := coaching.NewAnalyzer(table, cfg.CoachingThresholds())
	machine, err := session.NewMachine(cfg.SessionConfig(), table, analyzer, newRand(cfg.Session.Seed))
	if err != nil {
		return nil, nil, nil, err
	}

	var source session.AudioSource
	if cfg.Audio.InputFile != "" {
		source = audio.NewFileSource(cfg.Audio.InputFile, cfg.Audio.FramesPerBuffer, true)
	} else {
		gate := audio.NewGate(cfg.Audio.GateThreshold)
		if cfg.Audio.GateThreshold == 0 {
			gate.Disable()
		}
		pa := audio.NewPortAudioSource(audio.SourceConfig{
			DeviceID:        cfg.Audio.InputDevice,
			SampleRate:      cfg.Audio.SampleRate,
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
			Channels:        cfg.Audio.InputChannels,
			LowLatency:      cfg.Audio.LowLatency,
		}, gate)
		source = pa
		level = pa.Level
	}

	var rtOpts []session.Option

	if cfg.Tone.Enabled {
		player, err := tone.NewBeepPlayer(cfg.Tone.SampleRate, cfg.Tone.Volume)
		if err != nil {
			// Training works without reference tones.
			log.Warnf("Tone: %v", err)
		} else {
			closers = append(closers, player.Close)
			rtOpts = append(rtOpts, session.WithTonePlayer(player, cfg.Tone.Duration))
		}
	}

	if cfg.Recording.Enabled {
		rec, err := audio.NewRecorder(cfg.Recording.OutputDir, cfg.Recording.BitDepth, cfg.Audio.FramesPerBuffer)
		if err != nil {
			return nil, nil, closers, err
		}
		closers = append(closers, func() {
			if err := rec.End(); err != nil {
				log.Errorf("Recorder: %v", err)
			}
			if p := rec.LastPath(); p != "" {
				fmt.Printf("Last take saved to: %s\n", p)
			}
		})
		rtOpts = append(rtOpts, session.WithRecorder(rec))
	}

	return session.NewRuntime(machine, source, detector, rtOpts...), level, closers, nil
}

// newRand seeds target selection. Zero picks a random seed.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
