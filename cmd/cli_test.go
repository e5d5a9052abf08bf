// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pitchcoach/internal/audio"
	"pitchcoach/internal/config"
	"pitchcoach/internal/log"
	"pitchcoach/internal/notes"
	"pitchcoach/internal/pitch"
	"pitchcoach/pkg/utils"
)

const testSampleRate = 44100

func TestMain(m *testing.M) {
	log.SetLevel(log.LevelError)
	os.Exit(m.Run())
}

func TestParseArgs_Commands(t *testing.T) {
	tests := []struct {
		args    []string
		command string
	}{
		{nil, CommandTrain},
		{[]string{"train"}, CommandTrain},
		{[]string{"list"}, CommandList},
		{[]string{"notes"}, CommandNotes},
		{[]string{"version"}, CommandVersion},
		{[]string{"analyze", "take.wav"}, CommandAnalyze},
	}

	for _, tt := range tests {
		t.Run(strings.Join(append([]string{"args"}, tt.args...), " "), func(t *testing.T) {
			opts, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("ParseArgs(%v): %v", tt.args, err)
			}
			if opts.Command != tt.command {
				t.Errorf("Command = %q, want %q", opts.Command, tt.command)
			}
			if opts.Config == nil || opts.Config.Command != tt.command {
				t.Errorf("config command not set: %+v", opts.Config)
			}
		})
	}
}

func TestParseArgs_AnalyzeNeedsFile(t *testing.T) {
	if _, err := ParseArgs([]string{"analyze"}); err == nil {
		t.Error("expected error without a file argument")
	}
	opts, err := ParseArgs([]string{"analyze", "a.wav"})
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.Args) != 1 || opts.Args[0] != "a.wav" {
		t.Errorf("Args = %v", opts.Args)
	}
}

func TestParseArgs_UnknownCommand(t *testing.T) {
	if _, err := ParseArgs([]string{"sing"}); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestParseArgs_Help(t *testing.T) {
	opts, err := ParseArgs([]string{"--help"})
	if err != nil || opts != nil {
		t.Errorf("ParseArgs(--help) = %+v, %v; want nil, nil", opts, err)
	}
}

func TestParseArgs_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pitchcoach.yaml")
	yaml := "audio:\n  sample_rate: 48000\n  input_device: 1\nsession:\n  start_note: C4\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := ParseArgs([]string{
		"train", "--pick",
		"--config", path,
		"--device", "3",
		"--note", "A3",
		"--record", "-o", dir,
		"--ws",
		"--udp", "10.0.0.1:7000",
		"--no-tone",
		"-v",
	})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	cfg := opts.Config

	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("file value lost: sample rate %.0f", cfg.Audio.SampleRate)
	}
	if cfg.Audio.InputDevice != 3 || cfg.Session.StartNote != "A3" {
		t.Errorf("flags not applied: device %d, note %q", cfg.Audio.InputDevice, cfg.Session.StartNote)
	}
	if !cfg.Recording.Enabled || cfg.Recording.OutputDir != dir {
		t.Errorf("recording = %+v", cfg.Recording)
	}
	if !cfg.Transport.WebSocketEnabled || cfg.Transport.WebSocketAddress != config.Default().Transport.WebSocketAddress {
		t.Errorf("websocket = %v %q", cfg.Transport.WebSocketEnabled, cfg.Transport.WebSocketAddress)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.1:7000" {
		t.Errorf("udp = %v %q", cfg.Transport.UDPEnabled, cfg.Transport.UDPTargetAddress)
	}
	if cfg.Tone.Enabled {
		t.Error("--no-tone ignored")
	}
	if !opts.Pick || !opts.Verbose || cfg.LogLevel != "debug" {
		t.Errorf("pick %v, verbose %v, level %q", opts.Pick, opts.Verbose, cfg.LogLevel)
	}
}

func TestParseArgs_UnsetFlagsKeepConfig(t *testing.T) {
	opts, err := ParseArgs([]string{"list"})
	if err != nil {
		t.Fatal(err)
	}
	def := config.Default()
	if opts.Config.Transport.WebSocketEnabled || opts.Config.Transport.UDPEnabled {
		t.Error("network surfaces enabled without flags")
	}
	if opts.Config.Recording.OutputDir != def.Recording.OutputDir {
		t.Errorf("output dir = %q", opts.Config.Recording.OutputDir)
	}
}

func TestParseArgs_InvalidFlag(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--frames-per-buffer", "64"}, "frames_per_buffer"},
		{[]string{"-s", "96000"}, "too short"},
	}
	for _, tt := range tests {
		_, err := ParseArgs(tt.args)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("ParseArgs(%v) = %v, want error containing %q", tt.args, err, tt.want)
		}
	}
	if _, err := ParseArgs([]string{"-s", "96000", "-b", "4096"}); err != nil {
		t.Errorf("longer window at 96 kHz rejected: %v", err)
	}
}

func TestPrintNotes(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintNotes(&buf, notes.DefaultTable()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Center Hz", "A3", "207.66", "220.37", "233.08"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintVersion(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "commit") {
		t.Errorf("version = %q", buf.String())
	}
}

// writeClip records samples to a WAV file in dir.
func writeClip(t *testing.T, dir string, samples []float32) string {
	t.Helper()
	rec, err := audio.NewRecorder(dir, 16, len(samples))
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Begin("clip", testSampleRate); err != nil {
		t.Fatal(err)
	}
	rec.Write(samples)
	if err := rec.End(); err != nil {
		t.Fatal(err)
	}
	return rec.LastPath()
}

func TestAnalyze_Trace(t *testing.T) {
	cfg := config.Default()
	samples := append(make([]float32, 2*cfg.Audio.FramesPerBuffer),
		utils.SineWave(testSampleRate, testSampleRate, 220.37, 0.5)...)
	path := writeClip(t, t.TempDir(), samples)

	cfg.Session.StartNote = "A3"
	rep, err := Analyze(path, &cfg, notes.DefaultTable())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !errors.Is(rep.Lines[0].Err, pitch.ErrSilence) {
		t.Errorf("first buffer err = %v, want silence", rep.Lines[0].Err)
	}
	if rep.Voiced == 0 {
		t.Fatal("no voiced buffers")
	}
	if l := rep.Lines[2]; l.Err != nil || l.Match.Note.ID != "A3" || !l.Match.InBand {
		t.Errorf("third buffer = %+v", l)
	}
	if !rep.Matched || rep.Diagnosis != nil {
		t.Errorf("matched %v, diagnosis %+v", rep.Matched, rep.Diagnosis)
	}

	var out bytes.Buffer
	if err := rep.Print(&out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"silence", "A3", "in band", "matched"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("trace missing %q:\n%s", want, out.String())
		}
	}
}

func TestAnalyze_MissesProduceDiagnosis(t *testing.T) {
	cfg := config.Default()
	// G3 for two and a half seconds against an A3 target.
	path := writeClip(t, t.TempDir(), utils.SineWave(testSampleRate*5/2, testSampleRate, 196, 0.5))

	cfg.Session.StartNote = "A3"
	rep, err := Analyze(path, &cfg, notes.DefaultTable())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.Matched {
		t.Error("G3 must not match A3")
	}
	// One counted miss per debounce window.
	if rep.Stats.Count < 2 || rep.Stats.Count > 3 {
		t.Errorf("counted misses = %d, want 2-3", rep.Stats.Count)
	}
	if rep.Stats.DominantWrongNoteID != "G3" {
		t.Errorf("dominant wrong note = %q", rep.Stats.DominantWrongNoteID)
	}
	if rep.Diagnosis == nil {
		t.Fatal("expected a diagnosis")
	}
}

func TestAnalyze_Errors(t *testing.T) {
	cfg := config.Default()
	if _, err := Analyze(filepath.Join(t.TempDir(), "missing.wav"), &cfg, notes.DefaultTable()); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeClip(t, t.TempDir(), utils.SineWave(4096, testSampleRate, 220, 0.5))
	cfg.Session.StartNote = "H9"
	if _, err := Analyze(path, &cfg, notes.DefaultTable()); err == nil {
		t.Error("expected error for unknown note")
	}

	// Validate lets file input through; the recording's rate decides.
	cfg = config.Default()
	cfg.Audio.InputFile = path
	cfg.Audio.FramesPerBuffer = 512
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := Analyze(path, &cfg, notes.DefaultTable()); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("Analyze with 512 frames = %v, want window error", err)
	}
}
