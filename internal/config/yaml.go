// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"pitchcoach/internal/coaching"
	"pitchcoach/internal/log"
	"pitchcoach/internal/notes"
	"pitchcoach/internal/pitch"
	"pitchcoach/internal/session"
	"pitchcoach/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Enable debug mode (forces debug logging).
	LogLevel  string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command   string          `yaml:"command,omitempty"` // A one-off command to execute instead of training (e.g., "list", "version").
	Audio     AudioConfig     `yaml:"audio"`             // Audio capture settings.
	Detection DetectionConfig `yaml:"detection"`         // Pitch detector thresholds.
	Session   SessionConfig   `yaml:"session"`           // Exercise timing and thresholds.
	Coaching  CoachingConfig  `yaml:"coaching"`          // Diagnosis thresholds.
	Tone      ToneConfig      `yaml:"tone"`              // Reference tone playback.
	Recording RecordingConfig `yaml:"recording"`         // Take recording settings.
	Transport TransportConfig `yaml:"transport"`         // Network surfaces for snapshots and detections.
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Requested sample rate in Hz; the opened stream's rate wins.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback, which is also the detection window.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // Channels to capture; only the first is analysed.
	InputFile       string  `yaml:"input_file"`        // Replay this WAV file instead of opening a device.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Peak amplitude (0-1) a buffer must exceed to be analysed; 0 disables.
}

// DetectionConfig holds pitch detector thresholds.
type DetectionConfig struct {
	SilenceThreshold float64 `yaml:"silence_threshold"` // Mean absolute amplitude below which a buffer is silent.
	MinConfidence    float64 `yaml:"min_confidence"`    // Minimum autocorrelation clarity.
	MinFrequencyHz   float64 `yaml:"min_frequency_hz"`  // Lower edge of the voice band.
	MaxFrequencyHz   float64 `yaml:"max_frequency_hz"`  // Upper edge of the voice band.
	NoiseFloor       float64 `yaml:"noise_floor"`       // Minimum spectral magnitude for the fallback.
	Window           string  `yaml:"window"`            // Window function for the spectrum fallback (e.g., "Hann").
}

// SessionConfig holds exercise timing and thresholds.
type SessionConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"` // Counted mismatches before coaching.
	DebounceWindow   time.Duration `yaml:"debounce_window"`   // Minimum spacing between counted mismatches.
	CooldownUnits    int           `yaml:"cooldown_units"`    // Countdown length after a match.
	CooldownUnit     time.Duration `yaml:"cooldown_unit"`     // Duration of one countdown unit.
	AttemptCapacity  int           `yaml:"attempt_capacity"`  // Attempts kept for statistics.
	StartNote        string        `yaml:"start_note"`        // Initial target note id; empty picks at random.
	Seed             uint64        `yaml:"seed"`              // Seed for target selection; 0 seeds randomly.
}

// CoachingConfig holds diagnosis thresholds.
type CoachingConfig struct {
	OffsetToleranceHz float64       `yaml:"offset_tolerance_hz"` // Allowed dip on the other side of center for sharp/flat.
	MinConsistency    float64       `yaml:"min_consistency"`     // 1/max(stddev,1) below this is unstable.
	MaxDriftHz        float64       `yaml:"max_drift_hz"`        // Average drift above this is wandering.
	MinPace           time.Duration `yaml:"min_pace"`            // Average inter-attempt time below this is rushing.
}

// ToneConfig holds reference tone settings.
type ToneConfig struct {
	Enabled    bool          `yaml:"enabled"`     // Open the speaker for reference tones.
	Duration   time.Duration `yaml:"duration"`    // Length of one reference tone.
	Volume     float64       `yaml:"volume"`      // Linear gain in (0, 1].
	SampleRate int           `yaml:"sample_rate"` // Speaker sample rate in Hz.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record every listening period to a WAV file.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth"`  // Bit depth for recorded audio (16, 24 or 32).
}

// TransportConfig holds settings related to sending session data over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve snapshots and accept actions on /ws.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address for the websocket server.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send detections over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Minimum interval between UDP packets.
}

// Default returns the built-in configuration.
func Default() Config {
	det := pitch.DefaultConfig()
	sess := session.DefaultConfig()
	th := coaching.DefaultThresholds()

	return Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      false,
			InputChannels:   DefaultChannels,
			GateThreshold:   DefaultGateThreshold,
		},
		Detection: DetectionConfig{
			SilenceThreshold: det.SilenceThreshold,
			MinConfidence:    det.MinConfidence,
			MinFrequencyHz:   det.MinFrequencyHz,
			MaxFrequencyHz:   det.MaxFrequencyHz,
			NoiseFloor:       det.NoiseFloor,
			Window:           "Hann",
		},
		Session: SessionConfig{
			FailureThreshold: sess.FailureThreshold,
			DebounceWindow:   sess.DebounceWindow,
			CooldownUnits:    sess.CooldownUnits,
			CooldownUnit:     sess.CooldownUnit,
			AttemptCapacity:  sess.AttemptCapacity,
		},
		Coaching: CoachingConfig{
			OffsetToleranceHz: th.OffsetToleranceHz,
			MinConsistency:    th.MinConsistency,
			MaxDriftHz:        th.MaxDriftHz,
			MinPace:           th.MinPace,
		},
		Tone: ToneConfig{
			Enabled:    true,
			Duration:   1500 * time.Millisecond,
			Volume:     0.5,
			SampleRate: 44100,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddress: ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz.
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "pitchcoach.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables override the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	if c.Audio.InputFile == "" {
		if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
			return fmt.Errorf("audio.sample_rate %.0f out of range [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
		}
		if c.Audio.InputDevice < MinDeviceID {
			return fmt.Errorf("audio.input_device %d is invalid", c.Audio.InputDevice)
		}
		if c.Audio.InputChannels < 1 {
			return fmt.Errorf("audio.input_channels must be at least 1")
		}
	}
	if c.Audio.GateThreshold < 0 || c.Audio.GateThreshold > 1 {
		return fmt.Errorf("audio.gate_threshold must be in [0, 1], got %.4f", c.Audio.GateThreshold)
	}
	if c.Audio.FramesPerBuffer < MinBufferFrames || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d out of range [%d, %d]", c.Audio.FramesPerBuffer, MinBufferFrames, MaxBufferFrames)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FramesPerBuffer) {
		log.Debugf("Config: frames_per_buffer %d is zero-padded to %d for the spectrum fallback",
			c.Audio.FramesPerBuffer, bitint.NextPowerOfTwo(c.Audio.FramesPerBuffer))
	}

	if _, err := c.DetectorConfig(); err != nil {
		return err
	}
	// A file's rate is only known once it is opened; analyze checks it there.
	if c.Audio.InputFile == "" {
		if need := c.MinFramesPerBuffer(c.Audio.SampleRate); c.Audio.FramesPerBuffer < need {
			return fmt.Errorf("audio.frames_per_buffer %d is too short for %.2f Hz at %.0f Hz, need at least %d",
				c.Audio.FramesPerBuffer, c.lowestFrequencyHz(), c.Audio.SampleRate, need)
		}
	}
	if err := c.SessionConfig().Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if c.Tone.Enabled {
		if c.Tone.Volume <= 0 || c.Tone.Volume > 1 {
			return fmt.Errorf("tone.volume must be in (0, 1], got %.2f", c.Tone.Volume)
		}
		if c.Tone.Duration <= 0 || c.Tone.SampleRate <= 0 {
			return fmt.Errorf("tone.duration and tone.sample_rate must be positive")
		}
	}

	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
		}
		if c.Recording.OutputDir == "" {
			return fmt.Errorf("recording.output_dir must be set when recording is enabled")
		}
	}

	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval < 0 {
			return fmt.Errorf("transport.udp_send_interval must not be negative")
		}
	}
	if c.Transport.WebSocketEnabled && !strings.Contains(c.Transport.WebSocketAddress, ":") {
		return fmt.Errorf("transport.websocket_address '%s' appears invalid (missing port?)", c.Transport.WebSocketAddress)
	}

	return nil
}

// MinFramesPerBuffer returns the shortest detection window, in frames at
// sampleRate, that holds two periods of the lowest frequency the trainer has
// to recognise: the detector's lower band edge or the lowest table note,
// whichever is lower.
func (c *Config) MinFramesPerBuffer(sampleRate float64) int {
	return int(math.Ceil(2 * sampleRate / c.lowestFrequencyHz()))
}

func (c *Config) lowestFrequencyHz() float64 {
	return math.Min(c.Detection.MinFrequencyHz, notes.DefaultTable().At(0).MinFrequencyHz)
}

// DetectorConfig converts the detection section.
func (c *Config) DetectorConfig() (pitch.Config, error) {
	w, err := pitch.ParseWindowFunc(c.Detection.Window)
	if err != nil {
		return pitch.Config{}, fmt.Errorf("detection.window: %w", err)
	}
	cfg := pitch.Config{
		SilenceThreshold: c.Detection.SilenceThreshold,
		MinConfidence:    c.Detection.MinConfidence,
		MinFrequencyHz:   c.Detection.MinFrequencyHz,
		MaxFrequencyHz:   c.Detection.MaxFrequencyHz,
		NoiseFloor:       c.Detection.NoiseFloor,
		Window:           w,
	}
	if _, err := pitch.NewDetector(cfg); err != nil {
		return pitch.Config{}, fmt.Errorf("detection: %w", err)
	}
	return cfg, nil
}

// SessionConfig converts the session section.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		FailureThreshold: c.Session.FailureThreshold,
		DebounceWindow:   c.Session.DebounceWindow,
		CooldownUnits:    c.Session.CooldownUnits,
		CooldownUnit:     c.Session.CooldownUnit,
		AttemptCapacity:  c.Session.AttemptCapacity,
		StartNoteID:      c.Session.StartNote,
	}
}

// CoachingThresholds converts the coaching section.
func (c *Config) CoachingThresholds() coaching.Thresholds {
	th := coaching.DefaultThresholds()
	th.OffsetToleranceHz = c.Coaching.OffsetToleranceHz
	th.MinConsistency = c.Coaching.MinConsistency
	th.MaxDriftHz = c.Coaching.MaxDriftHz
	th.MinPace = c.Coaching.MinPace
	return th
}

// Level returns the effective log level. Debug mode always wins.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// applyEnvOverrides applies PITCHCOACH_* environment variables.
func (c *Config) applyEnvOverrides() {
	envBool("PITCHCOACH_DEBUG", &c.Debug)
	envString("PITCHCOACH_LOG_LEVEL", &c.LogLevel)

	if val, ok := os.LookupEnv("PITCHCOACH_INPUT_DEVICE"); ok {
		if id, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = id
			log.Debugf("Config: Overriding audio.input_device from env: %d", id)
		}
	}
	if val, ok := os.LookupEnv("PITCHCOACH_SAMPLE_RATE"); ok {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = rate
			log.Debugf("Config: Overriding audio.sample_rate from env: %.0f", rate)
		}
	}
	envString("PITCHCOACH_START_NOTE", &c.Session.StartNote)
	envBool("PITCHCOACH_RECORDING_ENABLED", &c.Recording.Enabled)
	envString("PITCHCOACH_RECORDING_DIR", &c.Recording.OutputDir)

	envBool("PITCHCOACH_WS_ENABLED", &c.Transport.WebSocketEnabled)
	envString("PITCHCOACH_WS_ADDRESS", &c.Transport.WebSocketAddress)
	envBool("PITCHCOACH_UDP_ENABLED", &c.Transport.UDPEnabled)
	envString("PITCHCOACH_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	if val, ok := os.LookupEnv("PITCHCOACH_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			log.Debugf("Config: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

func envBool(key string, dst *bool) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
			log.Debugf("Config: Overriding %s from env: %v", key, b)
		}
	}
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		log.Debugf("Config: Overriding %s from env: %s", key, val)
	}
}
