// SPDX-License-Identifier: MIT
/*
Package config loads the trainer configuration: built-in defaults, then an
optional YAML file, then PITCHCOACH_* environment overrides, then CLI flags
applied by the caller. The result is validated once and converted into the
settings each package expects.
*/
package config

// Boundaries and defaults for audio capture.
const (
	DefaultChannels        = 1           // Mono audio
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultFramesPerBuffer = 2048        // ~46 ms at 44.1 kHz, enough for two periods of 50 Hz
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultGateThreshold   = 0.001       // ~0.1% of full scale

	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MinBufferFrames = 256    // Absolute floor; Validate also requires two periods of the lowest note
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
)
