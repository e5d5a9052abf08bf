// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
)

func TestFirstChannel(t *testing.T) {
	tests := []struct {
		name     string
		in       []float32
		channels int
		dst      int
		want     []float32
	}{
		{"mono", []float32{1, 2, 3}, 1, 4, []float32{1, 2, 3}},
		{"stereo", []float32{1, -1, 2, -2, 3, -3}, 2, 4, []float32{1, 2, 3}},
		{"quad", []float32{1, 0, 0, 0, 2, 0, 0, 0}, 4, 4, []float32{1, 2}},
		{"truncated to dst", []float32{1, -1, 2, -2, 3, -3}, 2, 2, []float32{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := firstChannel(make([]float32, tt.dst), tt.in, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStreamProcess(t *testing.T) {
	src := NewPortAudioSource(SourceConfig{FramesPerBuffer: 4, Channels: 2}, NewGate(0.1))

	var delivered [][]float32
	st := &stream{
		src:        src,
		channels:   2,
		mono:       make([]float32, 4),
		sampleRate: 48000,
		onBuffer: func(samples []float32, sampleRate float64) {
			if sampleRate != 48000 {
				t.Errorf("sampleRate = %v", sampleRate)
			}
			delivered = append(delivered, append([]float32(nil), samples...))
		},
	}

	// Below the gate: level updates, nothing delivered.
	st.process([]float32{0.05, 0.9, -0.02, 0.9, 0, 0, 0, 0})
	if len(delivered) != 0 {
		t.Fatalf("gated buffer delivered: %v", delivered)
	}
	if lvl := src.Level(); lvl != 0.05 {
		t.Errorf("Level() = %v, want 0.05 (first channel only)", lvl)
	}

	st.process([]float32{0.5, 0, -0.25, 0, 0.1, 0, 0, 0})
	if len(delivered) != 1 {
		t.Fatalf("delivered %d buffers, want 1", len(delivered))
	}
	if got := delivered[0]; got[0] != 0.5 || got[1] != -0.25 || len(got) != 4 {
		t.Errorf("delivered %v", got)
	}
	if st.last.Load() == 0 {
		t.Error("callback time not recorded")
	}
}

func TestNewSourceDefaults(t *testing.T) {
	src := NewPortAudioSource(SourceConfig{}, nil)
	if src.Gate().Enabled() {
		t.Error("nil gate should become a disabled gate")
	}
	if src.cfg.Channels != 1 {
		t.Errorf("Channels = %d, want 1", src.cfg.Channels)
	}
}
