// SPDX-License-Identifier: MIT
package build

import (
	"errors"
	"os"
	"runtime/debug"
	"testing"
)

func TestMain(m *testing.M) {
	origName, origTime, origCommit, origVersion := buildName, buildTime, buildCommit, buildVersion
	origFlags := *buildFlags
	origRead := readBuildInfo

	exitCode := m.Run()

	buildName, buildTime, buildCommit, buildVersion = origName, origTime, origCommit, origVersion
	*buildFlags = origFlags
	readBuildInfo = origRead

	os.Exit(exitCode)
}

func setFlags(name, time, commit, version string) {
	buildName, buildTime, buildCommit, buildVersion = name, time, commit, version
	buildFlags = defaultInfo()
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name                        string
		bName, bTime, bCommit, bVer string
		wantErrMsg                  string
	}{
		{"Missing BuildName", "", "2026-03-01", "abcdef123", "v1.0.0", "incomplete build flags: BuildName required"},
		{"Missing time and commit", "pitchcoach", "", "", "v1.0.0", "incomplete build flags: BuildTime, BuildCommit required"},
		{"Missing BuildVersion", "pitchcoach", "2026-03-01", "abcdef123", "", "incomplete build flags: BuildVersion required"},
		{"Success Case", "pitchcoach", "2026-03-01", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFlags(tt.bName, tt.bTime, tt.bCommit, tt.bVer)

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			want := Info{Name: tt.bName, Time: tt.bTime, Commit: tt.bCommit, Version: tt.bVer}
			if got := *GetBuildFlags(); got != want {
				t.Errorf("GetBuildFlags() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestInitialize_ModuleFallback(t *testing.T) {
	setFlags("", "", "", "")
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Path: "pitchcoach", Version: "v0.3.0"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "feedbeef"},
				{Key: "vcs.time", Value: "2026-03-01T12:00:00Z"},
			},
		}, true
	}

	if err := Initialize(); !errors.Is(err, ErrNoLinkerFlags) {
		t.Fatalf("Initialize() = %v, want ErrNoLinkerFlags", err)
	}
	want := Info{Name: "pitchcoach", Time: "2026-03-01T12:00:00Z", Commit: "feedbeef", Version: "v0.3.0"}
	if got := *GetBuildFlags(); got != want {
		t.Errorf("GetBuildFlags() = %+v, want %+v", got, want)
	}
}

func TestInitialize_NoModuleInfo(t *testing.T) {
	setFlags("", "", "", "")
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }

	if err := Initialize(); !errors.Is(err, ErrNoLinkerFlags) {
		t.Fatalf("Initialize() = %v", err)
	}
	if got := *GetBuildFlags(); got != *defaultInfo() {
		t.Errorf("GetBuildFlags() = %+v, want defaults", got)
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Name: "pitchcoach", Time: "2026-03-01", Commit: "abc", Version: "v1"}
	if got, want := info.String(), "pitchcoach v1 (commit abc, built 2026-03-01)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
