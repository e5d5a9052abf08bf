// SPDX-License-Identifier: MIT
//
// Package build exposes the version information embedded at link time:
//
//	go build -ldflags "-X pitchcoach/pkg/build.buildName=pitchcoach \
//	  -X pitchcoach/pkg/build.buildVersion=v0.3.0 ..."
//
// Binaries built without linker flags fall back to the module build info the
// Go toolchain records.
package build

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// ErrNoLinkerFlags is returned by Initialize when no build flag was set.
var ErrNoLinkerFlags = errors.New("build flags not set at link time")

// Info describes the running binary.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Set by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var (
	readBuildInfo = debug.ReadBuildInfo
	buildFlags    = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{Name: "pitchcoach", Time: "unknown", Commit: "unknown", Version: "unknown"}
}

// Initialize loads the build information. With every linker flag set they
// are used as is. With none set it falls back to the toolchain's build info
// and returns ErrNoLinkerFlags. A partial set is an error.
func Initialize() error {
	flags := map[string]string{
		"BuildName":    buildName,
		"BuildTime":    buildTime,
		"BuildCommit":  buildCommit,
		"BuildVersion": buildVersion,
	}
	var missing []string
	for _, k := range []string{"BuildName", "BuildTime", "BuildCommit", "BuildVersion"} {
		if flags[k] == "" {
			missing = append(missing, k)
		}
	}

	switch len(missing) {
	case 0:
		buildFlags = &Info{Name: buildName, Time: buildTime, Commit: buildCommit, Version: buildVersion}
		return nil
	case len(flags):
		buildFlags = fromModule()
		return ErrNoLinkerFlags
	default:
		return fmt.Errorf("incomplete build flags: %s required", strings.Join(missing, ", "))
	}
}

func fromModule() *Info {
	info := defaultInfo()
	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if v := bi.Main.Version; v != "" {
		info.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.time":
			info.Time = s.Value
		}
	}
	return info
}

// GetBuildFlags returns the build information. Call Initialize first.
func GetBuildFlags() *Info {
	return buildFlags
}
