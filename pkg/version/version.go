// Package version provides build metadata for the fwrecon binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are injected at build time using -ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Struct is the structured form printed by "fwrecon version -o json".
type Struct struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("fwrecon %s (commit: %s, date: %s)", Version, Commit, BuildDate)
}

// Get returns version information as a Struct. A "none" commit is filled
// from the module's VCS stamp when the binary carries one.
func Get() Struct {
	commit := Commit
	if commit == "none" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					commit = s.Value
				}
			}
		}
	}
	return Struct{
		Version:   Version,
		Commit:    commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
