// Package buildinfo exposes the version, commit and build time stamped into
// the binaries at link time:
//
//	go build -ldflags "-X github.com/nomis52/ciwatch/buildinfo.version=v1.2.0 \
//	    -X github.com/nomis52/ciwatch/buildinfo.gitCommit=$(git rev-parse HEAD)"
package buildinfo

import "fmt"

// Properties describe the running binary.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the properties of the running binary.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}

// String formats the properties on one line.
func (p Properties) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", p.Version, p.GitCommit, p.BuildTime)
}
