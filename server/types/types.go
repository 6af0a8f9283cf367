// Package types holds the values shared by the server and its handlers.
package types

import (
	"time"

	"github.com/nomis52/ciwatch/buildinfo"
)

// ServerProperties describe the running server and what it watches.
type ServerProperties struct {
	Build      buildinfo.Properties `json:"build"`
	StartedAt  time.Time            `json:"started_at"`
	Hostname   string               `json:"hostname"`
	ConfigPath string               `json:"config_path"`
	// Repository is owner/name, empty when the server only evaluates.
	Repository string `json:"repository,omitempty"`
}

// Uptime is the time elapsed between StartedAt and now.
func (p ServerProperties) Uptime(now time.Time) time.Duration {
	return now.Sub(p.StartedAt)
}
