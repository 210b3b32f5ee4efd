package api

import "time"

// Version is the service release reported by /version.
const Version = "0.1.0"

// BuildDate is injected at link time (-ldflags "-X ebpro/pkg/api.BuildDate=2026-01-31").
// When empty, the process start date is reported.
var BuildDate = ""

var startedAt = time.Now().UTC()

// ResolvedBuildDate returns BuildDate or, if unset, the process start date (UTC).
func ResolvedBuildDate() string {
	if BuildDate != "" {
		return BuildDate
	}
	return startedAt.Format("2006-01-02")
}
