package events

import (
	"math"

	"github.com/sync-player/server/internal/probe"
)

// validFilename delegates to the same pattern the probe package checks
// before any exec.Command call, so a filename accepted here is
// guaranteed safe to reach ffprobe/ffmpeg later (spec §4.5 step 3 /
// §8 testable property 7).
func validFilename(name string) bool { return probe.ValidFilename(name) }

func clampDrift(seconds float64) float64 {
	if seconds > 60 {
		return 60
	}
	if seconds < -60 {
		return -60
	}
	return seconds
}

func boundedIndex(idx, length int) bool { return idx >= 0 && idx < length }

func finiteNonNegative(seconds float64) bool {
	return !math.IsNaN(seconds) && !math.IsInf(seconds, 0) && seconds >= 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// adminGatedCommands is the exact whitelist from spec §4.5 step 2.
var adminGatedCommands = map[string]bool{
	"set-playlist":             true,
	"playlist-reorder":         true,
	"playlist-jump":            true,
	"track-change":             true,
	"skip-to-next-video":       true,
	"bsl-check-request":        true,
	"bsl-get-status":           true,
	"bsl-manual-match":         true,
	"bsl-set-drift":            true,
	"set-client-name":          true,
	"get-client-list":          true,
	"set-client-display-name": true,
	"delete-room":              true,
}
