// Package bsl implements the BSL-S² (Both-Side Local Sync Stream)
// matcher: given a playlist and the file descriptors a client reports
// from its own local folder, decide which playlist entries that client
// actually has on disk.
//
// The scoring table is the same kind of static lookup the retrieval pack
// uses for MIME/extension bookkeeping (YannKr's watermark.MimeToExt), so
// this package follows that shape rather than reaching for a dedicated
// fuzzy-matching library — nothing in the pack supplies one and a
// four-criteria weighted score is a handful of comparisons, not a parser.
package bsl

import (
	"path/filepath"
	"strings"
)

// File is one descriptor a client reports about a file in its local folder.
type File struct {
	Name string
	Size int64 // 0 if unknown
	Type string // reported MIME type, "" if unknown
}

// Entry is the subset of a playlist entry the matcher needs.
type Entry struct {
	Filename string
	SizeOnDisk int64 // 0 if unknown
}

// Mode selects how per-member matches aggregate into room-wide "active" status.
type Mode string

const (
	ModeAny Mode = "any"
	ModeAll Mode = "all"
)

// extToMIME maps a lowercase extension to its canonical MIME type (the
// family is derived from it by familyOf), mirroring the shape of YannKr's
// watermark.MimeToExt table.
var extToMIME = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".mp3":  "audio/mpeg",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".srt":  "text/plain",
	".vtt":  "text/vtt",
	".ass":  "text/x-ssa",
}

const sizeToleranceBytes = int64(1.5 * 1024 * 1024)

// Matcher holds only the advanced-matching configuration; manual matches
// are passed to Match on each call, so it is otherwise stateless.
type Matcher struct {
	AdvancedEnabled bool
	Threshold       int
}

// New returns a Matcher configured per spec §4.1 options
// bsl_advanced_match / bsl_advanced_match_threshold.
func New(advancedEnabled bool, threshold int) Matcher {
	if threshold <= 0 {
		threshold = 1
	}
	return Matcher{AdvancedEnabled: advancedEnabled, Threshold: threshold}
}

// Match decides whether clientFile corresponds to entry, given any
// persisted manual match for this fingerprint (localFileLower ->
// playlistFileLower). manualMatches may be nil.
func (m Matcher) Match(clientFile File, entry Entry, manualMatches map[string]string) bool {
	localLower := strings.ToLower(clientFile.Name)
	entryLower := strings.ToLower(entry.Filename)

	if manualMatches != nil {
		if target, ok := manualMatches[localLower]; ok {
			return target == entryLower
		}
	}

	if m.AdvancedEnabled {
		if m.score(clientFile, entry) >= m.Threshold {
			return true
		}
		return false
	}

	return localLower == entryLower
}

// score computes the four-criteria weighted score from spec §4.7.
func (m Matcher) score(clientFile File, entry Entry) int {
	score := 0

	localLower := strings.ToLower(clientFile.Name)
	entryLower := strings.ToLower(entry.Filename)
	if localLower == entryLower {
		score++
	}

	localExt := strings.ToLower(filepath.Ext(clientFile.Name))
	entryExt := strings.ToLower(filepath.Ext(entry.Filename))
	if localExt != "" && localExt == entryExt {
		score++
	}

	if clientFile.Size > 0 && entry.SizeOnDisk > 0 {
		diff := clientFile.Size - entry.SizeOnDisk
		if diff < 0 {
			diff = -diff
		}
		if diff <= sizeToleranceBytes {
			score++
		}
	}

	if clientFile.Type != "" {
		canonical, known := extToMIME[entryExt]
		if known {
			reportedFamily := familyOf(clientFile.Type)
			canonicalFamily := familyOf(canonical)
			if strings.EqualFold(clientFile.Type, canonical) || (reportedFamily != "" && reportedFamily == canonicalFamily) {
				score++
			}
		}
	}

	return score
}

func familyOf(mime string) string {
	idx := strings.Index(mime, "/")
	if idx < 0 {
		return ""
	}
	return mime[:idx]
}

// Aggregate reports whether a playlist index is BSL-active under mode,
// given perMember[fingerprint] = matched bool and the set of fingerprints
// that reported a folder at all (reporters).
func Aggregate(mode Mode, perMember map[string]bool, reporters map[string]bool) bool {
	if len(reporters) == 0 {
		return false
	}
	switch mode {
	case ModeAll:
		for fp := range reporters {
			if !perMember[fp] {
				return false
			}
		}
		return true
	default: // ModeAny
		for fp := range reporters {
			if perMember[fp] {
				return true
			}
		}
		return false
	}
}
