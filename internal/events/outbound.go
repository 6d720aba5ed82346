package events

import (
	"encoding/json"

	"github.com/sync-player/server/internal/domain"
)

func marshal(v any) ([]byte, error) { return json.Marshal(v) }

// syncSnapshot is the full playback-state broadcast (spec §4.4).
type syncSnapshot struct {
	Type          string  `json:"type"`
	IsPlaying     bool    `json:"isPlaying"`
	CurrentTime   float64 `json:"currentTime"`
	AudioTrack    int     `json:"audioTrack"`
	SubtitleTrack int     `json:"subtitleTrack"`
}

// newSyncSnapshot builds the broadcast payload from a playback state
// whose CurrentTime the caller has already projected to "now".
func newSyncSnapshot(p domain.Playback) syncSnapshot {
	return syncSnapshot{
		Type:          "sync",
		IsPlaying:     p.IsPlaying,
		CurrentTime:   p.CurrentTime,
		AudioTrack:    p.AudioTrack,
		SubtitleTrack: p.SubtitleTrack,
	}
}

type errorEvent struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

func adminError(command, reason string) errorEvent {
	return errorEvent{Type: "admin-error", Command: command, Error: reason}
}

func validationError(command, reason string) errorEvent {
	return errorEvent{Type: "validation-error", Command: command, Error: reason}
}

type rateLimitError struct {
	Type       string  `json:"type"`
	RetryAfter float64 `json:"retryAfter"`
}

type adminAuthResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type roomCreated struct {
	Type     string        `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode"`
	RoomName domain.RoomName `json:"roomName"`
}

type roomJoined struct {
	Type    string `json:"type"`
	IsAdmin bool   `json:"isAdmin"`
	Viewers int    `json:"viewers"`
}

type playlistUpdate struct {
	Type     string          `json:"type"`
	Playlist domain.Playlist `json:"playlist"`
}

type playlistPosition struct {
	Type         string `json:"type"`
	CurrentIndex int    `json:"currentIndex"`
}

type trackChangeEcho struct {
	Type       string `json:"type"`
	VideoIndex int    `json:"videoIndex"`
	TrackType  string `json:"trackType"`
	TrackIndex int    `json:"trackIndex"`
}

type clientCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type clientList struct {
	Type    string       `json:"type"`
	Members []domain.DTO `json:"members"`
}

type bslCheckRequest struct {
	Type           string   `json:"type"`
	PlaylistVideos []string `json:"playlistVideos"`
}

type bslCheckStarted struct {
	Type        string `json:"type"`
	ClientCount int    `json:"clientCount"`
}

type bslMatchResult struct {
	Type          string       `json:"type"`
	MatchedVideos map[int]bool `json:"matchedVideos"`
	TotalMatched  int          `json:"totalMatched"`
	TotalPlaylist int          `json:"totalPlaylist"`
}

type bslStatusUpdate struct {
	Type   string       `json:"type"`
	Active map[int]bool `json:"active"`
}

type bslDriftUpdate struct {
	Type        string          `json:"type"`
	DriftValues map[int]float64 `json:"driftValues"`
}

type chatMessageEvent struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type nameUpdated struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
}

type roomDeleted struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode"`
}

type controlRejected struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
