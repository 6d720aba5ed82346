package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/domain"
	"github.com/sync-player/server/internal/probe"
	"github.com/sync-player/server/internal/rooms"
)

type playlistEntryPayload struct {
	Filename   string `json:"filename"`
	IsExternal bool   `json:"isExternal"`
}

func (d *Dispatcher) handleSetPlaylist(ctx context.Context, sess *Session, raw []byte) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		Playlist       []playlistEntryPayload `json:"playlist"`
		MainVideoIndex int                    `json:"mainVideoIndex"`
		StartTime      float64                `json:"startTime"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("set-playlist", "bad payload"))
		return
	}

	entries := make([]domain.Entry, 0, len(p.Playlist))
	for _, item := range p.Playlist {
		if !validFilename(item.Filename) {
			sess.Send(validationError("set-playlist", "invalid filename: "+item.Filename))
			return
		}
		entry := domain.Entry{
			Filename:              item.Filename,
			IsExternal:            item.IsExternal,
			SelectedSubtitleTrack: -1,
		}
		if !item.IsExternal {
			tracks, err := d.Prober.Probe(ctx, d.Config.MediaPath, item.Filename)
			if err != nil {
				log.Warn().Err(err).Str("module", "events").Str("file", item.Filename).Msg("probe failed, continuing with empty tracks")
			} else {
				entry.AudioTracks = mapTracks(tracks.Audio)
				entry.SubtitleTracks = mapTracks(tracks.Subtitles)
				entry.UsesHEVC = tracks.UsesHEVC
			}
		}
		entries = append(entries, entry)
	}

	pl := domain.NewPlaylist()
	pl.Videos = entries
	pl.MainVideoIndex = p.MainVideoIndex
	pl.MainVideoStartTime = p.StartTime
	if len(entries) > 0 {
		pl.CurrentIndex = 0
	}

	autoplay := d.Config.VideoAutoplay
	room.Do(func(r *rooms.Room) {
		r.SetPlaylist(pl)
		r.MutatePlayback(func(pb *domain.Playback, now time.Time) {
			pb.Reset(now)
			pb.SetPlaying(now, autoplay)
		})
		r.Broadcast(playlistUpdate{Type: "playlist-update", Playlist: r.Playlist()})
		r.Broadcast(newSyncSnapshot(r.Playback()))
	})

	if !autoplay {
		go func() {
			time.Sleep(500 * time.Millisecond)
			room.Do(func(r *rooms.Room) {
				snap := r.Playback()
				snap.IsPlaying = false
				r.Broadcast(newSyncSnapshot(snap))
			})
		}()
	}
}

func mapTracks(streams []probe.Stream) []domain.Track {
	out := make([]domain.Track, 0, len(streams))
	for _, s := range streams {
		out = append(out, domain.Track{
			Index:    s.Index,
			Codec:    s.CodecName,
			Language: s.Tags.Language,
			Title:    s.Tags.Title,
			Default:  s.Disposition.Default != 0,
		})
	}
	return out
}

func (d *Dispatcher) handleControl(sess *Session, raw []byte) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		Action string  `json:"action"`
		State  bool    `json:"state"`
		Direction string `json:"direction"`
		Seconds float64 `json:"seconds"`
		Time    float64 `json:"time"`
		TrackType  string `json:"trackType"`
		TrackIndex int    `json:"trackIndex"`

		// raw sync push fields (no "action")
		IsPlaying   bool    `json:"isPlaying"`
		CurrentTime float64 `json:"currentTime"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("control", "bad payload"))
		return
	}

	isAdmin := roomIsAdmin(room, sess.ConnID)

	if p.Action == "" {
		if d.Config.ClientSyncDisabled {
			return
		}
		if d.Config.ClientControlsDisabled && !isAdmin {
			sess.Send(controlRejected{Type: "control-rejected", Reason: "client controls disabled"})
			return
		}
		if !finiteNonNegative(p.CurrentTime) {
			sess.Send(validationError("control", "currentTime must be finite and >= 0"))
			return
		}
		room.Do(func(r *rooms.Room) {
			r.MutatePlayback(func(pb *domain.Playback, now time.Time) {
				pb.Seek(now, p.CurrentTime)
				pb.IsPlaying = p.IsPlaying
			})
			r.Broadcast(newSyncSnapshot(r.Playback()))
		})
		return
	}

	if !isAdmin {
		sess.Send(adminError("control", "admin required"))
		return
	}

	switch p.Action {
	case "playpause":
		room.Do(func(r *rooms.Room) {
			r.MutatePlayback(func(pb *domain.Playback, now time.Time) { pb.SetPlaying(now, p.State) })
			r.Broadcast(newSyncSnapshot(r.Playback()))
		})
	case "skip":
		delta := p.Seconds
		if p.Direction == "backward" {
			delta = -delta
		}
		room.Do(func(r *rooms.Room) {
			r.MutatePlayback(func(pb *domain.Playback, now time.Time) { pb.Skip(now, delta) })
			r.Broadcast(newSyncSnapshot(r.Playback()))
		})
	case "seek":
		if !finiteNonNegative(p.Time) {
			sess.Send(validationError("control", "time must be finite and >= 0"))
			return
		}
		room.Do(func(r *rooms.Room) {
			r.MutatePlayback(func(pb *domain.Playback, now time.Time) { pb.Seek(now, p.Time) })
			r.Broadcast(newSyncSnapshot(r.Playback()))
		})
	case "selectTrack":
		room.Do(func(r *rooms.Room) {
			r.MutatePlayback(func(pb *domain.Playback, now time.Time) {
				if p.TrackType == "audio" {
					pb.AudioTrack = p.TrackIndex
				} else {
					pb.SubtitleTrack = p.TrackIndex
				}
			})
			r.Broadcast(newSyncSnapshot(r.Playback()))
		})
	default:
		sess.Send(validationError("control", "unknown action"))
	}
}

func (d *Dispatcher) handlePlaylistJump(sess *Session, raw []byte, command string) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		Index int `json:"index"`
	}
	_ = json.Unmarshal(raw, &p)

	room.Do(func(r *rooms.Room) {
		pl := r.Playlist()
		var target int
		switch command {
		case "playlist-jump":
			if !boundedIndex(p.Index, len(pl.Videos)) {
				sess.Send(validationError(command, "index out of range"))
				return
			}
			target = p.Index
		default: // playlist-next, skip-to-next-video
			target = pl.CurrentIndex + 1
			if !boundedIndex(target, len(pl.Videos)) {
				sess.Send(validationError(command, "no next entry"))
				return
			}
		}

		r.MutatePlaylist(func(pl *domain.Playlist) { pl.CurrentIndex = target })
		entry, _ := r.Playlist().Current()
		r.MutatePlayback(func(pb *domain.Playback, now time.Time) {
			pb.Reset(now)
			pb.AudioTrack = entry.SelectedAudioTrack
			pb.SubtitleTrack = entry.SelectedSubtitleTrack
		})
		r.Broadcast(playlistPosition{Type: "playlist-update", CurrentIndex: target})
		r.Broadcast(newSyncSnapshot(r.Playback()))
	})
}

func (d *Dispatcher) handlePlaylistReorder(sess *Session, raw []byte) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		FromIndex int `json:"fromIndex"`
		ToIndex   int `json:"toIndex"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("playlist-reorder", "bad payload"))
		return
	}

	room.Do(func(r *rooms.Room) {
		pl := r.Playlist()
		if !boundedIndex(p.FromIndex, len(pl.Videos)) || !boundedIndex(p.ToIndex, len(pl.Videos)) {
			sess.Send(validationError("playlist-reorder", "index out of range"))
			return
		}
		r.MutatePlaylist(func(pl *domain.Playlist) {
			pl.Videos[p.FromIndex], pl.Videos[p.ToIndex] = pl.Videos[p.ToIndex], pl.Videos[p.FromIndex]
			if pl.MainVideoIndex == p.FromIndex {
				pl.MainVideoIndex = p.ToIndex
			} else if pl.MainVideoIndex == p.ToIndex {
				pl.MainVideoIndex = p.FromIndex
			}
			if pl.CurrentIndex == p.FromIndex {
				pl.CurrentIndex = p.ToIndex
			} else if pl.CurrentIndex == p.ToIndex {
				pl.CurrentIndex = p.FromIndex
			}
		})
		r.Broadcast(playlistUpdate{Type: "playlist-update", Playlist: r.Playlist()})
	})
}

func (d *Dispatcher) handleTrackChange(sess *Session, raw []byte) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		VideoIndex int    `json:"videoIndex"`
		Type       string `json:"type"`
		TrackIndex int    `json:"trackIndex"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("track-change", "bad payload"))
		return
	}

	room.Do(func(r *rooms.Room) {
		pl := r.Playlist()
		if !boundedIndex(p.VideoIndex, len(pl.Videos)) {
			sess.Send(validationError("track-change", "index out of range"))
			return
		}
		r.MutatePlaylist(func(pl *domain.Playlist) {
			if p.Type == "audio" {
				pl.Videos[p.VideoIndex].SelectedAudioTrack = p.TrackIndex
			} else {
				pl.Videos[p.VideoIndex].SelectedSubtitleTrack = p.TrackIndex
			}
		})
		if p.VideoIndex == r.Playlist().CurrentIndex {
			r.MutatePlayback(func(pb *domain.Playback, now time.Time) {
				if p.Type == "audio" {
					pb.AudioTrack = p.TrackIndex
				} else {
					pb.SubtitleTrack = p.TrackIndex
				}
			})
			r.Broadcast(newSyncSnapshot(r.Playback()))
		}
		r.Broadcast(trackChangeEcho{Type: "track-change", VideoIndex: p.VideoIndex, TrackType: p.Type, TrackIndex: p.TrackIndex})
	})
}
