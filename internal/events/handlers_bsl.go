package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sync-player/server/internal/bsl"
	"github.com/sync-player/server/internal/domain"
	"github.com/sync-player/server/internal/rooms"
)

func (d *Dispatcher) handleBSLAdminRegister(sess *Session, raw []byte) {
	var p struct {
		Fingerprint string `json:"fingerprint"`
	}
	_ = json.Unmarshal(raw, &p)

	succeed := func() {
		sess.SetFingerprint(p.Fingerprint)
		if room := sess.Room(); room != nil {
			room.Do(func(r *rooms.Room) { r.MakeAdmin(sess.ConnID, p.Fingerprint) })
		}
		sess.Send(adminAuthResult{Type: "admin-auth-result", Success: true})
	}

	if !d.Config.AdminFingerprintLock {
		succeed()
		return
	}

	existing, registered := d.Store.AdminFingerprint()
	if !registered {
		if err := d.Store.SetAdminFingerprint(p.Fingerprint); err != nil {
			sess.Send(adminAuthResult{Type: "admin-auth-result", Success: false, Reason: "persistence error"})
			return
		}
		succeed()
		return
	}

	if existing != p.Fingerprint {
		sess.Send(adminAuthResult{Type: "admin-auth-result", Success: false, Reason: "fingerprint mismatch"})
		go func() {
			time.Sleep(1 * time.Second)
			sess.Conn.Close()
		}()
		return
	}

	succeed()
}

func (d *Dispatcher) handleBSLCheckRequest(sess *Session) {
	room := sess.Room()
	if room == nil {
		return
	}
	room.Do(func(r *rooms.Room) {
		pl := r.Playlist()
		filenames := make([]string, 0, len(pl.Videos))
		for _, v := range pl.Videos {
			filenames = append(filenames, v.Filename)
		}
		targets := r.MembersNotReported()
		for _, id := range targets {
			r.SendTo(id, bslCheckRequest{Type: "bsl-check-request", PlaylistVideos: filenames})
		}
		r.SendTo(sess.ConnID, bslCheckStarted{Type: "bsl-check-started", ClientCount: len(targets)})
	})
}

func (d *Dispatcher) handleBSLGetStatus(sess *Session) {
	room := sess.Room()
	if room == nil {
		return
	}
	room.Do(func(r *rooms.Room) {
		r.SendTo(sess.ConnID, bslStatusUpdate{Type: "bsl-status-update", Active: r.BSLActive()})
	})
}

func (d *Dispatcher) handleBSLFolderSelected(sess *Session, raw []byte) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		Files []bsl.File `json:"files"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("bsl-folder-selected", "bad payload"))
		return
	}

	fp := sess.Fingerprint()
	manual := d.Store.BSLMatches(fp)

	room.Do(func(r *rooms.Room) {
		pl := r.Playlist()
		matcher := r.BSLMatcher()
		matched := make(map[int]bool, len(pl.Videos))
		for idx, entry := range pl.Videos {
			e := bsl.Entry{Filename: entry.Filename, SizeOnDisk: d.fileSize(entry.Filename)}
			matched[idx] = false
			for _, f := range p.Files {
				if matcher.Match(f, e, manual) {
					matched[idx] = true
					break
				}
			}
		}
		r.RecordBSLReport(sess.ConnID, fp, matched)

		total := 0
		for _, ok := range matched {
			if ok {
				total++
			}
		}
		r.SendTo(sess.ConnID, bslMatchResult{
			Type:          "bsl-match-result",
			MatchedVideos: matched,
			TotalMatched:  total,
			TotalPlaylist: len(pl.Videos),
		})
		if adminID, ok := r.AdminConn(); ok {
			r.SendTo(adminID, bslStatusUpdate{Type: "bsl-status-update", Active: r.BSLActive()})
		}
	})
}

func (d *Dispatcher) fileSize(filename string) int64 {
	info, err := os.Stat(filepath.Join(d.Config.MediaPath, filename))
	if err != nil {
		return 0
	}
	return info.Size()
}

func (d *Dispatcher) handleBSLManualMatch(sess *Session, raw []byte) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		ClientConnectionID domain.ConnID `json:"clientConnectionId"`
		ClientFileName     string        `json:"clientFileName"`
		PlaylistIndex      int           `json:"playlistIndex"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("bsl-manual-match", "bad payload"))
		return
	}

	room.Do(func(r *rooms.Room) {
		pl := r.Playlist()
		if !boundedIndex(p.PlaylistIndex, len(pl.Videos)) {
			sess.Send(validationError("bsl-manual-match", "index out of range"))
			return
		}
		fp, ok := r.MemberFingerprint(p.ClientConnectionID)
		if !ok {
			sess.Send(validationError("bsl-manual-match", "unknown client"))
			return
		}
		target := pl.Videos[p.PlaylistIndex].Filename
		d.Store.SetBSLMatch(fp, strings.ToLower(p.ClientFileName), strings.ToLower(target))

		matched := map[int]bool{p.PlaylistIndex: true}
		r.RecordBSLReport(p.ClientConnectionID, fp, matched)
		r.SendTo(p.ClientConnectionID, bslMatchResult{
			Type:          "bsl-match-result",
			MatchedVideos: matched,
			TotalMatched:  1,
			TotalPlaylist: len(pl.Videos),
		})
	})
}

func (d *Dispatcher) handleBSLSetDrift(sess *Session, raw []byte) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		ClientFingerprint string  `json:"clientFingerprint"`
		PlaylistIndex     int     `json:"playlistIndex"`
		DriftSeconds      float64 `json:"driftSeconds"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("bsl-set-drift", "bad payload"))
		return
	}

	room.Do(func(r *rooms.Room) {
		pl := r.Playlist()
		if !boundedIndex(p.PlaylistIndex, len(pl.Videos)) {
			sess.Send(validationError("bsl-set-drift", "index out of range"))
			return
		}
		r.SetDrift(p.ClientFingerprint, p.PlaylistIndex, clampDrift(p.DriftSeconds))
		r.SendToFingerprint(p.ClientFingerprint, bslDriftUpdate{
			Type:        "bsl-drift-update",
			DriftValues: r.DriftFor(p.ClientFingerprint),
		})
	})
}
