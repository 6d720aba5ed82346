package events

import (
	"context"
	"encoding/json"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/config"
	"github.com/sync-player/server/internal/domain"
	"github.com/sync-player/server/internal/probe"
	"github.com/sync-player/server/internal/ratelimit"
	"github.com/sync-player/server/internal/rooms"
	"github.com/sync-player/server/internal/store"
)

// Dispatcher is the event router: every inbound message from every
// connection on every room passes through Handle, which runs the
// pipeline described in spec §4.5 before reaching a command handler.
type Dispatcher struct {
	Registry *rooms.Registry
	Store    *store.Store
	Config   *config.Config
	Prober   probe.Prober
	Limiter  *ratelimit.Limiter
}

type envelope struct {
	Type string `json:"type"`
}

// Handle runs the full router pipeline for one inbound message.
func (d *Dispatcher) Handle(ctx context.Context, sess *Session, raw []byte) {
	if !d.Limiter.Allow(sess.RemoteAddr) {
		sess.Send(rateLimitError{Type: "rate-limit-error", RetryAfter: d.Limiter.RetryAfter(sess.RemoteAddr).Seconds()})
		return
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Err(err).Str("module", "events").Msg("malformed envelope")
		return
	}

	if adminGatedCommands[env.Type] {
		room := sess.Room()
		if room == nil || !roomIsAdmin(room, sess.ConnID) {
			sess.Send(adminError(env.Type, "admin required"))
			return
		}
	}

	switch env.Type {
	case "create-room":
		d.handleCreateRoom(sess, raw)
	case "join-room":
		d.handleJoinRoom(sess, raw)
	case "leave-room":
		d.handleLeaveRoom(sess)
	case "client-register":
		d.handleClientRegister(sess, raw)
	case "get-config":
		d.handleGetConfig(sess)
	case "get-rooms":
		d.handleGetRooms(sess)
	case "request-initial-state":
		d.handleRequestInitialState(sess)
	case "request-sync":
		d.handleRequestSync(sess)
	case "set-playlist":
		d.handleSetPlaylist(ctx, sess, raw)
	case "control":
		d.handleControl(sess, raw)
	case "playlist-jump", "playlist-next", "skip-to-next-video":
		d.handlePlaylistJump(sess, raw, env.Type)
	case "playlist-reorder":
		d.handlePlaylistReorder(sess, raw)
	case "track-change":
		d.handleTrackChange(sess, raw)
	case "bsl-admin-register":
		d.handleBSLAdminRegister(sess, raw)
	case "bsl-check-request":
		d.handleBSLCheckRequest(sess)
	case "bsl-get-status":
		d.handleBSLGetStatus(sess)
	case "bsl-folder-selected":
		d.handleBSLFolderSelected(sess, raw)
	case "bsl-manual-match":
		d.handleBSLManualMatch(sess, raw)
	case "bsl-set-drift":
		d.handleBSLSetDrift(sess, raw)
	case "chat-message":
		d.handleChatMessage(sess, raw)
	case "set-client-name", "set-client-display-name":
		d.handleSetClientName(sess, raw)
	case "get-client-list":
		d.handleGetClientList(sess)
	case "delete-room":
		d.handleDeleteRoom(sess)
	default:
		log.Warn().Str("module", "events").Str("type", env.Type).Msg("unrecognized command")
	}
}

// Disconnect handles connection loss / explicit leave-room the same way.
func (d *Dispatcher) Disconnect(sess *Session) {
	room := sess.Room()
	if room == nil {
		return
	}
	room.Do(func(r *rooms.Room) {
		r.RemoveMember(sess.ConnID)
		r.Broadcast(clientCount{Type: "client-count", Count: r.ViewerCount()})
	})
}

func roomIsAdmin(r *rooms.Room, id domain.ConnID) bool {
	var isAdmin bool
	r.Do(func(room *rooms.Room) { isAdmin = room.IsAdmin(id) })
	return isAdmin
}

func (d *Dispatcher) handleCreateRoom(sess *Session, raw []byte) {
	var p struct {
		Name       string `json:"name"`
		IsPrivate  bool   `json:"isPrivate"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("create-room", "bad payload"))
		return
	}
	name := domain.RoomName(truncate(p.Name, 64))

	room, err := d.Registry.CreateRoom(name, p.IsPrivate, p.Fingerprint)
	if err != nil {
		sess.Send(validationError("create-room", "could not allocate room"))
		return
	}
	d.Store.SetRoomAdminFingerprint(string(room.Code()), p.Fingerprint, time.Now().Unix())

	room.Do(func(r *rooms.Room) {
		r.AddMember(sess.ConnID, p.Fingerprint, "", sess.Conn)
		r.MakeAdmin(sess.ConnID, p.Fingerprint)
	})
	sess.SetRoom(room)
	sess.SetFingerprint(p.Fingerprint)

	sess.Send(roomCreated{Type: "room-created", RoomCode: room.Code(), RoomName: room.Name()})
}

func (d *Dispatcher) handleJoinRoom(sess *Session, raw []byte) {
	var p struct {
		RoomCode    string `json:"roomCode"`
		Name        string `json:"name"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("join-room", "bad payload"))
		return
	}
	code := domain.RoomCode(strings.ToUpper(p.RoomCode))
	room, ok := d.Registry.GetRoom(code)
	if !ok {
		sess.Send(validationError("join-room", "room not found"))
		return
	}

	var isAdmin bool
	var viewers int
	var joinMode = d.Config.JoinMode
	room.Do(func(r *rooms.Room) {
		isAdmin = r.AddMember(sess.ConnID, p.Fingerprint, truncate(p.Name, 64), sess.Conn)
		viewers = r.ViewerCount()
		// The join ack reaches the joiner before the sync the join triggers.
		sess.Send(roomJoined{Type: "room-joined", IsAdmin: isAdmin, Viewers: viewers})
		if joinMode == config.JoinModeReset {
			r.MutatePlayback(func(pb *domain.Playback, now time.Time) { pb.Reset(now) })
			snap := r.Playback()
			snap.CurrentTime = snap.Projected(r.Now())
			r.Broadcast(newSyncSnapshot(snap))
		} else {
			snap := r.Playback()
			snap.CurrentTime = snap.Projected(r.Now())
			r.SendTo(sess.ConnID, newSyncSnapshot(snap))
		}
		r.Broadcast(clientCount{Type: "client-count", Count: r.ViewerCount()})
	})
	sess.SetRoom(room)
	sess.SetFingerprint(p.Fingerprint)
}

func (d *Dispatcher) handleLeaveRoom(sess *Session) {
	room := sess.Room()
	if room == nil {
		return
	}
	room.Do(func(r *rooms.Room) {
		r.RemoveMember(sess.ConnID)
		r.Broadcast(clientCount{Type: "client-count", Count: r.ViewerCount()})
	})
	sess.SetRoom(nil)
}

func (d *Dispatcher) handleClientRegister(sess *Session, raw []byte) {
	var p struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	sess.SetFingerprint(p.Fingerprint)
}

func (d *Dispatcher) handleGetConfig(sess *Session) {
	sess.Send(struct {
		Type                      string `json:"type"`
		VolumeStep                int    `json:"volumeStep"`
		SkipSeconds               int    `json:"skipSeconds"`
		JoinMode                  string `json:"joinMode"`
		ChatEnabled               bool   `json:"chatEnabled"`
		MaxVolume                 int    `json:"maxVolume"`
		SkipIntroSeconds          int    `json:"skipIntroSeconds"`
		ClientControlsDisabled    bool   `json:"clientControlsDisabled"`
		ClientSyncDisabled        bool   `json:"clientSyncDisabled"`
	}{
		Type:                   "config",
		VolumeStep:             d.Config.VolumeStep,
		SkipSeconds:            d.Config.SkipSeconds,
		JoinMode:               string(d.Config.JoinMode),
		ChatEnabled:            d.Config.ChatEnabled,
		MaxVolume:              d.Config.MaxVolume,
		SkipIntroSeconds:       d.Config.SkipIntroSeconds,
		ClientControlsDisabled: d.Config.ClientControlsDisabled,
		ClientSyncDisabled:     d.Config.ClientSyncDisabled,
	})
}

func (d *Dispatcher) handleGetRooms(sess *Session) {
	sess.Send(struct {
		Type  string           `json:"type"`
		Rooms []domain.Summary `json:"rooms"`
	}{Type: "rooms-updated", Rooms: d.Registry.ListPublic()})
}

func (d *Dispatcher) handleRequestInitialState(sess *Session) {
	room := sess.Room()
	if room == nil {
		return
	}
	room.Do(func(r *rooms.Room) {
		pl := r.Playlist()
		pb := r.Playback()
		pb.CurrentTime = pb.Projected(r.Now())
		r.SendTo(sess.ConnID, struct {
			Type     string          `json:"type"`
			Playlist domain.Playlist `json:"playlist"`
			Playback syncSnapshot    `json:"playback"`
			Members  []domain.DTO    `json:"members"`
		}{
			Type:     "initial-state",
			Playlist: pl,
			Playback: newSyncSnapshot(pb),
			Members:  r.Members(),
		})
	})
}

func (d *Dispatcher) handleRequestSync(sess *Session) {
	room := sess.Room()
	if room == nil {
		return
	}
	room.Do(func(r *rooms.Room) {
		pb := r.Playback()
		pb.CurrentTime = pb.Projected(r.Now())
		r.SendTo(sess.ConnID, newSyncSnapshot(pb))
	})
}

func (d *Dispatcher) handleSetClientName(sess *Session, raw []byte) {
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("set-client-name", "bad payload"))
		return
	}
	name := html.EscapeString(truncate(p.DisplayName, 32))
	room.Do(func(r *rooms.Room) {
		r.SetDisplayName(sess.ConnID, name)
	})
	if fp := sess.Fingerprint(); fp != "" {
		d.Store.SetClientName(fp, name)
	}
	sess.Send(nameUpdated{Type: "name-updated", DisplayName: name})
}

func (d *Dispatcher) handleGetClientList(sess *Session) {
	room := sess.Room()
	if room == nil {
		return
	}
	room.Do(func(r *rooms.Room) {
		r.SendTo(sess.ConnID, clientList{Type: "client-list", Members: r.Members()})
	})
}

func (d *Dispatcher) handleDeleteRoom(sess *Session) {
	room := sess.Room()
	if room == nil {
		return
	}
	code := room.Code()
	room.Do(func(r *rooms.Room) {
		r.Broadcast(roomDeleted{Type: "room-deleted", RoomCode: code})
		r.CloseAllConnections()
	})
	d.Registry.DeleteRoom(code)
	d.Store.DeleteRoomAdmin(string(code))
}
