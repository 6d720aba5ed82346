// Package rooms implements the per-room actor: every mutation to a
// room's membership, playlist, playback or BSL state runs on that
// room's own goroutine, serialized through a command channel, and
// results fan out to the room's connections. The teacher's
// core.roomImpl guarded its state with a mutex instead; this actor
// layout is new to this server.
package rooms

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/bsl"
	"github.com/sync-player/server/internal/clock"
	"github.com/sync-player/server/internal/domain"
)

const tickPeriod = 5 * time.Second

// Room owns all mutable state for one playback session. External callers
// never touch the fields directly; every mutation goes through Do, which
// runs the given function on the room's own goroutine.
type Room struct {
	identity domain.Room

	clock clock.Clock

	// members and every field below are only ever touched on the actor
	// goroutine (inside Do/Run); no separate lock is needed.
	members map[domain.ConnID]*connMember
	admin   domain.ConnID // "" if the seat is currently unclaimed

	playlist domain.Playlist
	playback domain.Playback

	autoplay bool

	// bslMode and bslMatcher mirror config at room-creation time; the
	// spec treats these as server-wide, not per-room, but the room is
	// where they're consumed.
	bslMode      bsl.Mode
	bslMatcher   bsl.Matcher
	bslActive    map[int]bool            // playlist index -> any/all aggregate result
	bslPerMember map[int]map[string]bool // playlist index -> fingerprint -> matched
	bslReporters map[string]bool         // fingerprints that have reported at all this round
	drift        map[string]map[int]float64

	cmds   chan func(*Room)
	stopCh chan struct{}
	done   chan struct{}
}

// Deps are the pieces of room behavior that come from outside the
// actor: the clock (for testability) and the BSL matcher configuration.
type Deps struct {
	Clock           clock.Clock
	BSLMode         bsl.Mode
	BSLAdvanced     bool
	BSLThreshold    int
	Autoplay        bool
}

// New returns a freshly constructed, not-yet-running room. Call Run to
// start its actor loop.
func New(identity domain.Room, deps Deps) *Room {
	now := deps.Clock.Now()
	return &Room{
		identity:     identity,
		clock:        deps.Clock,
		members:      make(map[domain.ConnID]*connMember),
		playlist:     domain.NewPlaylist(),
		playback:     domain.NewPlayback(now, deps.Autoplay),
		autoplay:     deps.Autoplay,
		bslMode:      deps.BSLMode,
		bslMatcher:   bsl.New(deps.BSLAdvanced, deps.BSLThreshold),
		bslActive:    make(map[int]bool),
		bslPerMember: make(map[int]map[string]bool),
		bslReporters: make(map[string]bool),
		drift:        make(map[string]map[int]float64),
		cmds:         make(chan func(*Room), 64),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Code returns the room's stable identifier.
func (r *Room) Code() domain.RoomCode { return r.identity.Code }

// Name returns the room's display name.
func (r *Room) Name() domain.RoomName { return r.identity.Name }

// Private reports whether the room is excluded from listPublic.
func (r *Room) Private() bool { return r.identity.Private }

// Do enqueues fn to run on the room's actor goroutine and blocks until it
// has run. It is the only way outside code mutates room state, keeping
// every mutation totally ordered per spec's concurrency model.
func (r *Room) Do(fn func(*Room)) {
	done := make(chan struct{})
	wrapped := func(rm *Room) {
		fn(rm)
		close(done)
	}
	select {
	case r.cmds <- wrapped:
	case <-r.stopCh:
		return
	}
	select {
	case <-done:
	case <-r.stopCh:
	}
}

// Run is the actor loop: it drains cmds in order and ticks the playback
// clock every tickPeriod. If the ticker or the loop itself panics, Run
// restarts it — a frozen ticker is the one failure mode the spec says
// must never be left unrecovered.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	for {
		if r.runOnce(ctx) {
			return
		}
		log.Error().Str("module", "rooms").Str("room", string(r.identity.Code)).Msg("actor loop recovered from panic, restarting")
	}
}

func (r *Room) runOnce(ctx context.Context) (stopped bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("module", "rooms").Msg("room actor panic")
			stopped = false
		}
	}()

	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-r.stopCh:
			return true
		case fn := <-r.cmds:
			fn(r)
		case <-ticker.C:
			r.playback.Tick(r.clock.Now())
		}
	}
}

// Stop terminates the actor loop; pending Do calls unblock without running.
func (r *Room) Stop() {
	close(r.stopCh)
	<-r.done
}

// Broadcast marshals v and fans it out to every connected member.
// Delivery failures (backpressure, closed socket) are logged and
// otherwise ignored — per spec, a slow member never blocks the room.
func (r *Room) Broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("broadcast marshal failed")
		return
	}
	for id, m := range r.members {
		if err := m.conn.TrySend(payload); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("conn", string(id)).Msg("dropped broadcast to slow member")
		}
	}
}

// SendTo delivers v to exactly one connection, if still present.
func (r *Room) SendTo(id domain.ConnID, v any) {
	m, ok := r.members[id]
	if !ok {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("sendTo marshal failed")
		return
	}
	if err := m.conn.TrySend(payload); err != nil {
		log.Warn().Err(err).Str("module", "rooms").Str("conn", string(id)).Msg("dropped send to slow member")
	}
}

// SendToFingerprint delivers v to every connection whose fingerprint
// matches fp (used by bsl-drift-update fan-out, since one fingerprint
// may hold several simultaneous connections).
func (r *Room) SendToFingerprint(fp string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("sendToFingerprint marshal failed")
		return
	}
	for id, m := range r.members {
		if m.meta.Fingerprint != fp {
			continue
		}
		if err := m.conn.TrySend(payload); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("conn", string(id)).Msg("dropped send to slow member")
		}
	}
}

// CloseAllConnections closes every member's transport connection and
// clears membership, used by delete-room to tear the room down cleanly.
func (r *Room) CloseAllConnections() {
	for id, m := range r.members {
		m.conn.Close()
		delete(r.members, id)
	}
	r.admin = ""
}

// Members returns a snapshot DTO list, admin flag included.
func (r *Room) Members() []domain.DTO {
	out := make([]domain.DTO, 0, len(r.members))
	for id, m := range r.members {
		out = append(out, m.dto(id == r.admin))
	}
	return out
}

// ViewerCount returns the number of connected members (admin included).
func (r *Room) ViewerCount() int { return len(r.members) }

// AddMember registers a new connection. It grants the admin seat if
// fingerprint matches the room's persisted admin fingerprint and no
// other connection currently holds the seat.
func (r *Room) AddMember(id domain.ConnID, fingerprint, displayName string, conn Connection) (isAdmin bool) {
	m := newConnMember(id, fingerprint, displayName, r.clock.Now(), conn)
	r.members[id] = m

	if r.admin == "" && fingerprint != "" && fingerprint == r.identity.AdminFingerprint {
		r.admin = id
		return true
	}
	return id == r.admin
}

// MakeAdmin unconditionally grants the seat to id and records fp as the
// room's admin fingerprint (create-room, bsl-admin-register).
func (r *Room) MakeAdmin(id domain.ConnID, fingerprint string) {
	r.admin = id
	r.identity.AdminFingerprint = fingerprint
}

// RemoveMember drops a connection. If it held the admin seat, the seat
// becomes unclaimed but the fingerprint on file is untouched, so a
// reconnect with the same fingerprint can reclaim it.
func (r *Room) RemoveMember(id domain.ConnID) {
	delete(r.members, id)
	if r.admin == id {
		r.admin = ""
	}
}

// IsAdmin reports whether id currently holds the admin seat.
func (r *Room) IsAdmin(id domain.ConnID) bool { return id != "" && id == r.admin }

// AdminConn returns the connection currently holding the seat, if any.
func (r *Room) AdminConn() (domain.ConnID, bool) { return r.admin, r.admin != "" }

// AdminFingerprint returns the fingerprint on file for this room, which
// outlives any single connection.
func (r *Room) AdminFingerprint() string { return r.identity.AdminFingerprint }

// MemberFingerprint looks up the fingerprint for a connection.
func (r *Room) MemberFingerprint(id domain.ConnID) (string, bool) {
	m, ok := r.members[id]
	if !ok {
		return "", false
	}
	return m.meta.Fingerprint, true
}

// SetDisplayName updates the stored display name for a connection.
func (r *Room) SetDisplayName(id domain.ConnID, name string) {
	if m, ok := r.members[id]; ok {
		m.meta.DisplayName = name
	}
}

// Now returns the room's current time, routed through its clock so
// tests can drive it deterministically.
func (r *Room) Now() time.Time { return r.clock.Now() }

// Playback returns a snapshot of the current playback state (already
// projected is the caller's job via domain.Playback.Projected).
func (r *Room) Playback() domain.Playback { return r.playback }

// MutatePlayback applies fn to the room's playback state under the
// actor's own serialization (fn runs synchronously inside Do already).
func (r *Room) MutatePlayback(fn func(p *domain.Playback, now time.Time)) {
	fn(&r.playback, r.clock.Now())
}

// Playlist returns a copy of the current playlist.
func (r *Room) Playlist() domain.Playlist { return r.playlist }

// SetPlaylist replaces the playlist wholesale (set-playlist).
func (r *Room) SetPlaylist(pl domain.Playlist) {
	r.playlist = pl
	r.bslActive = make(map[int]bool)
	r.bslPerMember = make(map[int]map[string]bool)
	r.bslReporters = make(map[string]bool)
	for _, m := range r.members {
		m.bslReported = false
	}
}

// MutatePlaylist applies fn to the stored playlist in place.
func (r *Room) MutatePlaylist(fn func(p *domain.Playlist)) {
	fn(&r.playlist)
}

// BSLMode reports the room's BSL aggregation mode.
func (r *Room) BSLMode() bsl.Mode { return r.bslMode }

// BSLMatcher exposes the configured matcher for use by event handlers.
func (r *Room) BSLMatcher() bsl.Matcher { return r.bslMatcher }

// RecordBSLReport stores one member's match results and recomputes
// per-index aggregates. Only indices present in matchedIndices are
// updated — a single-entry map (bsl-manual-match correcting one video)
// leaves the fingerprint's previously recorded matches on every other
// video untouched.
func (r *Room) RecordBSLReport(id domain.ConnID, fingerprint string, matchedIndices map[int]bool) {
	if m, ok := r.members[id]; ok {
		m.bslReported = true
	}
	r.bslReporters[fingerprint] = true
	for idx, matched := range matchedIndices {
		if r.bslPerMember[idx] == nil {
			r.bslPerMember[idx] = make(map[string]bool)
		}
		r.bslPerMember[idx][fingerprint] = matched
	}
	r.recomputeBSLActive()
}

func (r *Room) playlistIndices() map[int]struct{} {
	out := make(map[int]struct{}, len(r.playlist.Videos))
	for i := range r.playlist.Videos {
		out[i] = struct{}{}
	}
	return out
}

func (r *Room) recomputeBSLActive() {
	for idx := range r.playlistIndices() {
		r.bslActive[idx] = bsl.Aggregate(r.bslMode, r.bslPerMember[idx], r.bslReporters)
	}
}

// BSLActive returns the current per-index activity map.
func (r *Room) BSLActive() map[int]bool {
	out := make(map[int]bool, len(r.bslActive))
	for k, v := range r.bslActive {
		out[k] = v
	}
	return out
}

// MembersNotReported returns the connections of non-admin members that
// have not yet answered the current bsl-check-request round.
func (r *Room) MembersNotReported() []domain.ConnID {
	var out []domain.ConnID
	for id, m := range r.members {
		if id == r.admin {
			continue
		}
		if !m.bslReported {
			out = append(out, id)
		}
	}
	return out
}

// SetDrift clamps and stores a drift value, returning the clamped value.
func (r *Room) SetDrift(fingerprint string, playlistIndex int, seconds float64) float64 {
	if seconds > 60 {
		seconds = 60
	}
	if seconds < -60 {
		seconds = -60
	}
	if r.drift[fingerprint] == nil {
		r.drift[fingerprint] = make(map[int]float64)
	}
	r.drift[fingerprint][playlistIndex] = seconds
	return seconds
}

// DriftFor returns the drift map for one fingerprint.
func (r *Room) DriftFor(fingerprint string) map[int]float64 {
	out := make(map[int]float64, len(r.drift[fingerprint]))
	for k, v := range r.drift[fingerprint] {
		out[k] = v
	}
	return out
}

// Summary returns the read-only view used by listPublic / room summary APIs.
func (r *Room) Summary() domain.Summary {
	return domain.Summary{
		Code:      r.identity.Code,
		Name:      r.identity.Name,
		Viewers:   len(r.members),
		CreatedAt: r.identity.CreatedAt,
	}
}
