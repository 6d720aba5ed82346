package rooms

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/bsl"
	"github.com/sync-player/server/internal/clock"
	"github.com/sync-player/server/internal/domain"
)

// Registry owns the set of live rooms, generalizing the teacher's
// core.RoomManager from a flat name-keyed map to one keyed by a
// generated room code, with unique-code allocation and a ticking
// actor per room instead of a bare map entry.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc

	clock clock.Clock

	bslMode      bsl.Mode
	bslAdvanced  bool
	bslThreshold int
	autoplay     bool

	mu    sync.RWMutex
	rooms map[domain.RoomCode]*Room
}

// Options configures every room the Registry creates.
type Options struct {
	Clock           clock.Clock
	BSLMode         bsl.Mode
	BSLAdvanced     bool
	BSLThreshold    int
	VideoAutoplay   bool
}

// NewRegistry returns an empty Registry bound to parent's lifetime.
func NewRegistry(parent context.Context, opts Options) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Registry{
		ctx:          ctx,
		cancel:       cancel,
		clock:        opts.Clock,
		bslMode:      opts.BSLMode,
		bslAdvanced:  opts.BSLAdvanced,
		bslThreshold: opts.BSLThreshold,
		autoplay:     opts.VideoAutoplay,
		rooms:        make(map[domain.RoomCode]*Room),
	}
}

// generateCode returns a fresh, currently-unused room code. Caller must
// hold r.mu.
func (r *Registry) generateCode() (domain.RoomCode, error) {
	for attempt := 0; attempt < 64; attempt++ {
		buf := make([]byte, domain.RoomCodeLen)
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(domain.RoomCodeAlphabet))))
			if err != nil {
				return "", err
			}
			buf[i] = domain.RoomCodeAlphabet[n.Int64()]
		}
		code := domain.RoomCode(buf)
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", errUnableToAllocateCode
}

// CreateRoom allocates a fresh code, starts its actor, and returns it.
func (r *Registry) CreateRoom(name domain.RoomName, private bool, adminFingerprint string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.generateCode()
	if err != nil {
		return nil, err
	}

	identity := domain.Room{
		Code:             code,
		Name:             name,
		Private:          private,
		CreatedAt:        r.clock.Now(),
		AdminFingerprint: adminFingerprint,
	}
	room := New(identity, Deps{
		Clock:        r.clock,
		BSLMode:      r.bslMode,
		BSLAdvanced:  r.bslAdvanced,
		BSLThreshold: r.bslThreshold,
		Autoplay:     r.autoplay,
	})
	r.rooms[code] = room
	go room.Run(r.ctx)
	log.Info().Str("module", "rooms").Str("room", string(code)).Msg("room created")
	return room, nil
}

// CreateLegacyRoom creates the single implicit room used when
// server_mode is disabled, under the fixed domain.LegacyRoomCode.
func (r *Registry) CreateLegacyRoom() *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity := domain.Room{
		Code:      domain.LegacyRoomCode,
		Name:      "Sync-Player",
		CreatedAt: r.clock.Now(),
	}
	room := New(identity, Deps{
		Clock:        r.clock,
		BSLMode:      r.bslMode,
		BSLAdvanced:  r.bslAdvanced,
		BSLThreshold: r.bslThreshold,
		Autoplay:     r.autoplay,
	})
	r.rooms[domain.LegacyRoomCode] = room
	go room.Run(r.ctx)
	return room
}

// GetRoom looks up a live room by code.
func (r *Registry) GetRoom(code domain.RoomCode) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[code]
	return room, ok
}

// DeleteRoom stops a room's actor and removes it from the registry.
func (r *Registry) DeleteRoom(code domain.RoomCode) {
	r.mu.Lock()
	room, ok := r.rooms[code]
	delete(r.rooms, code)
	r.mu.Unlock()
	if !ok {
		return
	}
	room.Stop()
	log.Info().Str("module", "rooms").Str("room", string(code)).Msg("room deleted")
}

// ListPublic returns summaries for every non-private room.
func (r *Registry) ListPublic() []domain.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Summary, 0, len(r.rooms))
	for _, room := range r.rooms {
		if room.Private() {
			continue
		}
		out = append(out, room.Summary())
	}
	return out
}

// Shutdown stops every room's actor, used during graceful shutdown.
func (r *Registry) Shutdown(timeout time.Duration) {
	r.mu.RLock()
	roomList := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		roomList = append(roomList, room)
	}
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, room := range roomList {
			room.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Str("module", "rooms").Msg("shutdown timed out waiting for room actors")
	}
	r.cancel()
}

type registryError string

func (e registryError) Error() string { return string(e) }

const errUnableToAllocateCode = registryError("rooms: unable to allocate a unique room code")
