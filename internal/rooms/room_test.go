package rooms

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sync-player/server/internal/bsl"
	"github.com/sync-player/server/internal/clock"
	"github.com/sync-player/server/internal/domain"
)

// fakeConn is an in-memory Connection recording every payload it receives.
type fakeConn struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	fullSend bool // when true, TrySend always reports backpressure
}

func (c *fakeConn) TrySend(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fullSend {
		return ErrBackpressure
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestRoom(t *testing.T, mock *clock.MockClock) *Room {
	t.Helper()
	identity := domain.Room{Code: "ABC123", Name: "Test Room"}
	r := New(identity, Deps{
		Clock:        mock,
		BSLMode:      bsl.ModeAny,
		BSLAdvanced:  false,
		BSLThreshold: 1,
		Autoplay:     false,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	t.Cleanup(r.Stop)
	return r
}

func TestAddMemberGrantsAdminOnMatchingFingerprint(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	identity := domain.Room{Code: "ABC123", Name: "Test Room", AdminFingerprint: "fp-admin"}
	r := New(identity, Deps{Clock: mock, BSLThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	defer r.Stop()

	var isAdmin bool
	r.Do(func(rm *Room) {
		isAdmin = rm.AddMember("conn-1", "fp-admin", "Alice", &fakeConn{})
	})
	if !isAdmin {
		t.Fatal("expected first connection with matching fingerprint to become admin")
	}

	var secondIsAdmin bool
	r.Do(func(rm *Room) {
		secondIsAdmin = rm.AddMember("conn-2", "fp-other", "Bob", &fakeConn{})
	})
	if secondIsAdmin {
		t.Fatal("expected second connection to not be admin, seat already held")
	}
}

func TestRemoveMemberVacatesAdminSeatButKeepsFingerprintOnFile(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	r.Do(func(rm *Room) {
		rm.AddMember("conn-1", "fp-admin", "Alice", &fakeConn{})
		rm.MakeAdmin("conn-1", "fp-admin")
	})

	var wasAdmin bool
	r.Do(func(rm *Room) {
		wasAdmin = rm.IsAdmin("conn-1")
		rm.RemoveMember("conn-1")
	})
	if !wasAdmin {
		t.Fatal("expected conn-1 to hold the admin seat before removal")
	}

	var fpOnFile string
	var stillAdmin bool
	r.Do(func(rm *Room) {
		fpOnFile = rm.AdminFingerprint()
		stillAdmin = rm.IsAdmin("conn-1")
	})
	if fpOnFile != "fp-admin" {
		t.Fatalf("AdminFingerprint = %q, want fp-admin to survive disconnect", fpOnFile)
	}
	if stillAdmin {
		t.Fatal("expected admin seat to be vacated after removal")
	}
}

func TestBroadcastReachesEveryMember(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	c1, c2 := &fakeConn{}, &fakeConn{}
	r.Do(func(rm *Room) {
		rm.AddMember("conn-1", "fp-1", "Alice", c1)
		rm.AddMember("conn-2", "fp-2", "Bob", c2)
	})

	r.Do(func(rm *Room) {
		rm.Broadcast(map[string]string{"type": "hello"})
	})

	if c1.count() != 1 {
		t.Fatalf("conn-1 received %d messages, want 1", c1.count())
	}
	if c2.count() != 1 {
		t.Fatalf("conn-2 received %d messages, want 1", c2.count())
	}
}

func TestBroadcastSkipsSlowMemberWithoutBlockingOthers(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	slow, fast := &fakeConn{fullSend: true}, &fakeConn{}
	r.Do(func(rm *Room) {
		rm.AddMember("slow", "fp-slow", "Slow", slow)
		rm.AddMember("fast", "fp-fast", "Fast", fast)
	})

	r.Do(func(rm *Room) {
		rm.Broadcast(map[string]string{"type": "ping"})
	})

	if slow.count() != 0 {
		t.Fatalf("slow connection recorded %d sends, want 0 (backpressure)", slow.count())
	}
	if fast.count() != 1 {
		t.Fatalf("fast connection recorded %d sends, want 1", fast.count())
	}
}

func TestSendToFingerprintDeliversToEveryMatchingConnection(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	c1, c2, c3 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	r.Do(func(rm *Room) {
		rm.AddMember("conn-1", "shared-fp", "A", c1)
		rm.AddMember("conn-2", "shared-fp", "A-second-tab", c2)
		rm.AddMember("conn-3", "other-fp", "B", c3)
	})

	r.Do(func(rm *Room) {
		rm.SendToFingerprint("shared-fp", map[string]string{"type": "drift"})
	})

	if c1.count() != 1 || c2.count() != 1 {
		t.Fatal("expected both connections sharing the fingerprint to receive the message")
	}
	if c3.count() != 0 {
		t.Fatal("expected the unrelated fingerprint's connection to receive nothing")
	}
}

func TestSetPlaylistResetsBSLState(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	r.Do(func(rm *Room) {
		rm.AddMember("conn-1", "fp-1", "Alice", &fakeConn{})
		rm.SetPlaylist(domain.Playlist{Videos: []domain.Entry{{Filename: "a.mkv"}}, CurrentIndex: 0})
		rm.RecordBSLReport("conn-1", "fp-1", map[int]bool{0: true})
	})

	var activeBefore map[int]bool
	r.Do(func(rm *Room) { activeBefore = rm.BSLActive() })
	if !activeBefore[0] {
		t.Fatal("expected index 0 to be active before playlist reset")
	}

	r.Do(func(rm *Room) {
		rm.SetPlaylist(domain.Playlist{Videos: []domain.Entry{{Filename: "b.mkv"}}, CurrentIndex: 0})
	})

	var activeAfter map[int]bool
	var notReported []domain.ConnID
	r.Do(func(rm *Room) {
		activeAfter = rm.BSLActive()
		notReported = rm.MembersNotReported()
	})
	if len(activeAfter) != 0 {
		t.Fatalf("expected BSLActive to be cleared after SetPlaylist, got %v", activeAfter)
	}
	if len(notReported) != 1 {
		t.Fatalf("expected the member to be marked unreported again, got %v", notReported)
	}
}

func TestSetDriftClampsToSixtySeconds(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	var over, under float64
	r.Do(func(rm *Room) {
		over = rm.SetDrift("fp-1", 0, 999)
		under = rm.SetDrift("fp-1", 1, -999)
	})
	if over != 60 {
		t.Fatalf("SetDrift(999) = %v, want clamped to 60", over)
	}
	if under != -60 {
		t.Fatalf("SetDrift(-999) = %v, want clamped to -60", under)
	}
}

func TestBSLAggregateAnyModeAcrossTwoReporters(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	r.Do(func(rm *Room) {
		rm.AddMember("conn-1", "fp-1", "A", &fakeConn{})
		rm.AddMember("conn-2", "fp-2", "B", &fakeConn{})
		rm.SetPlaylist(domain.Playlist{Videos: []domain.Entry{{Filename: "a.mkv"}}})
		rm.RecordBSLReport("conn-1", "fp-1", map[int]bool{0: false})
		rm.RecordBSLReport("conn-2", "fp-2", map[int]bool{0: true})
	})

	var active map[int]bool
	r.Do(func(rm *Room) { active = rm.BSLActive() })
	if !active[0] {
		t.Fatal("expected any-mode aggregate to be active once one of two reporters matched")
	}
}

func TestStopUnblocksPendingDoWithoutRunning(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	identity := domain.Room{Code: "XYZ999", Name: "Stoppable"}
	r := New(identity, Deps{Clock: mock, BSLThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Stop()

	ran := false
	r.Do(func(rm *Room) { ran = true })
	if ran {
		t.Fatal("expected Do to unblock without running fn after Stop")
	}
}

func TestCloseAllConnectionsClosesEveryMemberAndClearsSeat(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	c1 := &fakeConn{}
	r.Do(func(rm *Room) {
		rm.AddMember("conn-1", "fp-1", "Alice", c1)
		rm.MakeAdmin("conn-1", "fp-1")
		rm.CloseAllConnections()
	})

	var viewerCount int
	var isAdmin bool
	r.Do(func(rm *Room) {
		viewerCount = rm.ViewerCount()
		isAdmin = rm.IsAdmin("conn-1")
	})

	c1.mu.Lock()
	closed := c1.closed
	c1.mu.Unlock()

	if !closed {
		t.Fatal("expected member connection to be closed")
	}
	if viewerCount != 0 {
		t.Fatalf("ViewerCount = %d, want 0", viewerCount)
	}
	if isAdmin {
		t.Fatal("expected admin seat to be cleared")
	}
}

func ensureJSON(t *testing.T, payload []byte, want map[string]any) {
	t.Helper()
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("invalid JSON payload: %v", err)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestBroadcastMarshalsArbitraryPayload(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	r := newTestRoom(t, mock)

	c1 := &fakeConn{}
	r.Do(func(rm *Room) { rm.AddMember("conn-1", "fp-1", "Alice", c1) })
	r.Do(func(rm *Room) { rm.Broadcast(map[string]any{"type": "client-count", "count": 1}) })

	c1.mu.Lock()
	payload := c1.sent[0]
	c1.mu.Unlock()
	ensureJSON(t, payload, map[string]any{"type": "client-count", "count": float64(1)})
}
