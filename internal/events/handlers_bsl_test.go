package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestBSLAdminRegisterFirstCallerClaimsFingerprint(t *testing.T) {
	d := newTestDispatcher(t)
	d.Config.AdminFingerprintLock = true
	sess, conn := newTestSession("conn-1")

	msg, _ := json.Marshal(map[string]any{"type": "bsl-admin-register", "fingerprint": "fp-1"})
	d.Handle(context.Background(), sess, msg)

	resp := conn.last()
	if resp == nil || resp["type"] != "admin-auth-result" || resp["success"] != true {
		t.Fatalf("expected a successful admin-auth-result, got %v", resp)
	}
}

func TestBSLAdminRegisterGrantsRoomAdminSeat(t *testing.T) {
	d := newTestDispatcher(t)
	d.Registry.CreateLegacyRoom()

	sess, conn := newTestSession("conn-1")
	join, _ := json.Marshal(map[string]any{"type": "join-room", "roomCode": "LEGACY", "fingerprint": "viewer-fp"})
	d.Handle(context.Background(), sess, join)
	joined := conn.lastOfType("room-joined")
	if joined == nil {
		t.Fatal("expected a room-joined response")
	}
	if isAdmin, _ := joined["isAdmin"].(bool); isAdmin {
		t.Fatalf("expected the legacy room joiner to start as a non-admin, got %v", joined)
	}

	register, _ := json.Marshal(map[string]any{"type": "bsl-admin-register", "fingerprint": "admin-fp"})
	d.Handle(context.Background(), sess, register)
	if resp := conn.last(); resp["success"] != true {
		t.Fatalf("expected bsl-admin-register to succeed, got %v", resp)
	}

	gated, _ := json.Marshal(map[string]any{"type": "get-client-list"})
	d.Handle(context.Background(), sess, gated)
	resp := conn.last()
	if resp == nil || resp["type"] != "client-list" {
		t.Fatalf("expected bsl-admin-register to grant the room admin seat so an admin-gated command succeeds, got %v", resp)
	}
}

func TestBSLAdminRegisterMismatchIsRejected(t *testing.T) {
	d := newTestDispatcher(t)
	d.Config.AdminFingerprintLock = true

	sess1, conn1 := newTestSession("conn-1")
	first, _ := json.Marshal(map[string]any{"type": "bsl-admin-register", "fingerprint": "fp-1"})
	d.Handle(context.Background(), sess1, first)
	if resp := conn1.last(); resp["success"] != true {
		t.Fatalf("expected the first registration to succeed, got %v", resp)
	}

	sess2, conn2 := newTestSession("conn-2")
	second, _ := json.Marshal(map[string]any{"type": "bsl-admin-register", "fingerprint": "fp-2"})
	d.Handle(context.Background(), sess2, second)

	resp := conn2.last()
	if resp == nil || resp["type"] != "admin-auth-result" || resp["success"] != false {
		t.Fatalf("expected a rejected admin-auth-result for a mismatched fingerprint, got %v", resp)
	}
}

func TestBSLGetStatusRespondsWithActiveMap(t *testing.T) {
	d := newTestDispatcher(t)
	adminSess, adminConn := newTestSession("conn-admin")
	setPlaylistAndReturnCode(t, d, adminSess, adminConn, 1)

	msg, _ := json.Marshal(map[string]any{"type": "bsl-get-status"})
	d.Handle(context.Background(), adminSess, msg)

	resp := adminConn.last()
	if resp == nil || resp["type"] != "bsl-status-update" {
		t.Fatalf("expected bsl-status-update, got %v", resp)
	}
	if _, ok := resp["active"]; !ok {
		t.Fatalf("expected an active field in bsl-status-update, got %v", resp)
	}
}

func TestBSLManualMatchOutOfRangeIndexIsRejected(t *testing.T) {
	d := newTestDispatcher(t)
	adminSess, adminConn := newTestSession("conn-admin")
	setPlaylistAndReturnCode(t, d, adminSess, adminConn, 1)

	msg, _ := json.Marshal(map[string]any{
		"type":                "bsl-manual-match",
		"clientConnectionId":  "conn-admin",
		"clientFileName":      "foo.mkv",
		"playlistIndex":       99,
	})
	d.Handle(context.Background(), adminSess, msg)

	resp := adminConn.last()
	if resp == nil || resp["type"] != "validation-error" {
		t.Fatalf("expected validation-error for out-of-range manual match, got %v", resp)
	}
}

func TestBSLManualMatchDoesNotEraseOtherVideosMatches(t *testing.T) {
	d := newTestDispatcher(t)
	adminSess, adminConn := newTestSession("conn-admin")
	setPlaylistAndReturnCode(t, d, adminSess, adminConn, 3)

	folderSelected, _ := json.Marshal(map[string]any{
		"type":  "bsl-folder-selected",
		"files": []map[string]any{{"name": "video.mkv", "size": 0}},
	})
	d.Handle(context.Background(), adminSess, folderSelected)
	if adminConn.count() == 0 {
		t.Fatal("expected at least one response after bsl-folder-selected")
	}

	manualMatch, _ := json.Marshal(map[string]any{
		"type":               "bsl-manual-match",
		"clientConnectionId": "conn-admin",
		"clientFileName":     "renamed.mkv",
		"playlistIndex":      1,
	})
	d.Handle(context.Background(), adminSess, manualMatch)

	statusMsg, _ := json.Marshal(map[string]any{"type": "bsl-get-status"})
	d.Handle(context.Background(), adminSess, statusMsg)
	status := adminConn.last()
	active, _ := status["active"].(map[string]any)
	if active == nil {
		t.Fatalf("expected an active map in bsl-status-update, got %v", status)
	}
	if active["0"] != true || active["2"] != true {
		t.Fatalf("manual match on index 1 should not erase the folder-scan matches recorded for indices 0 and 2, got %v", active)
	}
	if active["1"] != true {
		t.Fatalf("expected index 1 to be matched after the manual override, got %v", active)
	}
}

func TestBSLSetDriftClampsAndEchoesToFingerprint(t *testing.T) {
	d := newTestDispatcher(t)
	adminSess, adminConn := newTestSession("conn-admin")
	setPlaylistAndReturnCode(t, d, adminSess, adminConn, 1)

	msg, _ := json.Marshal(map[string]any{
		"type":              "bsl-set-drift",
		"clientFingerprint": "fp-admin",
		"playlistIndex":     0,
		"driftSeconds":      999.0,
	})
	d.Handle(context.Background(), adminSess, msg)

	resp := adminConn.last()
	if resp == nil || resp["type"] != "bsl-drift-update" {
		t.Fatalf("expected bsl-drift-update, got %v", resp)
	}
	values, _ := resp["driftValues"].(map[string]any)
	if values == nil {
		t.Fatalf("expected driftValues in response, got %v", resp)
	}
	if got := values["0"]; got != 60.0 {
		t.Fatalf("drift of 999 should clamp to 60, got %v", got)
	}
}
