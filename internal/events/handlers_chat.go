package events

import (
	"encoding/json"
	"html"
	"strings"

	"github.com/sync-player/server/internal/rooms"
)

func (d *Dispatcher) handleChatMessage(sess *Session, raw []byte) {
	if !d.Config.ChatEnabled {
		return
	}
	room := sess.Room()
	if room == nil {
		return
	}
	var p struct {
		Sender  string `json:"sender"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		sess.Send(validationError("chat-message", "bad payload"))
		return
	}

	if rest, ok := parseRenameCommand(p.Message); ok {
		name := html.EscapeString(truncate(rest, 32))
		room.Do(func(r *rooms.Room) { r.SetDisplayName(sess.ConnID, name) })
		if fp := sess.Fingerprint(); fp != "" {
			d.Store.SetClientName(fp, name)
		}
		oldSender := html.EscapeString(truncate(p.Sender, 32))
		room.Do(func(r *rooms.Room) {
			r.Broadcast(chatMessageEvent{Type: "chat-message", Sender: "system", Message: oldSender + " is now known as " + name})
		})
		sess.Send(nameUpdated{Type: "name-updated", DisplayName: name})
		return
	}

	sender := html.EscapeString(truncate(p.Sender, 32))
	message := html.EscapeString(truncate(p.Message, 500))
	room.Do(func(r *rooms.Room) {
		r.Broadcast(chatMessageEvent{Type: "chat-message", Sender: sender, Message: message})
	})
}

// parseRenameCommand reports whether msg is "/rename NAME" and returns
// the trimmed NAME.
func parseRenameCommand(msg string) (string, bool) {
	const prefix = "/rename "
	if !strings.HasPrefix(msg, prefix) {
		return "", false
	}
	name := strings.TrimSpace(msg[len(prefix):])
	if name == "" {
		return "", false
	}
	return name, true
}
