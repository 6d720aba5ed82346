package rooms

import (
	"time"

	"github.com/sync-player/server/internal/domain"
)

// connMember pairs one live connection with its domain-level member
// record and BSL bookkeeping. It never crosses a room boundary.
type connMember struct {
	id   domain.ConnID
	meta *domain.Member
	conn Connection

	// bslReported is true once this connection has answered a
	// bsl-check-request for the room's current playlist generation.
	bslReported bool
}

func newConnMember(id domain.ConnID, fingerprint, displayName string, now time.Time, conn Connection) *connMember {
	return &connMember{
		id:   id,
		meta: domain.NewMember(fingerprint, displayName, now),
		conn: conn,
	}
}

func (m *connMember) dto(isAdmin bool) domain.DTO {
	return domain.DTO{
		ConnID:      m.id,
		Fingerprint: m.meta.Fingerprint,
		DisplayName: m.meta.DisplayName,
		IsAdmin:     isAdmin,
	}
}
