package wsserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/domain"
	"github.com/sync-player/server/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server upgrades incoming HTTP requests to websocket connections and
// routes their frames through a Dispatcher.
type Server struct {
	Dispatcher *events.Dispatcher
}

// HandleUpgrade is a gin handler that upgrades the connection, spawns its
// write pump and runs its read pump inline. Once the read pump exits it
// disconnects the session and closes the connection, which ends the write
// pump; it returns without waiting for the write pump to exit.
func (s *Server) HandleUpgrade(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "wsserver").Msg("upgrade failed")
		return
	}

	tc := newConn(ws)
	connID := domain.ConnID(uuid.NewString())
	sess := events.NewSession(connID, c.ClientIP(), tc)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go tc.writePump()
	s.readPump(connCtx, sess, tc)

	s.Dispatcher.Disconnect(sess)
	tc.Close()
}

func (s *Server) readPump(ctx context.Context, sess *events.Session, c *conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "wsserver").Str("conn", string(sess.ConnID)).Msg("read pump closing")
			return
		}
		s.Dispatcher.Handle(ctx, sess, data)
	}
}
