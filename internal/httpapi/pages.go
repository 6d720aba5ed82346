package httpapi

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"

	"github.com/sync-player/server/internal/domain"
)

func (s *Server) handleLanding(c *gin.Context) {
	if !s.Config.ServerMode {
		s.serveViewerPage(c, domain.LegacyRoomCode)
		return
	}
	c.File(filepath.Join(s.Config.StaticPath, "landing.html"))
}

func (s *Server) handleAdmin(c *gin.Context) {
	code := roomCodeFromPath(c)
	if code == "" {
		code = string(domain.LegacyRoomCode)
	}

	c.Header("X-CSRF-Token", csrf.Token(c.Request))

	if !s.Config.DataHydration {
		c.File(filepath.Join(s.Config.StaticPath, "admin.html"))
		return
	}

	room, ok := s.Registry.GetRoom(domain.RoomCode(code))
	if !ok {
		c.File(filepath.Join(s.Config.StaticPath, "admin.html"))
		return
	}
	c.HTML(http.StatusOK, "admin.html", gin.H{
		"csrfToken": csrf.Token(c.Request),
		"room":      room.Summary(),
		"playlist":  room.Playlist(),
	})
}

func (s *Server) handleWatch(c *gin.Context) {
	s.serveViewerPage(c, domain.RoomCode(roomCodeFromPath(c)))
}

func (s *Server) serveViewerPage(c *gin.Context, code domain.RoomCode) {
	room, ok := s.Registry.GetRoom(code)
	if !ok {
		c.File(filepath.Join(s.Config.StaticPath, "viewer.html"))
		return
	}
	if !s.Config.DataHydration {
		c.File(filepath.Join(s.Config.StaticPath, "viewer.html"))
		return
	}
	c.HTML(http.StatusOK, "viewer.html", gin.H{
		"room":     room.Summary(),
		"playlist": room.Playlist(),
	})
}
