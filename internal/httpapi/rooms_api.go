package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sync-player/server/internal/domain"
)

func (s *Server) handleListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, s.Registry.ListPublic())
}

func (s *Server) handleRoomSummary(c *gin.Context) {
	code := domain.RoomCode(roomCodeFromPath(c))
	room, ok := s.Registry.GetRoom(code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, room.Summary())
}

func (s *Server) handleServerMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"serverMode": s.Config.ServerMode,
		"useHTTPS":   s.Config.UseHTTPS,
	})
}

func (s *Server) handleCSRFToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"csrfToken": csrfToken(c)})
}
