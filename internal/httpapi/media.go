package httpapi

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/sync-player/server/internal/probe"
)

func (s *Server) handleTracks(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := c.Param("filename")
		if !probe.ValidFilename(filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
			return
		}

		tracks, err := s.Prober.Probe(ctx, s.Config.MediaPath, filename)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"audio": []probe.Stream{}, "subtitles": []probe.Stream{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"audio": tracks.Audio, "subtitles": tracks.Subtitles, "usesHEVC": tracks.UsesHEVC})
	}
}

func (s *Server) handleThumbnail(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := c.Param("filename")
		if !probe.ValidFilename(filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
			return
		}

		cacheDir := filepath.Join(s.Config.DataDir, "thumbnails")
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not prepare cache dir"})
			return
		}
		outPath := filepath.Join(cacheDir, filename+".jpg")

		if _, err := os.Stat(outPath); err == nil {
			c.File(outPath)
			return
		}

		seek := randomSeekInFirstThird()
		if err := s.Prober.Thumbnail(ctx, s.Config.MediaPath, filename, outPath, seek); err != nil {
			c.JSON(http.StatusOK, gin.H{"thumbnail": nil, "isAudio": true})
			return
		}
		c.File(outPath)
	}
}

// randomSeekInFirstThird picks a random timestamp in [5, 30) seconds as
// a stand-in for "a random position in the first third of duration"
// when the duration itself hasn't been probed yet.
func randomSeekInFirstThird() float64 {
	return 5 + rand.Float64()*25
}
