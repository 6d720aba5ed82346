package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// allowedExtensions is the media allow-list for /api/files.
var allowedExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".avi": true, ".mov": true, ".m4v": true,
	".mp3": true, ".aac": true, ".flac": true, ".wav": true, ".ogg": true,
}

// filesCache memoizes a directory listing for a short TTL, the same
// bounded-staleness trade the spec calls for in §6.3 ("cached 20s").
type filesCache struct {
	ttl time.Duration

	mu       sync.Mutex
	at       time.Time
	entries  []string
}

func newFilesCache(ttl time.Duration) *filesCache { return &filesCache{ttl: ttl} }

func (fc *filesCache) list(dir string) ([]string, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if time.Since(fc.at) < fc.ttl && fc.entries != nil {
		return fc.entries, nil
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		if allowedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, e.Name())
		}
	}
	fc.entries = out
	fc.at = time.Now()
	return out, nil
}

func (s *Server) handleListFiles(c *gin.Context) {
	files, err := s.filesCache.list(s.Config.MediaPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list media directory"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}
