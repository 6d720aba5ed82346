// Package httpapi is the REST + page-serving surface: gin router,
// CSRF protection, session cookies, and the media/room read endpoints
// from spec §6.3. Adapted from the teacher's adapters/http.SetupRouter,
// which wired the same gin + gin-contrib/sessions + client-token-cookie
// stack for a single websocket endpoint; this generalizes it to a full
// page+API surface.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/config"
	"github.com/sync-player/server/internal/probe"
	"github.com/sync-player/server/internal/ratelimit"
	"github.com/sync-player/server/internal/rooms"
	"github.com/sync-player/server/internal/store"
	"github.com/sync-player/server/internal/wsserver"
)

// Server wires configuration and backing services into HTTP handlers.
type Server struct {
	Config   *config.Config
	Registry *rooms.Registry
	Store    *store.Store
	Prober   probe.Prober
	WS       *wsserver.Server

	filesCache *filesCache
	limiters   map[string]*ratelimit.Limiter
}

// NewRouter builds the gin engine. ctx bounds the lifetime of websocket
// connections accepted through it.
func NewRouter(ctx context.Context, s *Server) *gin.Engine {
	if s.Config.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.filesCache = newFilesCache(20 * time.Second)
	s.limiters = map[string]*ratelimit.Limiter{
		"files":     ratelimit.New(ratelimit.PerMinute(35), 35),
		"tracks":    ratelimit.New(ratelimit.PerMinute(60), 60),
		"thumbnail": ratelimit.New(ratelimit.PerMinute(50), 50),
	}

	r := gin.New()
	if s.Config.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := []byte(s.Config.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
	}
	cookieStore := cookie.NewStore(secret)
	r.Use(sessions.Sessions("sync_session", cookieStore))

	csrfProtect := csrf.Protect(
		padKey(secret),
		csrf.Secure(s.Config.UseHTTPS),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.FieldName("_csrf"),
	)
	r.Use(csrfMiddleware(csrfProtect))

	r.Static("/static", s.Config.StaticPath)
	r.LoadHTMLGlob(s.Config.StaticPath + "/*.html")

	r.GET("/", s.handleLanding)
	r.GET("/admin", s.handleAdmin)
	r.GET("/admin/:code", s.handleAdmin)
	r.GET("/watch/:code", s.handleWatch)

	api := r.Group("/api")
	api.GET("/rooms", s.handleListRooms)
	api.GET("/rooms/:code", s.handleRoomSummary)
	api.GET("/files", rateLimited(s.limiters["files"]), s.handleListFiles)
	api.GET("/tracks/:filename", rateLimited(s.limiters["tracks"]), s.handleTracks(ctx))
	api.GET("/thumbnail/:filename", rateLimited(s.limiters["thumbnail"]), s.handleThumbnail(ctx))
	api.GET("/csrf-token", s.handleCSRFToken)
	api.GET("/server-mode", s.handleServerMode)
	api.GET("/vpn-check", s.handleServerMode)
	api.GET("/ws/signal", func(c *gin.Context) {
		s.WS.HandleUpgrade(ctx, c)
	})

	log.Info().Str("module", "httpapi").Bool("server_mode", s.Config.ServerMode).Msg("router configured")
	return r
}

// csrfMiddleware adapts gorilla/csrf's http.Handler-wrapping middleware
// into gin's chain: the teacher pack's chi-based handler wraps its whole
// router the same way (csrfProtect(next)); gin instead needs the "next"
// step to be c.Next(), so each request gets its own single-use wrapped
// handler that forwards the CSRF-decorated request back into c before
// continuing.
func csrfMiddleware(protect func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
	}
}

func padKey(secret []byte) []byte {
	if len(secret) >= 32 {
		return secret[:32]
	}
	padded := make([]byte, 32)
	copy(padded, secret)
	return padded
}

func rateLimited(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}

func roomCodeFromPath(c *gin.Context) string {
	return strings.ToUpper(c.Param("code"))
}
