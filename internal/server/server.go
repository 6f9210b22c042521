package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cinesync/internal/handler"
	"github.com/dukerupert/cinesync/internal/middleware"
	ws "github.com/dukerupert/cinesync/internal/websocket"
)

// Manual syncs allowed per client per window.
const (
	syncLimit  = 6
	syncWindow = time.Minute
)

type Config struct {
	DB      handler.Pinger
	Entries handler.EntrySource
	Runs    handler.RunLister
	Syncer  handler.Syncer
	Hub     *ws.Hub
	Loc     *time.Location

	// AuthUser and AuthHash enable basic auth on everything but /healthz.
	AuthUser string
	AuthHash string

	// OriginPatterns are extra hosts allowed to open /ws cross-origin.
	OriginPatterns []string
	Logger         *slog.Logger
}

type Server struct {
	cfg         Config
	entryH      *handler.EntryHandler
	syncH       *handler.SyncHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		entryH:      handler.NewEntryHandler(cfg.Entries, cfg.Loc, logger.With("component", "entries")),
		syncH:       handler.NewSyncHandler(cfg.Runs, cfg.Syncer, logger.With("component", "sync")),
		rateLimiter: middleware.NewRateLimiter(syncLimit, syncWindow),
		logger:      logger,
	}
}

func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /healthz", handler.Health(s.cfg.DB))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	var protected http.Handler = protectedMux
	if s.cfg.AuthUser != "" {
		protected = middleware.BasicAuth(s.cfg.AuthUser, s.cfg.AuthHash)(protectedMux)
	}
	outerMux.Handle("/", protected)

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/entries", s.entryH.List)
	mux.HandleFunc("GET /calendar.ics", s.entryH.Feed)

	mux.HandleFunc("GET /api/runs", s.syncH.ListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.syncH.GetRun)
	mux.Handle("POST /api/sync", middleware.RateLimit(s.rateLimiter)(http.HandlerFunc(s.syncH.Trigger)))

	if s.cfg.Hub != nil {
		mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.cfg.Hub, s.logger.With("component", "websocket"), s.cfg.OriginPatterns...))
	}
}
