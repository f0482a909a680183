package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"studylog/internal/cache"
	"studylog/internal/core"
	applog "studylog/internal/log"
	"studylog/internal/services"
)

type Server struct {
	http.Server
	svc    *services.StudyService
	logger *applog.Logger

	// entriesCache memoizes list responses between mutations.
	entriesCache *cache.LRUCache[[]core.StudyEntry]
	cacheManager *cache.Manager
	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.StudyService, logger *applog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		svc:          svc,
		logger:       logger.WithComponent(applog.ComponentHTTP),
		entriesCache: cache.NewLRUCache[[]core.StudyEntry](100, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}
	s.Server.Handler = applog.Middleware(logger)(mux)

	s.cacheManager.Register(s.entriesCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/entries", s.handleListEntries)
	mux.HandleFunc("POST /api/entries", s.handleRecordHours)
	mux.HandleFunc("DELETE /api/entries/{id}/hours/{index}", s.handleDeleteHour)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	return s
}

// Shutdown stops cache maintenance and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
