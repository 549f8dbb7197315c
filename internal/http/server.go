package http

import (
	"context"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"wastewater/internal/amqp"
	"wastewater/internal/cache"
	"wastewater/internal/log"
	"wastewater/internal/metrics"
	"wastewater/internal/middleware/security"
	"wastewater/internal/storage"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr           string
	CacheTTL       time.Duration
	AllowedOrigins []string
	// Static is served under /static/ and at /; nil disables the dashboard.
	Static fs.FS
}

type Server struct {
	http.Server
	datasets     *datasetLoader
	cacheManager *cache.Manager
	logger       *log.Logger
	shutdownOnce sync.Once
}

const cacheCleanupInterval = 10 * time.Minute

// NewServer wires the read-only API around store. httpMetrics may be nil.
func NewServer(cfg ServerConfig, store storage.Loader, httpMetrics *metrics.HTTP, logger *log.Logger) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		datasets:     newDatasetLoader(store, cfg.CacheTTL),
		cacheManager: cache.NewManager(logger),
		logger:       logger.WithComponent(log.ComponentHTTP),
	}
	s.cacheManager.Register(s.datasets.cache)

	s.Handler = s.routes(cfg, httpMetrics)
	return s
}

func (s *Server) routes(cfg ServerConfig, httpMetrics *metrics.HTTP) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware(s.logger, func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	}))
	r.Use(middleware.Recoverer)
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealth)
	if httpMetrics != nil {
		r.Method(http.MethodGet, "/metrics", httpMetrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stations", s.handleStations)
		r.Get("/records", s.handleRecords)
		r.Get("/stations/{station}/series", s.handleSeries)
		r.Get("/stations/{station}/summary", s.handleSummary)
	})

	if cfg.Static != nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(cfg.Static)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFileFS(w, r, cfg.Static, "index.html")
		})
	}

	return r
}

// HandleDatasetUpdated invalidates the dataset cache when an ingest run
// reports new records.
func (s *Server) HandleDatasetUpdated(ctx context.Context, msg *amqp.DatasetUpdatedMessage) error {
	s.datasets.Invalidate()
	s.logger.InfoContext(ctx, "Dataset cache invalidated",
		log.FieldRunID, msg.RunID,
		log.FieldAdded, msg.Added)
	return nil
}

// ListenAndServe runs the cache cleanup for as long as the server serves.
func (s *Server) ListenAndServe() error {
	s.cacheManager.Start(context.Background(), cacheCleanupInterval)
	defer s.cacheManager.Stop()
	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
