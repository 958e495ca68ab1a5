// Package server implements the HTTP surface over an L-Store database:
// a chi REST API for table/row/index operations, a Prometheus metrics
// endpoint, a merge-completion WebSocket stream, and an optional
// read-only GraphQL endpoint.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lstore-db/lstore/pkg/audit"
	"github.com/lstore-db/lstore/pkg/auth"
	"github.com/lstore-db/lstore/pkg/database"
	gql "github.com/lstore-db/lstore/pkg/graphql"
	"github.com/lstore-db/lstore/pkg/metrics"
	"github.com/lstore-db/lstore/pkg/server/handlers"
	"github.com/lstore-db/lstore/pkg/table"
)

// Server is the HTTP server wrapping a database.Database.
type Server struct {
	config      *Config
	db          *database.Database
	router      *chi.Mux
	httpSrv     *http.Server
	startTime   time.Time
	counters    *metrics.Counters
	registry    *prometheus.Registry
	verifier    *auth.Verifier
	mergeStream *handlers.MergeStreamManager
}

// New opens the database at config.DataDir and builds the router.
func New(config *Config) (*Server, error) {
	dbConfig := &database.Config{
		DataDir:        config.DataDir,
		BufferPoolSize: config.BufferSize,
	}
	db, err := database.Open(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("server: open database: %w", err)
	}

	s := &Server{
		config:      config,
		db:          db,
		router:      chi.NewRouter(),
		startTime:   time.Now(),
		counters:    metrics.NewCounters(),
		registry:    prometheus.NewRegistry(),
		mergeStream: handlers.NewMergeStreamManager(),
	}
	s.registry.MustRegister(metrics.NewCollector(config.MetricsNamespace, db.Pool(), s.counters))

	if config.AdminToken != "" {
		verifier, err := auth.NewVerifier(config.AdminToken)
		if err != nil {
			return nil, fmt.Errorf("server: build admin token verifier: %w", err)
		}
		s.verifier = verifier
	}

	for _, name := range db.TableNames() {
		if eng, ok := db.GetTable(name); ok {
			s.wireTable(eng.Table())
		}
	}

	s.setupMiddleware()
	s.setupRoutes()
	if config.EnableGraphQL {
		if err := s.setupGraphQLRoutes(); err != nil {
			return nil, fmt.Errorf("server: setup graphql routes: %w", err)
		}
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// wireTable applies server-level merge configuration (threshold,
// event-stream hook, audit logging) to a table, whether newly created
// or reloaded from disk at Open.
func (s *Server) wireTable(tbl *table.Table) {
	if s.config.MergeThreshold > 0 {
		tbl.SetMergeThreshold(s.config.MergeThreshold)
	}
	streamHook := s.mergeStream.Hook()
	auditLogger := s.db.AuditLogger()
	tbl.SetMergeHook(func(ev table.Event) {
		s.counters.MergesCompleted.Add(1)
		streamHook(ev)
		if auditLogger != nil {
			_ = auditLogger.Log(audit.Event{
				Operation: audit.OperationMerge,
				Table:     ev.Table,
				Success:   true,
				Severity:  audit.SeverityInfo,
			})
		}
	})
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)
	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(s.compressionMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	h := handlers.New(s.db, s.counters)
	h.OnTableCreated = s.wireTable

	s.router.Get("/_health", h.Health)
	s.router.Handle("/_metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Route("/tables", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/", h.ListTables)
		r.Post("/{table}", h.CreateTable)
		r.Delete("/{table}", h.DropTable)

		r.Post("/{table}/rows", h.InsertRow)
		r.Get("/{table}/rows/{key}", h.GetRow)
		r.Put("/{table}/rows/{key}", h.UpdateRow)
		r.Delete("/{table}/rows/{key}", h.DeleteRow)
		r.Post("/{table}/rows/{key}/increment", h.Increment)

		r.Get("/{table}/sum", h.Sum)

		r.Post("/{table}/index/{col}", h.CreateIndex)
		r.Delete("/{table}/index/{col}", h.DropIndex)

		r.Get("/{table}/merge-events", s.mergeStream.ServeHTTP)
	})
}

func (s *Server) setupGraphQLRoutes() error {
	gqlHandler, err := gql.NewHandler(s.db)
	if err != nil {
		return err
	}
	s.router.Post("/graphql", gqlHandler.ServeHTTP)
	return nil
}

// Database exposes the underlying database, e.g. for the CLI REPL.
func (s *Server) Database() *database.Database { return s.db }

// Start runs the HTTP server until an OS signal requests shutdown.
func (s *Server) Start() error {
	log.Printf("lstore server starting on %s", s.httpSrv.Addr)
	log.Printf("data directory: %s", s.config.DataDir)
	log.Printf("buffer pool size: %d pages", s.config.BufferSize)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server: listen and serve: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Printf("received signal %v, shutting down", sig)
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the HTTP server and closes the database.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if err := s.mergeStream.Close(); err != nil {
		log.Printf("merge stream close error: %v", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("server: close database: %w", err)
	}
	return nil
}
