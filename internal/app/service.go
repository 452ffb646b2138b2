package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"gridalert/internal/api"
	"gridalert/internal/clock"
	"gridalert/internal/config"
	"gridalert/internal/engine"
	"gridalert/internal/hub"
	"gridalert/internal/ingest"
	"gridalert/internal/logging"
	"gridalert/internal/notify"
	"gridalert/internal/store"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable alert service.
type Service struct {
	cfg         config.Config
	logger      *slog.Logger
	closeLog    func()
	store       store.Store
	hub         *hub.Hub
	manager     *Manager
	noticeQueue *notify.Queue
	httpSrv     *http.Server
	natsSub     interface{ Close() error }
	readyFlag   atomic.Bool
	clock       clock.Clock
}

// NewService builds a service instance from the config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.Source, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := buildStore(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	taxonomy := engine.NewTaxonomy(cfg.Taxonomy.Kinds, cfg.Taxonomy.Sources)
	dedup := engine.New(st, taxonomy)
	pushHub := hub.New(logger)
	dispatcher := notify.NewDispatcher(cfg.Notify, logger)
	noticeQueue := notify.NewQueue(dispatcher, cfg.Notify.QueueDepth, logger)
	manager := NewManager(st, dedup, pushHub, noticeQueue, logger, clk)

	service := &Service{
		cfg:         cfg,
		logger:      logger,
		closeLog:    closeLog,
		store:       st,
		hub:         pushHub,
		manager:     manager,
		noticeQueue: noticeQueue,
		clock:       clk,
	}

	service.buildHTTPServer()
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// Run starts the service lifecycle and blocks until a shutdown signal.
// Params: root context for the service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting",
			"listen", s.cfg.Ingest.HTTP.Listen,
			"stream_path", s.cfg.Hub.Path)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.noticeQueue != nil {
		if err := s.noticeQueue.Close(); err != nil {
			s.logger.Error("notice queue close failed", "error", err.Error())
			markErr(fmt.Errorf("notice queue close: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.noticeQueue != nil {
		_ = s.noticeQueue.Close()
		s.noticeQueue = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires the router with ingest, API, push channel, and health
// endpoints on one listener.
// Params: none.
// Returns: server stored on the service.
func (s *Service) buildHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Ingest.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Ingest.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})

	ingestHandler := ingest.NewHTTPHandler(s.manager, s.cfg.Ingest.HTTP.MaxBodyBytes)
	mux.Handle(s.cfg.Ingest.HTTP.IngestPath, ingestHandler)
	batchPath := strings.TrimSuffix(s.cfg.Ingest.HTTP.IngestPath, "/") + "/batch"
	if batchPath != s.cfg.Ingest.HTTP.IngestPath {
		mux.Handle(batchPath, ingestHandler)
	}
	api.NewHandler(s.manager, s.logger).Register(mux)
	mux.Handle(s.cfg.Hub.Path, hub.Handler(s.hub, s.cfg.Hub.SendBuffer, s.logger))

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Ingest.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildNATSSubscriber starts NATS ingest when enabled.
// Params: none.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber() error {
	if !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.manager, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// buildStore creates the alert persistence backend from config.
// Params: root config snapshot.
// Returns: selected store backend.
func buildStore(cfg config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return store.NewPostgresStore(ctx, store.PostgresSettings{
			DSN:             cfg.Store.DSN,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			ConnMaxIdleTime: time.Duration(cfg.Store.ConnMaxIdleSec) * time.Second,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}
