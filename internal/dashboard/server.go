// Package dashboard serves a read-only JSON status API for the watcher:
// connection state, subscription count, per-kind event counters and host
// resource samples. It observes the stream client and never feeds back into
// the connection lifecycle.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"akashwatch/config"
	"akashwatch/logger"
	"akashwatch/models"
	"akashwatch/stream"
)

// StreamStatus is the view of the stream client the dashboard exposes.
type StreamStatus interface {
	ConnectionState() stream.ConnectionState
	SubscriptionCount() int
}

// Server hosts the status API when the dashboard feature is enabled.
type Server struct {
	cfg        config.DashboardConfig
	log        *logger.Log
	status     StreamStatus
	sampler    *resourceSampler
	httpServer *http.Server
	startedAt  time.Time

	mu       sync.Mutex
	counters map[string]int64
}

// NewServer constructs a dashboard server when the feature is enabled. When
// disabled the returned server is nil and every method is a no-op.
func NewServer(cfg config.DashboardConfig, status StreamStatus, log *logger.Log) *Server {
	if !cfg.Enabled {
		return nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	return &Server{
		cfg:       cfg,
		log:       log,
		status:    status,
		sampler:   newResourceSampler(cfg.HistoryLimit, cfg.RefreshInterval, "/", log),
		startedAt: time.Now(),
		counters:  make(map[string]int64),
	}
}

// Record is a subscription callback counting delivered events per kind.
func (s *Server) Record(ev models.Event) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.counters[ev.EventType()]++
	s.mu.Unlock()
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/api/status", s.handleStatus)
	router.GET("/api/events", s.handleEvents)
	router.GET("/api/resources", s.handleResources)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.sampler.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.log.WithComponent("dashboard").WithField("address", s.cfg.Address).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connection_state": s.status.ConnectionState().String(),
		"subscriptions":    s.status.SubscriptionCount(),
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	s.mu.Lock()
	counters := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"events": counters})
}

func (s *Server) handleResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"samples": s.sampler.snapshots()})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":8089"
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return ":" + strings.TrimPrefix(addr, ":")
	}
	return addr
}
