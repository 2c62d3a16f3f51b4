// Package api exposes the node's entry points over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eigerco/attestd/internal/node"
	"github.com/eigerco/attestd/internal/ratelimit"
	"github.com/eigerco/attestd/pkg/log"
)

type Config struct {
	// AdminKey authorizes verifier key registration. Empty disables it.
	AdminKey string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	// RateLimitFailClosed rejects requests when the limiter errors.
	RateLimitFailClosed bool
}

type Server struct {
	cfg     Config
	r       *gin.Engine
	node    *node.Node
	limiter ratelimit.Limiter
}

type ServerDeps struct {
	Node    *node.Node
	Limiter ratelimit.Limiter
	// Gatherer backs GET /metrics when set.
	Gatherer prometheus.Gatherer
}

func NewServer(cfg Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		r:       r,
		node:    deps.Node,
		limiter: deps.Limiter,
	}
	s.routes(deps.Gatherer)
	return s
}

func (s *Server) Handler() http.Handler { return s.r }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.API.Info().Str("addr", addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.r.Group("/v1")
	{
		v1.POST("/evidence", s.rateLimit(routeEvidence), s.handleSubmitEvidence)
		v1.POST("/results", s.rateLimit(routeResults), s.handleSubmitResult)
		v1.POST("/verifier-keys", s.handleRegisterVerifierKey)

		v1.GET("/results/:account", s.handleListResults)
		v1.GET("/queue", s.handleListQueue)
		v1.GET("/verifier-keys", s.handleListVerifierKeys)
		v1.GET("/status", s.handleStatus)
	}
}
