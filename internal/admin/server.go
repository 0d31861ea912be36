package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/altbit/internal/observability"
	"github.com/danmuck/altbit/internal/peer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Endpoint is the node surface the admin API drives.
type Endpoint interface {
	Name() string
	Role() string
	MaxPayloadBytes() int
	Status(ctx context.Context) (peer.Status, error)
	Submit(ctx context.Context, payload []byte) (bool, error)
	Delivered(ctx context.Context) ([][]byte, error)
}

type Server struct {
	Addr    string
	node    Endpoint
	router  *gin.Engine
	started time.Time
}

type sendRequest struct {
	Payload string `json:"payload"`
}

func New(node Endpoint, addr string, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.ComponentLogger(log.Logger, "admin", node.Name())))
	r.Use(observability.RequestMetricsMiddleware(node.Name()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Addr:    addr,
		node:    node,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"node":    s.node.Name(),
			"role":    s.node.Role(),
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		st, err := s.node.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	s.router.POST("/send", func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if limit := s.node.MaxPayloadBytes(); len(req.Payload) > limit {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"accepted": false,
				"error":    fmt.Sprintf("payload is %d bytes, limit %d", len(req.Payload), limit),
			})
			return
		}
		accepted, err := s.node.Submit(c.Request.Context(), []byte(req.Payload))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if !accepted {
			c.JSON(http.StatusConflict, gin.H{"accepted": false, "error": "unit dropped"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	})

	s.router.GET("/delivered", func(c *gin.Context) {
		units, err := s.node.Delivered(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		out := make([]string, len(units))
		for i, u := range units {
			out[i] = string(u)
		}
		c.JSON(http.StatusOK, gin.H{"count": len(out), "units": out})
	})
}

// Serve listens on Addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, peer.ErrWrongRole):
		return http.StatusNotFound
	case errors.Is(err, peer.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
