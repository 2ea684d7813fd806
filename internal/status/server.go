package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/vitalrelay/internal/auth"
	"github.com/danmuck/vitalrelay/internal/observability"
	"github.com/danmuck/vitalrelay/internal/pipeline"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Source is the pipeline view the status API reports on.
type Source interface {
	Stats() pipeline.Stats
	Running() bool
}

type Config struct {
	ID          string
	Addr        string
	CorsOrigins []string
	// Token, when set, is required as a bearer token on /stats and /config.
	Token string
}

// Server is the local status API of a relay process.
type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	source Source
	sensor map[string]float64
	token  string
	router *gin.Engine
}

func New(cfg Config, source Source, sensorConfig map[string]float64) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       cfg.ID,
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		source:   source,
		sensor:   sensorConfig,
		token:    cfg.Token,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.source.Running()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var private gin.IRoutes = s.router
	if s.token != "" {
		private = s.router.Group("/", auth.BearerToken(auth.StaticToken{Token: s.token}))
	}
	private.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.Stats())
	})
	private.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sensor": s.sensor})
	})
}

// Serve listens until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("status api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
