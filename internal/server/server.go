package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/internal/catalog"
	"github.com/yourorg/shotdeck/internal/config"
	"github.com/yourorg/shotdeck/internal/executor"
	"github.com/yourorg/shotdeck/internal/metrics"
	"github.com/yourorg/shotdeck/internal/pipeline"
	"github.com/yourorg/shotdeck/internal/store"
	"github.com/yourorg/shotdeck/pkg/types"
)

// Runner executes one pipeline run. *pipeline.Pipeline implements it.
type Runner interface {
	Execute(ctx context.Context, in pipeline.Input) (*types.RunReport, error)
}

// Options carries the optional collaborators of a Server.
type Options struct {
	// Runner enables POST /api/runs.
	Runner  Runner
	Metrics *metrics.Recorder
	Logger  *zap.Logger
}

// Server exposes run history, run submission and metrics over HTTP.
type Server struct {
	cfg    *config.Config
	store  store.Store
	opts   Options
	log    *zap.Logger
	engine *gin.Engine
}

// New constructs a new Server with routes registered.
func New(cfg *config.Config, st store.Store, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &Server{
		cfg:    cfg,
		store:  st,
		opts:   opts,
		log:    opts.Logger,
		engine: gin.New(),
	}
	if srv.log == nil {
		srv.log = zap.NewNop()
	}
	srv.setupMiddleware()
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupMiddleware() {
	s.engine.Use(s.recovery())
	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	s.engine.Use(otelgin.Middleware(s.cfg.Telemetry.ServiceName))
	s.engine.Use(s.accessLog())
}

func (s *Server) registerRoutes() {
	// Static file server for run outputs.
	s.engine.Static("/artifacts", s.cfg.Output.Dir)

	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.engine.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))

	api := s.engine.Group("/api")
	api.GET("/runs", s.handleListRuns)
	api.POST("/runs", s.handleCreateRun)
	api.GET("/runs/:id", s.handleRunDetail)
	api.DELETE("/runs/:id", s.handleDeleteRun)
	api.GET("/usage", s.handleUsage)
	api.GET("/modes", func(c *gin.Context) { c.JSON(http.StatusOK, pipeline.Modes()) })
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context(), c.Query("batch"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

type runDetail struct {
	Run      *types.Run                `json:"run"`
	Outcomes []types.GenerationOutcome `json:"outcomes"`
	Stages   []types.StageUsage        `json:"stages"`
}

func (s *Server) handleRunDetail(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	outcomes, err := s.store.GetOutcomes(ctx, id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	stages, err := s.store.GetStages(ctx, id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, runDetail{Run: run, Outcomes: outcomes, Stages: stages})
}

func (s *Server) handleDeleteRun(c *gin.Context) {
	if err := s.store.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUsage(c *gin.Context) {
	usage, err := s.store.UsageByModel(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

type createRunRequest struct {
	ProductID string   `json:"product_id"`
	Paths     []string `json:"paths"`
	Mode      string   `json:"mode"`
	NumImages int      `json:"num_images"`
	Target    string   `json:"target"`
	Workers   int      `json:"workers"`
	NoCache   bool     `json:"no_cache"`
	Model     string   `json:"model"`
}

func (s *Server) handleCreateRun(c *gin.Context) {
	if s.opts.Runner == nil {
		writeError(c, http.StatusServiceUnavailable, errors.New("run submission is disabled"))
		return
	}
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.ProductID) == "" && len(req.Paths) == 0 {
		writeError(c, http.StatusBadRequest, errors.New("product_id or paths required"))
		return
	}

	ctx := c.Request.Context()
	if t := s.cfg.Generation.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	report, err := s.opts.Runner.Execute(ctx, pipeline.Input{
		Paths:     req.Paths,
		ProductID: req.ProductID,
		Mode:      req.Mode,
		NumImages: req.NumImages,
		Target:    req.Target,
		Workers:   req.Workers,
		NoCache:   req.NoCache,
		Model:     req.Model,
	})
	switch {
	case errors.Is(err, catalog.ErrAsset), errors.Is(err, pipeline.ErrUnknownMode), errors.Is(err, executor.ErrInvalidWorkers),
		errors.Is(err, config.ErrUnknownModel):
		writeError(c, http.StatusBadRequest, err)
		return
	case err != nil:
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		s.opts.Metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status))
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, err)
		return
	}
	writeError(c, http.StatusInternalServerError, err)
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
