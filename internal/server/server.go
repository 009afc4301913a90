// Package server exposes the step registry, validation reports and dry-run
// consolidation plans over HTTP. Nothing it serves writes to the graph.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agenthands/graphmerge/internal/core/dedupe"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/orchestrator"
	"github.com/agenthands/graphmerge/internal/source"
	"github.com/agenthands/graphmerge/internal/store"
	"github.com/agenthands/graphmerge/internal/validation"
)

type Deps struct {
	Graph        store.Graph
	Source       source.Reader
	Orchestrator *orchestrator.Orchestrator
	Validator    *validation.Validator
	// Expect is the end state checked by POST /validate.
	Expect validation.Expectations
	Logger zerolog.Logger
	Now    func() time.Time
}

type Server struct {
	deps    Deps
	planner *dedupe.Deduplicator
	logger  zerolog.Logger

	mu     sync.RWMutex
	report *validation.Report
}

func NewServer(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Server{
		deps:    deps,
		planner: dedupe.NewDeduplicator(deps.Graph, nil, deps.Now, deps.Logger),
		logger:  deps.Logger.With().Str("component", "server").Logger(),
	}
}

// SetReport stores the report served by GET /report.
func (s *Server) SetReport(r *validation.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = r
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.Health)
	r.GET("/steps", s.Steps)
	r.GET("/report", s.Report)
	r.POST("/validate", s.Validate)
	r.POST("/plan", s.Plan)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type stepInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Done  bool   `json:"done"`
}

func (s *Server) Steps(c *gin.Context) {
	o := s.deps.Orchestrator
	progress, err := o.Progress(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load tracking record")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load tracking record"})
		return
	}

	var steps []stepInfo
	for i, step := range o.Steps() {
		steps = append(steps, stepInfo{Index: i + 1, Name: step.Name(), Done: progress.Done(step.Name())})
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps, "progress": progress})
}

func (s *Server) Report(c *gin.Context) {
	s.mu.RLock()
	report := s.report
	s.mu.RUnlock()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) Validate(c *gin.Context) {
	report, err := s.deps.Validator.Validate(c.Request.Context(), nil, s.deps.Expect)
	if err != nil {
		s.logger.Error().Err(err).Msg("validation failed to run")
		c.JSON(http.StatusBadGateway, gin.H{"error": "validation failed to run"})
		return
	}
	s.SetReport(report)
	c.JSON(http.StatusOK, report)
}

type PlanRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
}

func (s *Server) Plan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	et := model.EntityType(req.EntityType)
	if _, ok := source.ShapeFor(et); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
		return
	}

	ctx := c.Request.Context()
	records, err := s.deps.Source.Records(ctx, et)
	if err != nil {
		s.logger.Error().Err(err).Str("entity_type", req.EntityType).Msg("failed to read records")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read records"})
		return
	}
	plan, err := s.planner.Plan(ctx, dedupe.Options{EntityType: et}, records)
	if err != nil {
		s.logger.Error().Err(err).Str("entity_type", req.EntityType).Msg("failed to plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to plan"})
		return
	}
	c.JSON(http.StatusOK, plan)
}
