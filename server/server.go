// Package server exposes the session lifecycle over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatflow/engine"
	"chatflow/session"
)

// Server wires the scenario session service into gin routes.
type Server struct {
	l       *slog.Logger
	svc     *engine.Service
	reg     *prometheus.Registry
	metrics *Metrics
}

func New(l *slog.Logger, svc *engine.Service) *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		l:       l,
		svc:     svc,
		reg:     reg,
		metrics: NewMetrics(reg),
	}
}

// Register attaches all routes, including /metrics, to the gin engine.
func (s *Server) Register(g *gin.Engine) {
	api := g.Group("/api")
	api.POST("/scenarios/:scenarioID/sessions", s.handleLaunch)
	api.POST("/sessions/:sessionID/turns", s.handleTurn)
	api.POST("/sessions/:sessionID/cancel", s.handleCancel)
	api.GET("/sessions/:sessionID", s.handleGet)
	api.GET("/conversations/:conversationID/sessions", s.handleList)
	g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))
}

type launchRequest struct {
	ConversationID string         `json:"conversationId"`
	Language       string         `json:"language"`
	InitialSlots   map[string]any `json:"initialSlots"`
}

type turnRequest struct {
	Message    string            `json:"message"`
	Handle     string            `json:"handle"`
	FormValues map[string]string `json:"formValues"`
}

type turnResponse struct {
	*engine.TurnResult
	Session *session.Session `json:"session,omitempty"`
}

func (s *Server) handleLaunch(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "wrong request body format"})
		return
	}

	start := time.Now()
	res, sess, err := s.svc.Launch(c.Request.Context(), engine.LaunchRequest{
		ScenarioID:     c.Param("scenarioID"),
		ConversationID: req.ConversationID,
		Language:       req.Language,
		InitialSlots:   req.InitialSlots,
	})
	s.metrics.TurnDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.metrics.SessionsStarted.WithLabelValues(sess.ScenarioID).Inc()
	s.metrics.Turns.WithLabelValues(string(res.Type)).Inc()
	c.JSON(http.StatusCreated, turnResponse{TurnResult: res, Session: sess})
}

func (s *Server) handleTurn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "wrong request body format"})
		return
	}

	start := time.Now()
	res, sess, err := s.svc.Turn(c.Request.Context(), c.Param("sessionID"), engine.TurnInput{
		Message:    req.Message,
		Handle:     req.Handle,
		FormValues: req.FormValues,
	})
	s.metrics.TurnDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.TurnFailures.Inc()
		s.renderError(c, err)
		return
	}

	s.metrics.Turns.WithLabelValues(string(res.Type)).Inc()
	c.JSON(http.StatusOK, turnResponse{TurnResult: res, Session: sess})
}

func (s *Server) handleCancel(c *gin.Context) {
	sess, err := s.svc.Cancel(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleGet(c *gin.Context) {
	sess, err := s.svc.Get(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleList(c *gin.Context) {
	summaries, err := s.svc.ListByConversation(c.Request.Context(), c.Param("conversationID"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, engine.ErrScenarioNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, engine.ErrSessionTerminated):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	default:
		s.l.ErrorContext(c.Request.Context(), "turn failed",
			"path", c.Request.URL.Path, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"message": "error in scenario execution: " + err.Error()})
	}
}
