package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/support-mailer/internal/core"
	"go.uber.org/zap"
)

// Pipeline is the operations the API exposes.
type Pipeline interface {
	SyncNow(ctx context.Context) (*core.CycleStats, error)
	AnalyzeMessage(ctx context.Context, id int64) (*core.ClassificationResult, *core.ReplyDraft, error)
	GenerateReply(ctx context.Context, id int64) (*core.ReplyDraft, error)
	SendReply(ctx context.Context, id int64, body string, categoryID *int64) (string, error)
	DeleteMessage(ctx context.Context, id int64) error
	ListMessages(ctx context.Context, status string) ([]core.InboundMessage, error)
	GetMessage(ctx context.Context, id int64) (*core.InboundMessage, error)
}

// Server is the operator-facing HTTP surface.
type Server struct {
	pipeline Pipeline
	logger   *zap.Logger
	srv      *http.Server
}

type sendRequest struct {
	Body       string `json:"body"`
	CategoryID *int64 `json:"category_id"`
}

type analyzeResponse struct {
	CategoryID   int64   `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Confidence   float64 `json:"confidence"`
	Method       string  `json:"method"`
	Reason       string  `json:"reason"`
	Draft        string  `json:"draft,omitempty"`
	DraftSource  string  `json:"draft_source,omitempty"`
}

// NewServer creates the API server bound to addr.
func NewServer(addr string, pipeline Pipeline, logger *zap.Logger) *Server {
	s := &Server{pipeline: pipeline, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Request log middleware
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.POST("/sync", s.handleSync)

	emails := r.Group("/emails")
	emails.GET("", s.handleList)
	emails.GET("/:id", s.handleGet)
	emails.POST("/:id/analyze", s.handleAnalyze)
	emails.POST("/:id/generate-reply", s.handleGenerateReply)
	emails.POST("/:id/send", s.handleSend)
	emails.DELETE("/:id", s.handleDelete)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until Shutdown. It blocks.
func (s *Server) Start() error {
	s.logger.Info("HTTP API listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSync(c *gin.Context) {
	stats, err := s.pipeline.SyncNow(c.Request.Context())
	switch {
	case errors.Is(err, core.ErrNoAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		s.logger.Error("Sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, stats)
	}
}

func (s *Server) handleList(c *gin.Context) {
	messages, err := s.pipeline.ListMessages(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []core.InboundMessage{}
	}
	c.JSON(http.StatusOK, messages)
}

func (s *Server) handleGet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	msg, err := s.pipeline.GetMessage(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, draft, err := s.pipeline.AnalyzeMessage(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := analyzeResponse{
		CategoryID:   result.Category.ID,
		CategoryName: result.Category.Name,
		Confidence:   result.Confidence,
		Method:       result.Method,
		Reason:       result.Reason,
	}
	if draft != nil {
		resp.Draft = draft.Body
		resp.DraftSource = draft.Source
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGenerateReply(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	draft, err := s.pipeline.GenerateReply(c.Request.Context(), id)
	switch {
	case errors.Is(err, core.ErrNoDraft):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		s.logger.Error("Draft generation failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"draft": draft.Body, "draft_source": draft.Source})
	}
}

func (s *Server) handleSend(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	// An empty body means "send the stored draft as-is".
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := s.pipeline.SendReply(c.Request.Context(), id, req.Body, req.CategoryID)
	switch {
	case errors.Is(err, core.ErrNoDraft), errors.Is(err, core.ErrNoAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		s.logger.Error("Send failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"smtp_response": resp})
	}
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.pipeline.DeleteMessage(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, false
	}
	return id, true
}
