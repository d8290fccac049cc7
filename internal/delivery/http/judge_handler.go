package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

// JudgeRequest is the body of POST /api/v1/judge.
type JudgeRequest struct {
	SourceCode string            `json:"source_code"`
	TestCases  []domain.TestCase `json:"test_cases"`
	Limits     domain.Limits     `json:"limits"`
	FailFast   *bool             `json:"fail_fast,omitempty"`
}

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	SourceCode string `json:"source_code"`
}

// JudgeHandler judges submissions synchronously.
type JudgeHandler struct {
	judge          repository.Judge
	analyzer       repository.Analyzer
	defaultLimits  domain.Limits
	defaultOptions domain.Options
	logger         *zap.Logger
}

// NewJudgeHandler creates a new JudgeHandler.
func NewJudgeHandler(
	judge repository.Judge,
	analyzer repository.Analyzer,
	defaultLimits domain.Limits,
	defaultOptions domain.Options,
	logger *zap.Logger,
) *JudgeHandler {
	return &JudgeHandler{
		judge:          judge,
		analyzer:       analyzer,
		defaultLimits:  defaultLimits,
		defaultOptions: defaultOptions,
		logger:         logger,
	}
}

// Judge handles POST /api/v1/judge
func (h *JudgeHandler) Judge(c *gin.Context) {
	var req JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.SourceCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrEmptySourceCode.Error()})
		return
	}

	opts := h.defaultOptions
	if req.FailFast != nil {
		opts.FailFast = *req.FailFast
	}

	verdict, err := h.judge.Judge(c.Request.Context(), req.SourceCode, req.TestCases, req.Limits.Or(h.defaultLimits), opts)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoTestCases), errors.Is(err, domain.ErrInvalidLimits):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrNoInterpreter):
			h.logger.Error("Judge unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Judge temporarily unavailable"})
		default:
			h.logger.Error("Judge failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, verdict)
}

// Analyze handles POST /api/v1/analyze
func (h *JudgeHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	res, err := h.analyzer.Analyze(c.Request.Context(), req.SourceCode)
	if err != nil {
		if errors.Is(err, domain.ErrNoInterpreter) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analyzer temporarily unavailable"})
			return
		}
		h.logger.Error("Analyze failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, res)
}
