package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/usecase"
)

const defaultStreamInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler pushes a submission's state over a WebSocket until it
// reaches a terminal status.
type StreamHandler struct {
	getUC    *usecase.GetSubmissionUsecase
	interval time.Duration
	logger   *zap.Logger
}

// NewStreamHandler creates a new StreamHandler. A non-positive interval
// selects the default poll interval.
func NewStreamHandler(getUC *usecase.GetSubmissionUsecase, interval time.Duration, logger *zap.Logger) *StreamHandler {
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	return &StreamHandler{
		getUC:    getUC,
		interval: interval,
		logger:   logger,
	}
}

// Stream handles GET /api/v1/submissions/:id/stream (WebSocket upgrade)
func (h *StreamHandler) Stream(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission ID format"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("submission_id", idStr))

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		sub, err := h.getUC.Execute(ctx, id)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"error": "Submission not found"})
			return
		}
		if err := conn.WriteJSON(sub); err != nil {
			h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
			return
		}
		if sub.Status.IsTerminal() {
			h.logger.Debug("Submission reached terminal state, closing WebSocket", zap.String("submission_id", idStr))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
