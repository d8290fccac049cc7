package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

// PolicyHandler reports the submission policy in effect.
type PolicyHandler struct {
	info domain.PolicyInfo
}

// NewPolicyHandler creates a new PolicyHandler.
func NewPolicyHandler(info domain.PolicyInfo) *PolicyHandler {
	return &PolicyHandler{info: info}
}

// Get handles GET /api/v1/policy
func (h *PolicyHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}
