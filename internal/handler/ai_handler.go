package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhsmarket/internal/service/ai"
)

type AIHandler struct {
	ai     *ai.Service
	logger *zap.Logger
}

func NewAIHandler(aiService *ai.Service, logger *zap.Logger) *AIHandler {
	return &AIHandler{ai: aiService, logger: logger}
}

// Generate handles POST /api/ai/generate
func (h *AIHandler) Generate(c *gin.Context) {
	var req ai.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.UserID = c.GetString(CtxUserID)

	res, err := h.ai.GenerateImage(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
