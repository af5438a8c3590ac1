package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhsmarket/internal/service/creator"
)

type CreatorHandler struct {
	creators *creator.Service
	logger   *zap.Logger
}

func NewCreatorHandler(creators *creator.Service, logger *zap.Logger) *CreatorHandler {
	return &CreatorHandler{creators: creators, logger: logger}
}

// List handles GET /api/creators?q=&specialty=&sort=
func (h *CreatorHandler) List(c *gin.Context) {
	items, err := h.creators.List(c.Request.Context(), creator.Filter{
		Search:    c.Query("q"),
		Specialty: c.Query("specialty"),
		Sort:      c.Query("sort"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// Get handles GET /api/creators/:id
func (h *CreatorHandler) Get(c *gin.Context) {
	p, err := h.creators.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
