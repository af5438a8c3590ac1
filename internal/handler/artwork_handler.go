package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhsmarket/internal/service/artwork"
)

type ArtworkHandler struct {
	artworks *artwork.Service
	logger   *zap.Logger
}

func NewArtworkHandler(artworks *artwork.Service, logger *zap.Logger) *ArtworkHandler {
	return &ArtworkHandler{artworks: artworks, logger: logger}
}

// List handles GET /api/artworks?category=&q=&ai=&artist=&sort=&limit=&offset=
func (h *ArtworkHandler) List(c *gin.Context) {
	res, err := h.artworks.List(c.Request.Context(), artwork.Filter{
		Category: c.Query("category"),
		Search:   c.Query("q"),
		AI:       c.Query("ai"),
		ArtistID: c.Query("artist"),
		Sort:     c.Query("sort"),
		Limit:    queryInt(c, "limit", 0),
		Offset:   queryInt(c, "offset", 0),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Get handles GET /api/artworks/:id and counts a view.
func (h *ArtworkHandler) Get(c *gin.Context) {
	a, err := h.artworks.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Create handles POST /api/artworks
func (h *ArtworkHandler) Create(c *gin.Context) {
	var req artwork.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	a, err := h.artworks.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// Update handles PUT and PATCH /api/artworks/:id
func (h *ArtworkHandler) Update(c *gin.Context) {
	var req artwork.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	a, err := h.artworks.Update(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Delete handles DELETE /api/artworks/:id
func (h *ArtworkHandler) Delete(c *gin.Context) {
	if err := h.artworks.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleLike handles POST /api/artworks/:id/like
func (h *ArtworkHandler) ToggleLike(c *gin.Context) {
	res, err := h.artworks.ToggleLike(c.Request.Context(), c.GetString(CtxUserID), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Liked handles GET /api/me/liked
func (h *ArtworkHandler) Liked(c *gin.Context) {
	items, err := h.artworks.Liked(c.Request.Context(), c.GetString(CtxUserID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}
