package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhsmarket/internal/blob"
	"xhsmarket/internal/service"
	"xhsmarket/internal/service/asset"
)

type AssetHandler struct {
	assets *asset.Service
	blobs  blob.Store
	logger *zap.Logger
}

func NewAssetHandler(assets *asset.Service, blobs blob.Store, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, blobs: blobs, logger: logger}
}

// List handles GET /api/assets?folder=&type=&tag=&q=; admins may pass owner.
func (h *AssetHandler) List(c *gin.Context) {
	actor := actorFrom(c)
	owner := actor.UserID
	if o := c.Query("owner"); o != "" && actor.IsAdmin() {
		owner = o
	}

	items, err := h.assets.List(c.Request.Context(), asset.Filter{
		OwnerID: owner,
		Folder:  c.Query("folder"),
		Type:    c.Query("type"),
		Tag:     c.Query("tag"),
		Search:  c.Query("q"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// Folders handles GET /api/assets/folders
func (h *AssetHandler) Folders(c *gin.Context) {
	folders, err := h.assets.Folders(c.Request.Context(), c.GetString(CtxUserID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": folders})
}

// Get handles GET /api/assets/:id
func (h *AssetHandler) Get(c *gin.Context) {
	a, err := h.assets.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Upload handles POST /api/assets (multipart: file, folder, tags)
func (h *AssetHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer f.Close()

	var tags []string
	if raw := c.PostForm("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}

	a, err := h.assets.Upload(c.Request.Context(), actorFrom(c), asset.UploadInput{
		Name:   fh.Filename,
		Folder: c.PostForm("folder"),
		Tags:   tags,
		Reader: f,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// Update handles PUT and PATCH /api/assets/:id
func (h *AssetHandler) Update(c *gin.Context) {
	var req asset.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	a, err := h.assets.Update(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Delete handles DELETE /api/assets/:id
func (h *AssetHandler) Delete(c *gin.Context) {
	if err := h.assets.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Download handles GET /api/assets/:id/download
func (h *AssetHandler) Download(c *gin.Context) {
	a, rc, err := h.assets.Open(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, a.Size, a.MimeType, rc, map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(a.Name),
	})
}

// publicPrefixes are the blob namespaces anyone may read. Asset
// originals go through Download, which checks ownership.
var publicPrefixes = []string{"artworks/", "thumbnails/"}

func isPublicKey(key string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// File handles GET /api/files/*key for blobs stored without a public URL.
func (h *AssetHandler) File(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		badRequest(c, "invalid key")
		return
	}
	if !isPublicKey(key) {
		// private objects are reported as missing
		respondError(c, h.logger, service.ErrNotFound)
		return
	}

	rc, info, err := h.blobs.Get(c.Request.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		respondError(c, h.logger, service.ErrNotFound)
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, nil)
}
