package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhsmarket/internal/service/project"
)

type ProjectHandler struct {
	projects *project.Service
	logger   *zap.Logger
}

func NewProjectHandler(projects *project.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// List handles GET /api/projects?status=&category=&q=&client=&sort=&limit=&offset=
func (h *ProjectHandler) List(c *gin.Context) {
	res, err := h.projects.List(c.Request.Context(), project.Filter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Search:   c.Query("q"),
		ClientID: c.Query("client"),
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

// Get handles GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create handles POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req project.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	p, err := h.projects.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Update handles PUT and PATCH /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var req project.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	p, err := h.projects.Update(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Apply handles POST /api/projects/:id/apply
func (h *ProjectHandler) Apply(c *gin.Context) {
	p, err := h.projects.Apply(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Assign handles POST /api/projects/:id/assign
func (h *ProjectHandler) Assign(c *gin.Context) {
	var req struct {
		CreatorID string `json:"creatorId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "creatorId is required")
		return
	}

	p, err := h.projects.Assign(c.Request.Context(), actorFrom(c), c.Param("id"), req.CreatorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// SetStatus handles POST /api/projects/:id/status
func (h *ProjectHandler) SetStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	p, err := h.projects.SetStatus(c.Request.Context(), actorFrom(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListTasks handles GET /api/projects/:id/tasks
func (h *ProjectHandler) ListTasks(c *gin.Context) {
	tasks, err := h.projects.ListTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tasks, "total": len(tasks)})
}

// CreateTask handles POST /api/projects/:id/tasks
func (h *ProjectHandler) CreateTask(c *gin.Context) {
	var req project.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	t, err := h.projects.CreateTask(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTask handles PUT and PATCH /api/tasks/:id
func (h *ProjectHandler) UpdateTask(c *gin.Context) {
	var req project.TaskUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	t, err := h.projects.UpdateTask(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTask handles DELETE /api/tasks/:id
func (h *ProjectHandler) DeleteTask(c *gin.Context) {
	if err := h.projects.DeleteTask(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
