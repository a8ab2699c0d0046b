package progress

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homebuild/project-portal/project-portal-backend/internal/middleware"
)

// Handler handles HTTP requests for project progress
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new progress handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers progress routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/projects/:project_id/progress", h.getProgress)
	router.GET("/progress", h.listProgress)
}

// getProgress handles GET /api/v1/projects/:project_id/progress
func (h *Handler) getProgress(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("project_id"), 10, 64)
	if err != nil {
		middleware.BadRequest(c, "invalid project_id")
		return
	}

	progress, err := h.service.CurrentProgress(c.Request.Context(), projectID)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// listProgress handles GET /api/v1/progress?project_ids=1,2,3
func (h *Handler) listProgress(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("project_ids"))
	if raw == "" {
		middleware.BadRequest(c, "project_ids is required")
		return
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			middleware.BadRequest(c, "invalid project id "+strconv.Quote(part))
			return
		}
		ids = append(ids, id)
	}

	byProject, err := h.service.CurrentProgressMany(c.Request.Context(), ids)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}

	items := make([]*Progress, 0, len(byProject))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, byProject[id])
	}

	c.JSON(http.StatusOK, gin.H{"projects": items})
}
