package payments

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homebuild/project-portal/project-portal-backend/internal/export"
	"homebuild/project-portal/project-portal-backend/internal/middleware"
	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

const (
	maxReceiptSize = 10 << 20
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handler handles HTTP requests for payment requests
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers payment request routes. The router group must
// already resolve the actor.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/payment-requests", h.listUnified)
	router.GET("/exports/payment-requests", h.exportUnified)
	router.GET("/payment-requests/:kind/:id", h.getRequest)
	router.POST("/payment-requests/:kind", middleware.RequireRole(middleware.RoleContractor), h.createRequest)
	router.POST("/payment-requests/:kind/:id/respond", h.respond)
	router.POST("/payment-requests/:kind/:id/receipt", h.uploadReceipt)
}

type respondRequest struct {
	Action string `json:"action"`
	ResponsePayload
}

// listUnified handles GET /api/v1/payment-requests
func (h *Handler) listUnified(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	list, err := h.service.UnifiedList(c.Request.Context(), ActorRole(actor.Role), actor.ID)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// exportUnified handles GET /api/v1/exports/payment-requests
func (h *Handler) exportUnified(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	list, err := h.service.UnifiedList(c.Request.Context(), ActorRole(actor.Role), actor.ID)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}

	exporter, err := export.NewExcelExporter(export.DefaultExcelOptions())
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	defer exporter.Close()

	if err := writeWorkbook(exporter, list); err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="payment-requests-%s-%d.xlsx"`, actor.Role, actor.ID))
	c.Header("Content-Type", xlsxMIME)
	c.Status(http.StatusOK)
	if err := exporter.WriteTo(c.Writer); err != nil {
		h.logger.Error("Failed to stream export", zap.Int64("actor_id", actor.ID), zap.Error(err))
	}
}

// getRequest handles GET /api/v1/payment-requests/:kind/:id
func (h *Handler) getRequest(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	kind, id, ok := parseRef(c)
	if !ok {
		return
	}

	req, err := h.service.Get(c.Request.Context(), kind, id, actor.ID)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// createRequest handles POST /api/v1/payment-requests/:kind
func (h *Handler) createRequest(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}

	var created *PaymentRequest
	switch kind {
	case KindStage:
		var in NewStageRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			middleware.BadRequest(c, "invalid request body")
			return
		}
		created, err = h.service.CreateStage(c.Request.Context(), actor.ID, in)
	case KindCustom:
		var in NewCustomRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			middleware.BadRequest(c, "invalid request body")
			return
		}
		created, err = h.service.CreateCustom(c.Request.Context(), actor.ID, in)
	}
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// respond handles POST /api/v1/payment-requests/:kind/:id/respond
func (h *Handler) respond(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	kind, id, ok := parseRef(c)
	if !ok {
		return
	}

	var body respondRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.BadRequest(c, "invalid request body")
		return
	}
	action, err := ParseAction(body.Action)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}

	updated, err := h.service.Respond(c.Request.Context(), kind, id, actor.ID, action, body.ResponsePayload)
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.KindOf(err))
	}
	middleware.RecordTransition(string(kind), string(action), outcome)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// uploadReceipt handles POST /api/v1/payment-requests/:kind/:id/receipt
func (h *Handler) uploadReceipt(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	kind, id, ok := parseRef(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		middleware.BadRequest(c, "file is required")
		return
	}
	if header.Size > maxReceiptSize {
		middleware.BadRequest(c, "receipt must be at most 10MB")
		return
	}
	file, err := header.Open()
	if err != nil {
		middleware.BadRequest(c, "unreadable file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	path, err := h.service.AttachReceipt(c.Request.Context(), kind, id, actor.ID, header.Filename, contentType, file)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"receipt_path": path})
}

func (h *Handler) actor(c *gin.Context) (middleware.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "actor not resolved", "code": "MissingToken"})
	}
	return actor, ok
}

func parseRef(c *gin.Context) (Kind, int64, bool) {
	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		middleware.BadRequest(c, err.Error())
		return "", 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.BadRequest(c, "invalid id")
		return "", 0, false
	}
	return kind, id, true
}

var exportColumns = []export.Column{
	{Header: "Type", Width: 10},
	{Header: "ID", Width: 8},
	{Header: "Project", Width: 10},
	{Header: "Title", Width: 36},
	{Header: "Requested Amount", Width: 18},
	{Header: "Approved Amount", Width: 18},
	{Header: "Status", Width: 12},
	{Header: "Verification", Width: 14},
	{Header: "Requested At", Width: 18},
	{Header: "Responded At", Width: 18},
	{Header: "Paid At", Width: 18},
	{Header: "Transaction Reference", Width: 26},
}

func writeWorkbook(e *export.ExcelExporter, list *UnifiedList) error {
	if err := e.WriteHeader(exportColumns); err != nil {
		return err
	}
	for _, r := range list.Requests {
		if err := e.WriteRow(
			string(r.Kind), r.ID, r.ProjectID, r.Title,
			r.RequestedAmount, r.ApprovedAmount,
			string(r.Status), string(r.VerificationStatus),
			r.RequestDate, r.ResponseDate, r.PaymentDate,
			r.TransactionReference,
		); err != nil {
			return err
		}
	}
	return nil
}
