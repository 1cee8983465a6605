package approval

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for approval documents
type Handler struct {
	service  *Service
	exporter *InboxExporter
	logger   *zap.Logger
}

// NewHandler creates a new approval handler
func NewHandler(service *Service, exporter *InboxExporter, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		exporter: exporter,
		logger:   logger,
	}
}

// RegisterRoutes registers approval routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	documents := router.Group("/documents")
	{
		documents.POST("", h.createDocument)
		documents.GET("", h.listInbox)
		documents.GET("/statistics", h.inboxStatistics)
		documents.GET("/export", h.exportInbox)
		documents.GET("/my-pending", h.myPendingByMonth)
		documents.GET("/:id", h.getDocument)
		documents.DELETE("/:id", h.deleteDraft)
		documents.GET("/:id/action-buttons", h.getActionButtons)

		documents.POST("/:id/submit", h.submitDocument)
		documents.POST("/:id/cancel-submit", h.cancelSubmit)
		documents.POST("/:id/steps/:stepId/approve", h.approveStep)
		documents.POST("/:id/steps/:stepId/agree", h.completeAgreement)
		documents.POST("/:id/steps/:stepId/reject", h.rejectStep)
		documents.POST("/:id/steps/:stepId/complete-implementation", h.completeImplementation)
		documents.POST("/:id/steps/:stepId/mark-read", h.markReferenceRead)
		documents.POST("/:id/steps/:stepId/cancel-approval", h.cancelApprovalStep)
	}
}

func (h *Handler) viewerID(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get("userID")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	id, ok := raw.(uuid.UUID)
	if !ok || id == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// CreateDocumentRequest creates a draft, optionally submitting it directly.
type CreateDocumentRequest struct {
	Title       string           `json:"title" binding:"required"`
	Content     string           `json:"content"`
	Submit      bool             `json:"submit"`
	Assignments []StepAssignment `json:"assignments"`
}

// createDocument handles POST /api/v1/documents
func (h *Handler) createDocument(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.service.CreateDocument(c.Request.Context(), CreateDocumentInput{
		Title:       req.Title,
		Content:     req.Content,
		DrafterID:   viewerID,
		Submit:      req.Submit,
		Assignments: req.Assignments,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// getDocument handles GET /api/v1/documents/:id
func (h *Handler) getDocument(c *gin.Context) {
	if _, ok := h.viewerID(c); !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.GetDocument(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// deleteDraft handles DELETE /api/v1/documents/:id
func (h *Handler) deleteDraft(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(c.Request.Context(), id, viewerID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getActionButtons handles GET /api/v1/documents/:id/action-buttons
func (h *Handler) getActionButtons(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	buttons, err := h.service.ActionButtonsFor(c.Request.Context(), id, viewerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if buttons == nil {
		buttons = []ActionButton{}
	}
	c.JSON(http.StatusOK, gin.H{"buttons": buttons})
}

// SubmitRequest carries the ordered approver assignments for a submission.
type SubmitRequest struct {
	Assignments []StepAssignment `json:"assignments" binding:"required,min=1,dive"`
}

// submitDocument handles POST /api/v1/documents/:id/submit
func (h *Handler) submitDocument(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.Apply(c.Request.Context(), SubmitAction{
		DocumentID:  id,
		ActorID:     viewerID,
		Assignments: req.Assignments,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) applyStepAction(c *gin.Context, build func(docID, stepID, viewerID uuid.UUID) Action) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	docID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	stepID, ok := h.pathUUID(c, "stepId")
	if !ok {
		return
	}
	result, err := h.service.Apply(c.Request.Context(), build(docID, stepID, viewerID))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// approveStep handles POST /api/v1/documents/:id/steps/:stepId/approve
func (h *Handler) approveStep(c *gin.Context) {
	h.applyStepAction(c, func(docID, stepID, viewerID uuid.UUID) Action {
		return ApproveStepAction{DocumentID: docID, StepID: stepID, ActorID: viewerID}
	})
}

// completeAgreement handles POST /api/v1/documents/:id/steps/:stepId/agree
func (h *Handler) completeAgreement(c *gin.Context) {
	h.applyStepAction(c, func(docID, stepID, viewerID uuid.UUID) Action {
		return CompleteAgreementAction{DocumentID: docID, StepID: stepID, ActorID: viewerID}
	})
}

// RejectRequest carries the mandatory reject comment.
type RejectRequest struct {
	Comment string `json:"comment" binding:"required"`
}

// rejectStep handles POST /api/v1/documents/:id/steps/:stepId/reject
func (h *Handler) rejectStep(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.applyStepAction(c, func(docID, stepID, viewerID uuid.UUID) Action {
		return RejectStepAction{DocumentID: docID, StepID: stepID, ActorID: viewerID, Comment: req.Comment}
	})
}

// completeImplementation handles POST /api/v1/documents/:id/steps/:stepId/complete-implementation
func (h *Handler) completeImplementation(c *gin.Context) {
	h.applyStepAction(c, func(docID, stepID, viewerID uuid.UUID) Action {
		return CompleteImplementationAction{DocumentID: docID, StepID: stepID, ActorID: viewerID}
	})
}

// markReferenceRead handles POST /api/v1/documents/:id/steps/:stepId/mark-read
func (h *Handler) markReferenceRead(c *gin.Context) {
	h.applyStepAction(c, func(docID, stepID, viewerID uuid.UUID) Action {
		return MarkReferenceReadAction{DocumentID: docID, StepID: stepID, ActorID: viewerID}
	})
}

// cancelApprovalStep handles POST /api/v1/documents/:id/steps/:stepId/cancel-approval
func (h *Handler) cancelApprovalStep(c *gin.Context) {
	h.applyStepAction(c, func(docID, stepID, viewerID uuid.UUID) Action {
		return CancelApprovalStepAction{DocumentID: docID, StepID: stepID, ActorID: viewerID}
	})
}

// CancelSubmitRequest withdraws a submission. Discard terminates the document
// instead of returning it to draft.
type CancelSubmitRequest struct {
	Reason  string `json:"reason"`
	Discard bool   `json:"discard"`
}

// cancelSubmit handles POST /api/v1/documents/:id/cancel-submit
func (h *Handler) cancelSubmit(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req CancelSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.Apply(c.Request.Context(), CancelSubmitAction{
		DocumentID: id,
		ActorID:    viewerID,
		Reason:     req.Reason,
		Discard:    req.Discard,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) bindFilter(c *gin.Context) (FilterType, FilterOptions, bool) {
	filter := FilterType(c.DefaultQuery("filter", string(FilterAll)))
	valid := false
	for _, f := range AllFilterTypes {
		if f == filter {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown filter"})
		return "", FilterOptions{}, false
	}

	var opts FilterOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", FilterOptions{}, false
	}
	return filter, opts, true
}

func (h *Handler) getIntParam(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

const maxInboxPageSize = 100

// clampPageSize bounds a caller-supplied page size; each inbox row preloads
// its full step list, so an unbounded limit would pull whole tables.
func clampPageSize(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > maxInboxPageSize {
		return maxInboxPageSize
	}
	return limit
}

// listInbox handles GET /api/v1/documents
func (h *Handler) listInbox(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	filter, opts, ok := h.bindFilter(c)
	if !ok {
		return
	}
	page := h.getIntParam(c, "page", 1)
	limit := clampPageSize(h.getIntParam(c, "limit", 20))

	docs, total, err := h.service.ListInbox(c.Request.Context(), filter, viewerID, opts, page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

// inboxStatistics handles GET /api/v1/documents/statistics
func (h *Handler) inboxStatistics(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	stats, err := h.service.InboxStatistics(c.Request.Context(), viewerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// myPendingByMonth handles GET /api/v1/documents/my-pending?year=&month=
func (h *Handler) myPendingByMonth(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	now := time.Now()
	year := h.getIntParam(c, "year", now.Year())
	month := h.getIntParam(c, "month", int(now.Month()))
	if month < 1 || month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be 1..12"})
		return
	}

	docs, err := h.service.MyPendingByMonth(c.Request.Context(), viewerID, year, time.Month(month))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "year": year, "month": month})
}

// exportInbox handles GET /api/v1/documents/export
func (h *Handler) exportInbox(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	filter, opts, ok := h.bindFilter(c)
	if !ok {
		return
	}

	docs, _, err := h.service.ListInbox(c.Request.Context(), filter, viewerID, opts, 1, 1000)
	if err != nil {
		h.respondError(c, err)
		return
	}

	data, filename, err := h.exporter.Export(docs, filter, viewerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
