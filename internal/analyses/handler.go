package analyses

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"menuscore-backend/internal/shared/server/middleware"
	"menuscore-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.submit)
	rg.GET("/analyses/status", h.status)
	rg.POST("/analyses/contact", h.saveContact)
	rg.GET("/analyses/contact", h.getContact)
}

type submitRequest struct {
	Link string `json:"link"`
}

type contactRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", respond.FieldIssue("body", "malformed"))
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, err := h.Svc.Submit(ctx, req.Link)
	if err != nil {
		WriteError(c, err, "failed to start analysis")
		return
	}
	c.Set("analysisId", analysis.ID)

	respond.Accepted(c, gin.H{
		"id":     analysis.ID,
		"status": analysis.Status,
	})
}

func (h *Handler) status(c *gin.Context) {
	id, ok := RequireID(c, c.Query("id"))
	if !ok {
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	st, err := h.Svc.GetStatus(ctx, id)
	if err != nil {
		WriteError(c, err, "failed to fetch analysis status")
		return
	}
	if st.Transition != "" {
		c.Set("statusTransition", st.Transition)
	}
	respond.OK(c, st)
}

func (h *Handler) saveContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", respond.FieldIssue("body", "malformed"))
		return
	}
	id, ok := RequireID(c, req.ID)
	if !ok {
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	err := h.Svc.SaveContact(ctx, id, Contact{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err != nil {
		WriteError(c, err, "failed to save contact")
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *Handler) getContact(c *gin.Context) {
	id, ok := RequireID(c, c.Query("id"))
	if !ok {
		return
	}

	contact, found, err := h.Svc.GetContact(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err, "failed to fetch contact")
		return
	}
	if !found {
		respond.OK(c, gin.H{})
		return
	}
	respond.OK(c, contact)
}

// RequireID validates an analysis id parameter, writing a 400 when it is missing.
func RequireID(c *gin.Context, raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "analysis id is required", respond.FieldIssue("id", "required"))
		return "", false
	}
	c.Set("analysisId", id)
	return id, true
}

// WriteError maps service errors to the standard error response.
func WriteError(c *gin.Context, err error, fallback string) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, vErr.Error(), respond.FieldIssue(vErr.Field, vErr.Issue))
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "analysis not found", nil)
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusConflict, respond.CodeNotReady, "analysis is not ready yet", nil)
	case errors.Is(err, ErrPaymentRequired):
		respond.Error(c, http.StatusPaymentRequired, respond.CodePaymentRequired, "payment required to access the full report", nil)
	case errors.Is(err, ErrUpstreamUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodeUpstreamUnavailable, "extraction service is unavailable, try again later", nil)
	case errors.Is(err, ErrUpstreamError):
		respond.Error(c, http.StatusBadGateway, respond.CodeUpstreamError, "extraction service rejected the request", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, fallback, nil)
	}
}
