package payments

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"menuscore-backend/internal/analyses"
	"menuscore-backend/internal/shared/server/middleware"
	"menuscore-backend/internal/shared/server/respond"
)

// Handler serves the preview, payment and report routes.
type Handler struct {
	Svc  *analyses.Service
	Gate *Gate
}

// NewHandler constructs a Handler.
func NewHandler(svc *analyses.Service, gate *Gate) *Handler {
	return &Handler{Svc: svc, Gate: gate}
}

// RegisterRoutes attaches payment routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses/preview", h.preview)
	rg.POST("/payments", h.recordPayment)
	rg.GET("/payments/details", h.details)
	rg.GET("/reports", h.report)
}

type paymentRequest struct {
	ID         string `json:"id"`
	PayerName  string `json:"payerName"`
	PayerEmail string `json:"payerEmail"`
}

func (h *Handler) preview(c *gin.Context) {
	id, ok := analyses.RequireID(c, c.Query("id"))
	if !ok {
		return
	}

	ctx := analyses.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	a, err := h.Svc.GetPreview(ctx, id)
	if err != nil {
		analyses.WriteError(c, err, "failed to fetch preview")
		return
	}
	a = h.Gate.Preview(a)
	respond.OK(c, gin.H{
		"id":       a.ID,
		"status":   a.Status,
		"unlocked": a.IsPaid(),
		"results":  a.Results,
	})
}

func (h *Handler) recordPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", respond.FieldIssue("body", "malformed"))
		return
	}
	id, ok := analyses.RequireID(c, req.ID)
	if !ok {
		return
	}

	ctx := analyses.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	payment, err := h.Gate.RecordPayment(ctx, id, Payer{Name: req.PayerName, Email: req.PayerEmail})
	if err != nil {
		analyses.WriteError(c, err, "failed to record payment")
		return
	}
	respond.OK(c, gin.H{
		"id":     id,
		"status": payment.Status,
	})
}

func (h *Handler) details(c *gin.Context) {
	id, ok := analyses.RequireID(c, c.Query("id"))
	if !ok {
		return
	}

	details, err := h.Gate.PurchaseDetails(c.Request.Context(), id)
	if err != nil {
		analyses.WriteError(c, err, "failed to fetch purchase details")
		return
	}
	respond.OK(c, details)
}

// report returns the full result and records the download.
func (h *Handler) report(c *gin.Context) {
	id, ok := analyses.RequireID(c, c.Query("id"))
	if !ok {
		return
	}

	ctx := analyses.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	a, err := h.Svc.GetFullResult(ctx, id)
	if err != nil {
		analyses.WriteError(c, err, "failed to fetch report")
		return
	}
	count, err := h.Gate.RegisterDownload(ctx, id, c.ClientIP())
	if err != nil {
		analyses.WriteError(c, err, "failed to register download")
		return
	}
	purchase := h.Gate.purchaseDetails(a)
	purchase.DownloadCount = count

	respond.OK(c, gin.H{
		"id":            a.ID,
		"sourceLink":    a.SourceLink,
		"results":       a.Results,
		"completedAt":   a.CompletedAt,
		"downloadCount": count,
		"purchase":      purchase,
	})
}
