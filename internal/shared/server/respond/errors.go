package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"menuscore-backend/internal/shared/telemetry"
)

// Error codes shared by every handler.
const (
	CodeValidation          = "validation_error"
	CodeNotFound            = "not_found"
	CodeNotReady            = "not_ready"
	CodePaymentRequired     = "payment_required"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeUpstreamError       = "upstream_error"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal_error"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if analysisID := c.GetString("analysisId"); analysisID != "" {
		fields["analysis_id"] = analysisID
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FieldIssue is the detail entry for validation errors.
func FieldIssue(field, issue string) []map[string]string {
	return []map[string]string{{"field": field, "issue": issue}}
}
