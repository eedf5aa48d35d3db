package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carebill/internal/actor"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	billingsummarydomain "github.com/smallbiznis/carebill/internal/billingsummary/domain"
	catalogdomain "github.com/smallbiznis/carebill/internal/catalog/domain"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	fulfillmentdomain "github.com/smallbiznis/carebill/internal/fulfillment/domain"
	leakdomain "github.com/smallbiznis/carebill/internal/leak/domain"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/carebill/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: code,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same classes the client sees.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	if payload.Type == "internal_error" {
		return payload.Type, "internal_error"
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Message
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, actor.ErrInvalidActor),
		errors.Is(err, lineitemdomain.ErrInvalidAmount),
		errors.Is(err, lineitemdomain.ErrInvalidReference),
		errors.Is(err, lineitemdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidReference),
		errors.Is(err, paymentdomain.ErrInvalidStatus),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidCurrency),
		errors.Is(err, encounterdomain.ErrInvalidReference),
		errors.Is(err, encounterdomain.ErrInvalidAmount),
		errors.Is(err, catalogdomain.ErrInvalidCode),
		errors.Is(err, catalogdomain.ErrInvalidAmount),
		errors.Is(err, billingsummarydomain.ErrInvalidReference),
		errors.Is(err, fulfillmentdomain.ErrInvalidEntityType),
		errors.Is(err, fulfillmentdomain.ErrInvalidReference),
		errors.Is(err, leakdomain.ErrInvalidDate),
		errors.Is(err, reconciliationdomain.ErrInvalidDate),
		errors.Is(err, reconciliationdomain.ErrInvalidReference),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, lineitemdomain.ErrDuplicateLineItem),
		errors.Is(err, lineitemdomain.ErrAlreadyPaid),
		errors.Is(err, lineitemdomain.ErrOverAllocation),
		errors.Is(err, lineitemdomain.ErrImmutableRecord),
		errors.Is(err, lineitemdomain.ErrInactiveService),
		errors.Is(err, lineitemdomain.ErrClosedEncounter),
		errors.Is(err, reconciliationdomain.ErrAlreadyFinalized),
		errors.Is(err, reconciliationdomain.ErrReconciliationCancelled),
		errors.Is(err, leakdomain.ErrLeakAlreadyResolved),
		errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, lineitemdomain.ErrLineItemNotFound),
		errors.Is(err, catalogdomain.ErrServiceNotFound),
		errors.Is(err, encounterdomain.ErrEncounterNotFound),
		errors.Is(err, encounterdomain.ErrConsultationNotFound),
		errors.Is(err, fulfillmentdomain.ErrFulfillmentEventNotFound),
		errors.Is(err, leakdomain.ErrLeakNotFound),
		errors.Is(err, reconciliationdomain.ErrReconciliationNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound) {
		return "not found"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	return strings.TrimPrefix(code, "invalid_")
}
