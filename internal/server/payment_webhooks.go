package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"go.uber.org/zap"
)

// maxWebhookBody bounds gateway payloads; real events are a few KB.
const maxWebhookBody = 1 << 20

var errPayloadTooLarge = errors.New("payload_too_large")

// HandlePaymentWebhook is the unauthenticated gateway callback. The adapter
// signature check is the only trust boundary, so nothing is read from actor
// headers here.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(payload) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(payload) > maxWebhookBody {
		s.log.Warn("webhook payload too large", zap.String("provider", provider))
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: errorPayload{
			Type:    "invalid_request",
			Message: errPayloadTooLarge.Error(),
		}})
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		// the gateway retries until it sees a 2xx
		c.JSON(http.StatusOK, gin.H{"status": "ok", "duplicate": true})
	default:
		AbortWithError(c, err)
	}
}
