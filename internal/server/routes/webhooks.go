package routes

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	appservices "github.com/doms-project/crmpulse/internal/app/services"
)

const (
	// SignatureHeader is the HMAC signature header.
	SignatureHeader = "X-Webhook-Signature"
	maxPayloadBytes = 1 << 20
)

// WebhookRoutes registers webhook endpoints.
type WebhookRoutes struct {
	invalidation *appservices.InvalidationService
	log          *slog.Logger
}

// NewWebhookRoutes constructs webhook routes.
func NewWebhookRoutes(invalidation *appservices.InvalidationService, log *slog.Logger) *WebhookRoutes {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookRoutes{invalidation: invalidation, log: log}
}

// RegisterRoutes registers webhook endpoints.
func (w *WebhookRoutes) RegisterRoutes(s *echo.Echo) {
	s.POST("/webhooks/crm-events", w.handleCRMEvent)
}

func (w *WebhookRoutes) handleCRMEvent(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid payload"))
	}

	dropped, err := w.invalidation.Invalidate(c.Request().Context(), appservices.InvalidateCommand{
		SignatureHeader: c.Request().Header.Get(SignatureHeader),
		Headers:         c.Request().Header,
		Body:            body,
	})
	if err != nil {
		switch appservices.ClassifyInvalidateError(err) {
		case appservices.InvalidateErrorInvalidSignature:
			return c.JSON(http.StatusUnauthorized, errorBody("invalid signature"))
		case appservices.InvalidateErrorInvalidPayload:
			return c.JSON(http.StatusBadRequest, errorBody("invalid payload"))
		case appservices.InvalidateErrorUnsupportedType:
			return c.JSON(http.StatusUnprocessableEntity, errorBody("unsupported event type"))
		default:
			return err
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"invalidated": dropped})
}
