package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	appservices "github.com/doms-project/crmpulse/internal/app/services"
)

// FailureRoutes registers the credential-failure review endpoints.
type FailureRoutes struct {
	review *appservices.FailureReviewService
	log    *slog.Logger
}

// NewFailureRoutes constructs failure review routes.
func NewFailureRoutes(review *appservices.FailureReviewService, log *slog.Logger) *FailureRoutes {
	if log == nil {
		log = slog.Default()
	}
	return &FailureRoutes{review: review, log: log}
}

// RegisterRoutes registers the failure review endpoints.
func (f *FailureRoutes) RegisterRoutes(s *echo.Echo) {
	api := s.Group("/api/v1")

	api.GET("/failures", f.handleListFailures)
	api.POST("/failures/:locationId/resolve", f.handleResolveFailures)
}

func (f *FailureRoutes) handleListFailures(c echo.Context) error {
	var window time.Duration
	if hours, err := strconv.Atoi(c.QueryParam("window_hours")); err == nil && hours > 0 {
		window = time.Duration(hours) * time.Hour
	}

	failures, err := f.review.ListUnresolved(c.Request().Context(), window)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"failures": failures})
}

type resolveRequest struct {
	Credential string `json:"credential"`
}

func (f *FailureRoutes) handleResolveFailures(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	resolved, err := f.review.ResolveWithCredential(c.Request().Context(), c.Param("locationId"), req.Credential)
	if err != nil {
		switch {
		case errors.Is(err, appservices.ErrMissingCredential):
			return c.JSON(http.StatusBadRequest, errorBody("missing credential"))
		case errors.Is(err, appservices.ErrUnauthorizedCredential):
			return c.JSON(http.StatusUnauthorized, errorBody("replacement credential rejected by upstream"))
		default:
			return c.JSON(http.StatusBadGateway, errorBody("credential verification failed"))
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"resolved": resolved})
}
