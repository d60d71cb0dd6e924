package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/doms-project/crmpulse/internal/app/domain"
	appservices "github.com/doms-project/crmpulse/internal/app/services"
	"github.com/doms-project/crmpulse/internal/crm"
)

const bearerPrefix = "Bearer "

// MetricsRoutes registers metric aggregation endpoints.
type MetricsRoutes struct {
	aggregator *appservices.AggregationService
	log        *slog.Logger
}

// NewMetricsRoutes constructs metric routes.
func NewMetricsRoutes(aggregator *appservices.AggregationService, log *slog.Logger) *MetricsRoutes {
	if log == nil {
		log = slog.Default()
	}
	return &MetricsRoutes{aggregator: aggregator, log: log}
}

// RegisterRoutes registers metric aggregation endpoints.
func (m *MetricsRoutes) RegisterRoutes(s *echo.Echo) {
	api := s.Group("/api/v1")

	api.GET("/locations/:locationId/metrics/:kind", m.handleGetMetric)
}

func (m *MetricsRoutes) handleGetMetric(c echo.Context) error {
	credential := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))

	req := appservices.AggregateRequest{
		LocationID:   c.Param("locationId"),
		LocationName: c.QueryParam("locationName"),
		Credential:   credential,
		Kind:         domain.MetricKind(c.Param("kind")),
		ForceRefresh: boolParam(c.QueryParam("refresh")),
	}
	if window, err := strconv.Atoi(c.QueryParam("window")); err == nil && window > 0 {
		req.WindowDays = window
	}

	resp, err := m.aggregator.Aggregate(c.Request().Context(), req)
	if err != nil {
		return metricErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func metricErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, appservices.ErrMissingCredential):
		return c.JSON(http.StatusUnauthorized, errorBody("missing bearer credential"))
	case errors.Is(err, appservices.ErrUnauthorizedCredential), crm.IsAuth(err):
		return c.JSON(http.StatusUnauthorized, errorBody("credential rejected by upstream"))
	case errors.Is(err, appservices.ErrUnknownMetricKind):
		return c.JSON(http.StatusNotFound, errorBody("unknown metric kind"))
	case crm.IsUnsupported(err):
		return c.JSON(http.StatusUnprocessableEntity, errorBody("metric not supported for this location"))
	default:
		return c.JSON(http.StatusBadGateway, errorBody("upstream aggregation failed"))
	}
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func bearerToken(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, bearerPrefix))
}

func boolParam(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}
