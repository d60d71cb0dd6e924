package services

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/doms-project/crmpulse/internal/app/ports"
	"github.com/doms-project/crmpulse/internal/crm"
)

const defaultFailureWindow = 24 * time.Hour

// FailureReviewService exposes the authentication-failure log for operator
// review and resolves entries once a replacement credential is verified.
type FailureReviewService struct {
	failures ports.FailureStore
	fetcher  PageFetcher
	log      *slog.Logger
}

// NewFailureReviewService constructs a failure review service.
func NewFailureReviewService(failures ports.FailureStore, fetcher PageFetcher, log *slog.Logger) *FailureReviewService {
	if log == nil {
		log = slog.Default()
	}
	return &FailureReviewService{failures: failures, fetcher: fetcher, log: log}
}

// ListUnresolved returns unresolved failures within the window, one row per
// location. A non-positive window falls back to the last 24 hours.
func (s *FailureReviewService) ListUnresolved(ctx context.Context, window time.Duration) ([]ports.UnresolvedFailure, error) {
	if window <= 0 {
		window = defaultFailureWindow
	}
	return s.failures.ListUnresolved(ctx, window)
}

// ResolveWithCredential verifies the replacement credential against the
// cheapest upstream endpoint before marking the location's failures
// resolved. A rejected credential leaves the log untouched.
func (s *FailureReviewService) ResolveWithCredential(ctx context.Context, locationID, credential string) (int64, error) {
	if credential == "" {
		return 0, ErrMissingCredential
	}

	params := url.Values{}
	params.Set("locationId", locationID)
	params.Set("limit", "1")
	if _, err := s.fetcher.FetchPage(ctx, credential, crm.EndpointContacts, params); err != nil {
		if crm.IsAuth(err) {
			return 0, ErrUnauthorizedCredential
		}
		return 0, err
	}

	resolved, err := s.failures.Resolve(ctx, locationID)
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "resolved credential failures",
		"location_id", locationID, "resolved", resolved)
	return resolved, nil
}
