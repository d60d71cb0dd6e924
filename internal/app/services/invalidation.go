package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	cebinding "github.com/cloudevents/sdk-go/v2/binding"
	ceevent "github.com/cloudevents/sdk-go/v2/event"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/doms-project/crmpulse/internal/app/domain"
	"github.com/doms-project/crmpulse/internal/app/ports"
	"github.com/doms-project/crmpulse/internal/cache"
)

var (
	// ErrInvalidSignature indicates request signature validation failure.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidPayload indicates a malformed CloudEvent payload.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrUnsupportedType indicates the event type is not currently accepted.
	ErrUnsupportedType = errors.New("unsupported event type")
)

// DataChangedEventType is the CloudEvent type emitted when upstream location
// data changes and cached aggregates should be recomputed.
const DataChangedEventType = "com.crm.location.data.changed"

// InvalidationService drops cached aggregates in response to signed
// out-of-band change notifications.
type InvalidationService struct {
	cache  ports.MetricCache
	secret string
	log    *slog.Logger
}

// InvalidateErrorKind classifies invalidation failures for transport-specific
// mapping.
type InvalidateErrorKind string

const (
	// InvalidateErrorUnknown is used when error is nil or not classified.
	InvalidateErrorUnknown InvalidateErrorKind = "unknown"
	// InvalidateErrorInvalidSignature indicates signature mismatch.
	InvalidateErrorInvalidSignature InvalidateErrorKind = "invalid_signature"
	// InvalidateErrorInvalidPayload indicates malformed event payload.
	InvalidateErrorInvalidPayload InvalidateErrorKind = "invalid_payload"
	// InvalidateErrorUnsupportedType indicates event type is not accepted.
	InvalidateErrorUnsupportedType InvalidateErrorKind = "unsupported_type"
)

// InvalidateCommand is transport-agnostic invalidation webhook input.
type InvalidateCommand struct {
	SignatureHeader string
	Headers         http.Header
	Body            []byte
}

// NewInvalidationService constructs an invalidation service.
func NewInvalidationService(metricCache ports.MetricCache, secret string, log *slog.Logger) *InvalidationService {
	if log == nil {
		log = slog.Default()
	}
	return &InvalidationService{cache: metricCache, secret: secret, log: log}
}

// ClassifyInvalidateError classifies a returned invalidation error.
func ClassifyInvalidateError(err error) InvalidateErrorKind {
	switch {
	case err == nil:
		return InvalidateErrorUnknown
	case errors.Is(err, ErrInvalidSignature):
		return InvalidateErrorInvalidSignature
	case errors.Is(err, ErrInvalidPayload):
		return InvalidateErrorInvalidPayload
	case errors.Is(err, ErrUnsupportedType):
		return InvalidateErrorUnsupportedType
	default:
		return InvalidateErrorUnknown
	}
}

type dataChangedPayload struct {
	LocationID string `json:"locationId"`
	MetricKind string `json:"metricKind"`
}

// Invalidate validates signature and event, then drops the affected cache
// entries. Returns the number of entries dropped.
func (s *InvalidationService) Invalidate(ctx context.Context, cmd InvalidateCommand) (int, error) {
	if !validSignature(cmd.Body, s.secret, cmd.SignatureHeader) {
		return 0, ErrInvalidSignature
	}

	event, err := parseIncomingEvent(ctx, cmd.Headers, cmd.Body)
	if err != nil {
		return 0, ErrInvalidPayload
	}
	if event.Type() != DataChangedEventType {
		return 0, ErrUnsupportedType
	}

	payload := dataChangedPayload{}
	if err := event.DataAs(&payload); err != nil {
		return 0, ErrInvalidPayload
	}
	locationID := strings.TrimSpace(payload.LocationID)
	if locationID == "" {
		locationID = strings.TrimSpace(event.Subject())
	}
	if locationID == "" {
		return 0, ErrInvalidPayload
	}

	kind := domain.MetricKind(strings.TrimSpace(payload.MetricKind))
	if kind != "" {
		if !kind.Valid() {
			return 0, ErrInvalidPayload
		}
		s.cache.Invalidate(cache.Key{LocationID: locationID, Kind: kind})
		// Every metric feeds the composite score, so it goes stale with any
		// of them.
		if kind != domain.MetricHealthScore {
			s.cache.Invalidate(cache.Key{LocationID: locationID, Kind: domain.MetricHealthScore})
		}
		s.log.InfoContext(ctx, "invalidated cached metric",
			"location_id", locationID, "kind", kind)
		return 1, nil
	}

	dropped := s.cache.InvalidateLocation(locationID)
	s.log.InfoContext(ctx, "invalidated cached location",
		"location_id", locationID, "dropped", dropped)
	return dropped, nil
}

func parseIncomingEvent(ctx context.Context, headers http.Header, body []byte) (*ceevent.Event, error) {
	req := &http.Request{
		Method: http.MethodPost,
		Header: headers.Clone(),
		Body:   io.NopCloser(bytes.NewReader(body)),
	}
	message := cehttp.NewMessageFromHttpRequest(req)
	defer func() {
		_ = message.Finish(nil)
	}()

	return cebinding.ToEvent(ctx, message)
}

func validSignature(body []byte, secret, signature string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
