package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/doms-project/crmpulse/internal/app/domain"
	"github.com/doms-project/crmpulse/internal/cache"
)

const testWebhookSecret = "unit-test-secret"

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func changeEventBody(eventType, locationID, metricKind string) []byte {
	return []byte(fmt.Sprintf(
		`{"specversion":"1.0","id":"evt-1","type":%q,"source":"crm","subject":%q,"datacontenttype":"application/json","data":{"locationId":%q,"metricKind":%q}}`,
		eventType, locationID, locationID, metricKind,
	))
}

func invalidateCommand(body []byte, signature string) InvalidateCommand {
	headers := http.Header{}
	headers.Set("Content-Type", "application/cloudevents+json")
	return InvalidateCommand{
		SignatureHeader: signature,
		Headers:         headers,
		Body:            body,
	}
}

func TestInvalidateRejectsBadSignature(t *testing.T) {
	metricCache := cache.New()
	service := NewInvalidationService(metricCache, testWebhookSecret, nil)

	body := changeEventBody(DataChangedEventType, "loc-1", "")
	_, err := service.Invalidate(context.Background(), invalidateCommand(body, "deadbeef"))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if kind := ClassifyInvalidateError(err); kind != InvalidateErrorInvalidSignature {
		t.Fatalf("unexpected classification %q", kind)
	}
}

func TestInvalidateRejectsUnsupportedType(t *testing.T) {
	service := NewInvalidationService(cache.New(), testWebhookSecret, nil)

	body := changeEventBody("com.crm.contact.created", "loc-1", "")
	_, err := service.Invalidate(context.Background(), invalidateCommand(body, signBody(body)))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestInvalidateRejectsMalformedBody(t *testing.T) {
	service := NewInvalidationService(cache.New(), testWebhookSecret, nil)

	body := []byte(`not json`)
	_, err := service.Invalidate(context.Background(), invalidateCommand(body, signBody(body)))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestInvalidateDropsSingleKindAndScore(t *testing.T) {
	metricCache := cache.New()
	metricCache.Put(cache.Key{LocationID: "loc-1", Kind: domain.MetricContacts}, 1, time.Minute)
	metricCache.Put(cache.Key{LocationID: "loc-1", Kind: domain.MetricHealthScore}, 2, time.Minute)
	metricCache.Put(cache.Key{LocationID: "loc-1", Kind: domain.MetricPipeline}, 3, time.Minute)
	service := NewInvalidationService(metricCache, testWebhookSecret, nil)

	body := changeEventBody(DataChangedEventType, "loc-1", "contacts")
	if _, err := service.Invalidate(context.Background(), invalidateCommand(body, signBody(body))); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}

	if _, ok := metricCache.Get(cache.Key{LocationID: "loc-1", Kind: domain.MetricContacts}); ok {
		t.Fatalf("expected contacts entry dropped")
	}
	if _, ok := metricCache.Get(cache.Key{LocationID: "loc-1", Kind: domain.MetricHealthScore}); ok {
		t.Fatalf("the composite goes stale with any of its inputs")
	}
	if _, ok := metricCache.Get(cache.Key{LocationID: "loc-1", Kind: domain.MetricPipeline}); !ok {
		t.Fatalf("unrelated kinds must survive")
	}
}

func TestInvalidateDropsWholeLocation(t *testing.T) {
	metricCache := cache.New()
	metricCache.Put(cache.Key{LocationID: "loc-1", Kind: domain.MetricContacts}, 1, time.Minute)
	metricCache.Put(cache.Key{LocationID: "loc-1", Kind: domain.MetricPipeline}, 2, time.Minute)
	metricCache.Put(cache.Key{LocationID: "loc-2", Kind: domain.MetricContacts}, 3, time.Minute)
	service := NewInvalidationService(metricCache, testWebhookSecret, nil)

	body := changeEventBody(DataChangedEventType, "loc-1", "")
	dropped, err := service.Invalidate(context.Background(), invalidateCommand(body, signBody(body)))
	if err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}
	if dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}
	if _, ok := metricCache.Get(cache.Key{LocationID: "loc-2", Kind: domain.MetricContacts}); !ok {
		t.Fatalf("other locations must survive")
	}
}

func TestInvalidateRejectsUnknownMetricKind(t *testing.T) {
	service := NewInvalidationService(cache.New(), testWebhookSecret, nil)

	body := changeEventBody(DataChangedEventType, "loc-1", "nonsense")
	_, err := service.Invalidate(context.Background(), invalidateCommand(body, signBody(body)))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}
