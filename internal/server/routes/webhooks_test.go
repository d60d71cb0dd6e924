package routes

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/doms-project/crmpulse/internal/app/domain"
	appservices "github.com/doms-project/crmpulse/internal/app/services"
	"github.com/doms-project/crmpulse/internal/cache"
)

const webhookTestSecret = "route-test-secret"

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookEcho(metricCache *cache.MetricCache) *echo.Echo {
	invalidation := appservices.NewInvalidationService(metricCache, webhookTestSecret, nil)
	e := echo.New()
	NewWebhookRoutes(invalidation, nil).RegisterRoutes(e)
	return e
}

func postEvent(e *echo.Echo, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/crm-events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/cloudevents+json")
	req.Header.Set(SignatureHeader, signature)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	e := newWebhookEcho(cache.New())

	body := []byte(`{"specversion":"1.0","id":"e1","type":"com.crm.location.data.changed","source":"crm","data":{"locationId":"loc-1"}}`)
	rec := postEvent(e, body, "feedface")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookInvalidatesLocation(t *testing.T) {
	metricCache := cache.New()
	metricCache.Put(cache.Key{LocationID: "loc-1", Kind: domain.MetricContacts}, 1, time.Minute)
	metricCache.Put(cache.Key{LocationID: "loc-1", Kind: domain.MetricHealthScore}, 2, time.Minute)
	e := newWebhookEcho(metricCache)

	body := []byte(fmt.Sprintf(
		`{"specversion":"1.0","id":"e1","type":%q,"source":"crm","datacontenttype":"application/json","data":{"locationId":"loc-1"}}`,
		appservices.DataChangedEventType,
	))
	rec := postEvent(e, body, signWebhookBody(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := metricCache.Get(cache.Key{LocationID: "loc-1", Kind: domain.MetricContacts}); ok {
		t.Fatalf("expected cached entries dropped")
	}
}

func TestWebhookRejectsUnsupportedType(t *testing.T) {
	e := newWebhookEcho(cache.New())

	body := []byte(`{"specversion":"1.0","id":"e1","type":"com.crm.contact.created","source":"crm","data":{"locationId":"loc-1"}}`)
	rec := postEvent(e, body, signWebhookBody(body))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	e := newWebhookEcho(cache.New())

	body := []byte(`definitely not an event`)
	rec := postEvent(e, body, signWebhookBody(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
