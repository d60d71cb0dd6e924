package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{BaseURL: server.URL, RetryAttempts: retries}, nil)
}

func TestFetchPageDecodesBareArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer pit-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := r.Header.Get("Version"); got != "2021-07-28" {
			t.Errorf("unexpected version header %q", got)
		}
		w.Write([]byte(`[{"id":"a"},{"id":"b"}]`))
	}, 0)

	page, err := client.FetchPage(context.Background(), "pit-token", EndpointForms, nil)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(page.Records))
	}
	if page.HasTotal {
		t.Fatalf("bare arrays carry no total")
	}
}

func TestFetchPageDecodesObjectWithMetaTotal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"contacts":[{"id":"a"}],"meta":{"total":1248,"nextCursor":"abc"}}`))
	}, 0)

	page, err := client.FetchPage(context.Background(), "pit-token", EndpointContacts, nil)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if !page.HasTotal || page.Total != 1248 {
		t.Fatalf("expected total 1248, got %d (has=%v)", page.Total, page.HasTotal)
	}
	if page.NextCursor != "abc" {
		t.Fatalf("expected cursor abc, got %q", page.NextCursor)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(page.Records))
	}
}

func TestFetchPageFallsBackToAnyArrayProperty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpectedKey":[{"id":"a"}]}`))
	}, 0)

	page, err := client.FetchPage(context.Background(), "pit-token", EndpointSurveys, nil)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(page.Records))
	}
}

func TestFetchPageClassifiesStatuses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"401 is auth", http.StatusUnauthorized, `{"message":"nope"}`, IsAuth},
		{"422 is unsupported", http.StatusUnprocessableEntity, `{"message":"not enabled"}`, IsUnsupported},
		{"500 is transient", http.StatusInternalServerError, "boom", IsTransient},
		{"400 with token body is auth", http.StatusBadRequest, `{"message":"Jwt expired"}`, IsAuth},
		{"400 otherwise is transient", http.StatusBadRequest, `{"message":"bad filter"}`, IsTransient},
	}

	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(tc.body))
		}, 0)

		_, err := client.FetchPage(context.Background(), "pit-token", EndpointContacts, nil)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.check(err) {
			t.Fatalf("%s: wrong classification: %v", tc.name, err)
		}
	}
}

func TestFetchPageRetriesTransientOnly(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id":"a"}]`))
	}, 2)

	page, err := client.FetchPage(context.Background(), "pit-token", EndpointForms, nil)
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(page.Records))
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchPageDoesNotRetryAuthFailures(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, 3)

	_, err := client.FetchPage(context.Background(), "pit-token", EndpointContacts, nil)
	if !IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("auth failures must not be retried, got %d calls", calls.Load())
	}
}

func TestFetchPageRejectsMissingCredential(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, 0)

	_, err := client.FetchPage(context.Background(), "  ", EndpointContacts, url.Values{})
	if !IsAuth(err) {
		t.Fatalf("expected auth error for missing credential, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("no request should be sent without a credential")
	}
}

func TestFetchPageMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"just a string"`))
	}, 0)

	_, err := client.FetchPage(context.Background(), "pit-token", EndpointContacts, nil)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if IsAuth(err) || IsTransient(err) || IsUnsupported(err) {
		t.Fatalf("expected malformed classification, got %v", err)
	}
}
