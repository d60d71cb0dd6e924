package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultAPIVersion = "2021-07-28"
	maxResponseBytes  = 8 << 20
)

// ClientConfig configures the upstream CRM client.
type ClientConfig struct {
	BaseURL string
	// APIVersion is sent as the Version header the upstream requires.
	APIVersion string
	Timeout    time.Duration
	// RetryAttempts is the number of extra attempts on transient failures.
	RetryAttempts int
}

// Client talks to the upstream CRM HTTP API. Credentials are per-location
// bearer tokens supplied on every call, never stored on the client.
type Client struct {
	baseURL       string
	apiVersion    string
	httpClient    *http.Client
	retryAttempts int
	log           *slog.Logger
}

// Page is one decoded list response. HasTotal marks the presence of an
// authoritative total in the response metadata.
type Page struct {
	Records    []Record
	Total      int
	HasTotal   bool
	NextCursor string
}

// NewClient constructs a CRM client.
func NewClient(cfg ClientConfig, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	attempts := cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiVersion:    version,
		httpClient:    &http.Client{Timeout: timeout},
		retryAttempts: attempts,
		log:           log,
	}
}

// FetchPage issues one GET against a list endpoint and decodes whichever of
// the three known response shapes comes back: a bare array, an object with an
// array-typed property, or an object with meta pagination alongside results.
// Transient failures are retried a bounded number of times; auth and
// unsupported-endpoint failures are returned immediately.
func (c *Client) FetchPage(ctx context.Context, credential, endpoint string, params url.Values) (Page, error) {
	if strings.TrimSpace(credential) == "" {
		return Page{}, &UpstreamError{Kind: KindAuth, Endpoint: endpoint, Message: "missing credential"}
	}

	requestURL := c.baseURL + endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var page Page
	backoff := retry.WithMaxRetries(uint64(c.retryAttempts), retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, err := c.fetchOnce(ctx, credential, endpoint, requestURL)
		if err != nil {
			if IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		page = fetched
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Client) fetchOnce(ctx context.Context, credential, endpoint, requestURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return Page{}, &UpstreamError{Kind: KindMalformed, Endpoint: endpoint, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Version", c.apiVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, &UpstreamError{Kind: KindTransient, Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Page{}, &UpstreamError{Kind: KindTransient, Endpoint: endpoint, Message: err.Error()}
	}

	if resp.StatusCode >= 300 {
		kind := classifyStatus(resp.StatusCode, body)
		message := strings.TrimSpace(string(body))
		if len(message) > 256 {
			message = message[:256]
		}
		return Page{}, &UpstreamError{Kind: kind, Endpoint: endpoint, StatusCode: resp.StatusCode, Message: message}
	}

	page, err := decodePage(endpoint, body)
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// Array-typed property names probed in order when the response is an object.
var recordListKeys = []string{
	"data", "contacts", "opportunities", "messages", "conversations",
	"forms", "submissions", "surveys", "accounts", "posts", "events", "results",
}

func decodePage(endpoint string, body []byte) (Page, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Page{}, &UpstreamError{Kind: KindMalformed, Endpoint: endpoint, Message: fmt.Sprintf("decode response: %v", err)}
	}

	switch typed := decoded.(type) {
	case []any:
		return Page{Records: toRecords(typed)}, nil
	case map[string]any:
		page := Page{}
		if total, ok := objectTotal(typed); ok {
			page.Total = total
			page.HasTotal = true
		}
		page.NextCursor = objectCursor(typed)

		for _, key := range recordListKeys {
			list, ok := typed[key].([]any)
			if ok {
				page.Records = toRecords(list)
				return page, nil
			}
		}
		// Last resort: any array-valued property.
		for _, value := range typed {
			list, ok := value.([]any)
			if ok {
				page.Records = toRecords(list)
				return page, nil
			}
		}
		if page.HasTotal {
			return page, nil
		}
		return Page{}, &UpstreamError{Kind: KindMalformed, Endpoint: endpoint, Message: "response object carries no record list"}
	default:
		return Page{}, &UpstreamError{Kind: KindMalformed, Endpoint: endpoint, Message: "unexpected response shape"}
	}
}

func toRecords(list []any) []Record {
	records := make([]Record, 0, len(list))
	for _, item := range list {
		entity, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, Record(entity))
	}
	return records
}

func objectTotal(object map[string]any) (int, bool) {
	if meta, ok := object["meta"].(map[string]any); ok {
		if total, ok := numberValue(meta["total"]); ok {
			return total, true
		}
	}
	for _, key := range []string{"total", "totalCount", "count"} {
		if total, ok := numberValue(object[key]); ok {
			return total, true
		}
	}
	return 0, false
}

func objectCursor(object map[string]any) string {
	if meta, ok := object["meta"].(map[string]any); ok {
		for _, key := range []string{"nextCursor", "cursor", "startAfterId"} {
			if cursor, ok := meta[key].(string); ok && strings.TrimSpace(cursor) != "" {
				return strings.TrimSpace(cursor)
			}
		}
	}
	for _, key := range []string{"nextCursor", "cursor"} {
		if cursor, ok := object[key].(string); ok && strings.TrimSpace(cursor) != "" {
			return strings.TrimSpace(cursor)
		}
	}
	return ""
}

func numberValue(raw any) (int, bool) {
	value, ok := raw.(float64)
	if !ok || value < 0 {
		return 0, false
	}
	return int(value), true
}
