package crm

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/doms-project/crmpulse/internal/observability"
)

// Mode selects the positional scheme for a traversal.
type Mode int

const (
	// PageMode increments an integer page parameter.
	PageMode Mode = iota
	// CursorMode follows the opaque cursor returned by the previous page.
	CursorMode
)

const (
	defaultPageParam   = "page"
	defaultSizeParam   = "limit"
	defaultCursorParam = "cursor"
	defaultPageSize    = 100
	defaultMaxPages    = 10
)

// Traversal describes one bounded walk over a list endpoint.
type Traversal struct {
	Endpoint string
	Mode     Mode
	PageSize int
	// MaxPages bounds the number of requests regardless of upstream
	// behavior, including an upstream that always returns a cursor.
	MaxPages int
	Params   url.Values

	// Parameter names, overridable per endpoint. Zero values take the
	// defaults above.
	PageParam   string
	SizeParam   string
	CursorParam string
}

// TraversalResult carries the collected batches plus the authoritative total
// when the first page's metadata supplied one.
type TraversalResult struct {
	Batches  [][]Record
	Pages    int
	Total    int
	HasTotal bool
	// Truncated is set when the traversal stopped at MaxPages while upstream
	// still offered more data.
	Truncated bool
}

// Records flattens the collected batches.
func (r TraversalResult) Records() []Record {
	if len(r.Batches) == 1 {
		return r.Batches[0]
	}
	size := 0
	for _, batch := range r.Batches {
		size += len(batch)
	}
	out := make([]Record, 0, size)
	for _, batch := range r.Batches {
		out = append(out, batch...)
	}
	return out
}

// Collector walks paginated endpoints sequentially, pacing requests to
// respect upstream per-location rate limits.
type Collector struct {
	client      *Client
	minInterval time.Duration
	log         *slog.Logger
}

// NewCollector constructs a collector. minInterval is the lower bound
// between successive requests within one traversal; the limiter gates the
// next request, so no delay is spent after the terminal page.
func NewCollector(client *Client, minInterval time.Duration, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{client: client, minInterval: minInterval, log: log}
}

// newLimiter issues a fresh pacing bucket. Each traversal gets its own:
// upstream limits are per location, so concurrent traversals must not pace
// each other.
func (c *Collector) newLimiter() *rate.Limiter {
	if c.minInterval > 0 {
		return rate.NewLimiter(rate.Every(c.minInterval), 1)
	}
	return rate.NewLimiter(rate.Inf, 1)
}

// Collect walks the endpoint from page/cursor zero until the endpoint is
// exhausted or a safety bound trips. It is not restartable mid-stream; a
// fresh call starts over.
//
// On an error partway through, the partial result collected so far is
// returned alongside the classified error so the caller can decide between
// degrading and recording an auth failure.
func (c *Collector) Collect(ctx context.Context, credential string, t Traversal) (TraversalResult, error) {
	pageSize := t.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxPages := t.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	ctx, span := observability.StartTraversalSpan(ctx, t.Endpoint)
	defer span.End()

	limiter := c.newLimiter()
	result := TraversalResult{}
	cursor := ""

	for pageIndex := 0; pageIndex < maxPages; pageIndex++ {
		if err := limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return result, err
		}

		params := cloneValues(t.Params)
		params.Set(paramName(t.SizeParam, defaultSizeParam), strconv.Itoa(pageSize))
		switch t.Mode {
		case CursorMode:
			if cursor != "" {
				params.Set(paramName(t.CursorParam, defaultCursorParam), cursor)
			}
		default:
			params.Set(paramName(t.PageParam, defaultPageParam), strconv.Itoa(pageIndex+1))
		}

		page, err := c.client.FetchPage(ctx, credential, t.Endpoint, params)
		if err != nil {
			span.RecordError(err)
			c.log.WarnContext(ctx, "traversal stopped early",
				"endpoint", t.Endpoint,
				"pages_collected", result.Pages,
				"error", err,
			)
			return result, err
		}

		if pageIndex == 0 && page.HasTotal {
			result.Total = page.Total
			result.HasTotal = true
		}
		if len(page.Records) == 0 {
			return result, nil
		}
		result.Batches = append(result.Batches, page.Records)
		result.Pages++

		switch t.Mode {
		case CursorMode:
			if page.NextCursor == "" {
				return result, nil
			}
			cursor = page.NextCursor
		default:
			if len(page.Records) < pageSize {
				return result, nil
			}
		}
	}

	result.Truncated = true
	return result, nil
}

func paramName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func cloneValues(values url.Values) url.Values {
	out := url.Values{}
	for key, list := range values {
		for _, value := range list {
			out.Add(key, value)
		}
	}
	return out
}
