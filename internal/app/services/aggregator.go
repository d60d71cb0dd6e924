package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doms-project/crmpulse/internal/app/domain"
	"github.com/doms-project/crmpulse/internal/app/ports"
	"github.com/doms-project/crmpulse/internal/cache"
	"github.com/doms-project/crmpulse/internal/crm"
	"github.com/doms-project/crmpulse/internal/metrics"
	"github.com/doms-project/crmpulse/internal/observability"
)

var (
	// ErrMissingCredential indicates the request carried no bearer token.
	ErrMissingCredential = errors.New("missing credential")
	// ErrUnknownMetricKind indicates an unrecognized metric kind.
	ErrUnknownMetricKind = errors.New("unknown metric kind")
	// ErrUnauthorizedCredential indicates the upstream rejected the
	// credential and no cached value exists to fall back on.
	ErrUnauthorizedCredential = errors.New("credential rejected by upstream")
)

// PageFetcher issues single list-endpoint requests.
type PageFetcher interface {
	FetchPage(ctx context.Context, credential, endpoint string, params url.Values) (crm.Page, error)
}

// Traverser walks paginated endpoints.
type Traverser interface {
	Collect(ctx context.Context, credential string, t crm.Traversal) (crm.TraversalResult, error)
}

// AggregatorConfig tunes traversal bounds and fallback policy.
type AggregatorConfig struct {
	PageSize             int
	MaxPages             int
	ConversationChannels []string
	ConversationMaxPages int
	SocialLookback       time.Duration
	AgingThreshold       time.Duration
	CacheTTL             time.Duration
	ExtractorTimeout     time.Duration
}

// AggregationService owns one aggregation request end to end: cache check,
// collection, extraction, scoring, caching. The cache and failure store are
// process-wide shared state injected at construction.
type AggregationService struct {
	fetcher   PageFetcher
	collector Traverser
	cache     ports.MetricCache
	failures  ports.FailureStore
	cfg       AggregatorConfig
	log       *slog.Logger
	now       func() time.Time
}

// NewAggregationService constructs the orchestrator.
func NewAggregationService(fetcher PageFetcher, collector Traverser, metricCache ports.MetricCache, failures ports.FailureStore, cfg AggregatorConfig, log *slog.Logger) *AggregationService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if len(cfg.ConversationChannels) == 0 {
		cfg.ConversationChannels = []string{"sms"}
	}
	if cfg.ConversationMaxPages <= 0 {
		cfg.ConversationMaxPages = 3
	}
	if cfg.SocialLookback <= 0 {
		cfg.SocialLookback = 30 * 24 * time.Hour
	}
	if cfg.AgingThreshold <= 0 {
		cfg.AgingThreshold = metrics.DefaultAgingThreshold
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.ExtractorTimeout <= 0 {
		cfg.ExtractorTimeout = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &AggregationService{
		fetcher:   fetcher,
		collector: collector,
		cache:     metricCache,
		failures:  failures,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// AggregateRequest is one caller-facing aggregation request.
type AggregateRequest struct {
	LocationID   string
	LocationName string
	Credential   string
	Kind         domain.MetricKind
	ForceRefresh bool
	WindowDays   int
}

// AggregateResponse carries the aggregate with its provenance. Partial marks
// a value assembled with one or more degraded sub-metrics; Degraded names
// them.
type AggregateResponse struct {
	Value      any               `json:"value"`
	Kind       domain.MetricKind `json:"kind"`
	Cached     bool              `json:"cached"`
	ComputedAt time.Time         `json:"computedAt"`
	Partial    bool              `json:"partial,omitempty"`
	Degraded   []string          `json:"degraded,omitempty"`
}

// Aggregate resolves one metric kind for a location, serving from cache when
// fresh. A single failing signal source never fails a health-score request;
// its documented zero-value fallback is substituted instead.
func (s *AggregationService) Aggregate(ctx context.Context, req AggregateRequest) (AggregateResponse, error) {
	if req.Credential == "" {
		return AggregateResponse{}, ErrMissingCredential
	}
	if !req.Kind.Valid() {
		return AggregateResponse{}, ErrUnknownMetricKind
	}
	ctx = observability.WithLocationID(ctx, req.LocationID)

	key := cache.Key{LocationID: req.LocationID, Kind: req.Kind}
	if !req.ForceRefresh {
		if entry, ok := s.cache.Get(key); ok {
			return AggregateResponse{
				Value:      entry.Value,
				Kind:       req.Kind,
				Cached:     true,
				ComputedAt: entry.ComputedAt,
			}, nil
		}
	}

	var (
		value    any
		degraded []string
		err      error
	)
	if req.Kind == domain.MetricHealthScore {
		value, degraded, err = s.computeHealthScore(ctx, req)
	} else {
		value, degraded, err = s.computeSingle(ctx, req, req.Kind)
	}
	if err != nil {
		return AggregateResponse{}, err
	}

	computedAt := s.now().UTC()
	s.cache.Put(key, value, s.cfg.CacheTTL)

	return AggregateResponse{
		Value:      value,
		Kind:       req.Kind,
		ComputedAt: computedAt,
		Partial:    len(degraded) > 0,
		Degraded:   degraded,
	}, nil
}

// computeSingle resolves one non-composite metric kind. An auth failure with
// nothing collected is fatal for the request; partial data is returned
// flagged instead.
func (s *AggregationService) computeSingle(ctx context.Context, req AggregateRequest, kind domain.MetricKind) (any, []string, error) {
	result := s.runExtractor(ctx, req, kind)
	if result.err != nil {
		if crm.IsAuth(result.err) {
			return nil, nil, ErrUnauthorizedCredential
		}
		return nil, nil, result.err
	}
	if result.degraded {
		return result.value, []string{string(kind)}, nil
	}
	return result.value, nil, nil
}

// The six independent signal sources fanned out for a health-score request.
// Contact and opportunity counts ride along with the traversals that already
// visit those endpoints.
var healthScoreKinds = []domain.MetricKind{
	domain.MetricLeads,
	domain.MetricPipeline,
	domain.MetricConversations,
	domain.MetricForms,
	domain.MetricSurveys,
	domain.MetricSocial,
}

func (s *AggregationService) computeHealthScore(ctx context.Context, req AggregateRequest) (any, []string, error) {
	var (
		mu       sync.Mutex
		inputs   metrics.HealthInputs
		degraded []string
		authHits int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, kind := range healthScoreKinds {
		group.Go(func() error {
			extractorCtx, cancel := context.WithTimeout(groupCtx, s.cfg.ExtractorTimeout)
			defer cancel()

			result := s.runExtractor(extractorCtx, req, kind)

			mu.Lock()
			defer mu.Unlock()
			if result.err != nil || result.degraded {
				degraded = append(degraded, string(kind))
			}
			if result.err != nil {
				if crm.IsAuth(result.err) {
					authHits++
				}
				s.log.WarnContext(extractorCtx, "extractor degraded to fallback",
					"kind", kind, "error", result.err)
				return nil
			}
			result.apply(&inputs)
			return nil
		})
	}
	// Extractor errors never propagate; the group only carries ctx wiring.
	_ = group.Wait()

	if authHits == len(healthScoreKinds) {
		return nil, nil, ErrUnauthorizedCredential
	}

	sort.Strings(degraded)
	breakdown := metrics.ComputeHealthScore(inputs, s.now())
	return breakdown, degraded, nil
}

// extractorResult is one signal source's outcome: a value with an optional
// degradation flag, or a classified error for which the orchestrator
// substitutes the documented zero-value fallback.
type extractorResult struct {
	value    any
	apply    func(*metrics.HealthInputs)
	degraded bool
	err      error
}

func (s *AggregationService) runExtractor(ctx context.Context, req AggregateRequest, kind domain.MetricKind) extractorResult {
	switch kind {
	case domain.MetricContacts:
		return s.extractCount(ctx, req, crm.EndpointContacts, "locationId", func(inputs *metrics.HealthInputs, count domain.CountAggregate) {
			inputs.Contacts = count
		})
	case domain.MetricOpportunities:
		return s.extractCount(ctx, req, crm.EndpointOpportunities, "location_id", func(inputs *metrics.HealthInputs, count domain.CountAggregate) {
			inputs.Opportunities = count
		})
	case domain.MetricForms:
		return s.extractCount(ctx, req, crm.EndpointForms, "locationId", func(inputs *metrics.HealthInputs, count domain.CountAggregate) {
			inputs.Forms = count
		})
	case domain.MetricSurveys:
		return s.extractCount(ctx, req, crm.EndpointSurveys, "locationId", func(inputs *metrics.HealthInputs, count domain.CountAggregate) {
			inputs.Surveys = count
		})
	case domain.MetricLeads:
		return s.extractLeads(ctx, req)
	case domain.MetricPipeline:
		return s.extractPipeline(ctx, req)
	case domain.MetricConversations:
		return s.extractConversations(ctx, req)
	case domain.MetricSocial:
		return s.extractSocial(ctx, req)
	default:
		return extractorResult{err: ErrUnknownMetricKind}
	}
}

// extractCount prefers one cheap call with an authoritative meta total over
// paginating to an exact count; without the metadata the first-page size is
// reported as a flagged estimate.
func (s *AggregationService) extractCount(ctx context.Context, req AggregateRequest, endpoint, locationParam string, apply func(*metrics.HealthInputs, domain.CountAggregate)) extractorResult {
	params := url.Values{}
	params.Set(locationParam, req.LocationID)

	page, err := s.fetcher.FetchPage(ctx, req.Credential, endpoint, params)
	if err != nil {
		s.noteFailure(ctx, req, endpoint, err)
		if crm.IsUnsupported(err) {
			count := domain.CountAggregate{}
			return extractorResult{
				value:    count,
				apply:    func(inputs *metrics.HealthInputs) { apply(inputs, count) },
				degraded: true,
			}
		}
		return extractorResult{err: err}
	}
	count := metrics.CountFromPage(page)
	return extractorResult{
		value:    count,
		apply:    func(inputs *metrics.HealthInputs) { apply(inputs, count) },
		degraded: !count.Exact,
	}
}

func (s *AggregationService) extractLeads(ctx context.Context, req AggregateRequest) extractorResult {
	params := url.Values{}
	params.Set("locationId", req.LocationID)

	result, err := s.collector.Collect(ctx, req.Credential, crm.Traversal{
		Endpoint: crm.EndpointContacts,
		Mode:     crm.PageMode,
		PageSize: s.cfg.PageSize,
		MaxPages: s.cfg.MaxPages,
		Params:   params,
	})
	records := result.Records()
	if err != nil {
		s.noteFailure(ctx, req, crm.EndpointContacts, err)
		if len(records) == 0 {
			return extractorResult{err: err}
		}
	}

	total := len(records)
	if result.HasTotal {
		total = result.Total
	}
	estimated := !result.HasTotal || result.Truncated || err != nil
	aggregate := metrics.LeadSources(records, total, estimated)
	contacts := domain.CountAggregate{Total: total, Exact: result.HasTotal && err == nil}

	return extractorResult{
		value: aggregate,
		apply: func(inputs *metrics.HealthInputs) {
			inputs.Leads = aggregate
			inputs.Contacts = contacts
		},
		degraded: estimated,
	}
}

func (s *AggregationService) extractPipeline(ctx context.Context, req AggregateRequest) extractorResult {
	params := url.Values{}
	params.Set("location_id", req.LocationID)

	result, err := s.collector.Collect(ctx, req.Credential, crm.Traversal{
		Endpoint: crm.EndpointOpportunities,
		Mode:     crm.PageMode,
		PageSize: s.cfg.PageSize,
		MaxPages: s.cfg.MaxPages,
		Params:   params,
	})
	records := result.Records()
	if err != nil {
		s.noteFailure(ctx, req, crm.EndpointOpportunities, err)
		if len(records) == 0 {
			return extractorResult{err: err}
		}
	}

	aggregate := metrics.PipelineStages(records, s.now(), s.cfg.AgingThreshold)
	total := len(records)
	if result.HasTotal {
		total = result.Total
	}
	opportunities := domain.CountAggregate{Total: total, Exact: result.HasTotal && err == nil}

	return extractorResult{
		value: aggregate,
		apply: func(inputs *metrics.HealthInputs) {
			inputs.Pipeline = aggregate
			inputs.Opportunities = opportunities
		},
		degraded: err != nil || result.Truncated,
	}
}

// extractConversations scans a bounded message window per configured channel
// and deduplicates conversation identifiers. The page ceiling trades a
// documented undercount on very active locations for bounded latency.
func (s *AggregationService) extractConversations(ctx context.Context, req AggregateRequest) extractorResult {
	channels := make([]metrics.ChannelMessages, 0, len(s.cfg.ConversationChannels))
	var lastErr error
	failedChannels := 0

	for _, channel := range s.cfg.ConversationChannels {
		params := url.Values{}
		params.Set("locationId", req.LocationID)
		params.Set("lastMessageType", channel)

		result, err := s.collector.Collect(ctx, req.Credential, crm.Traversal{
			Endpoint: crm.EndpointConversations,
			Mode:     crm.CursorMode,
			PageSize: s.cfg.PageSize,
			MaxPages: s.cfg.ConversationMaxPages,
			Params:   params,
		})
		if err != nil {
			s.noteFailure(ctx, req, crm.EndpointConversations, err)
			lastErr = err
			failedChannels++
		}
		channels = append(channels, metrics.ChannelMessages{
			Channel:   channel,
			Batches:   result.Batches,
			Truncated: result.Truncated || err != nil,
		})
	}

	if failedChannels == len(s.cfg.ConversationChannels) && lastErr != nil {
		return extractorResult{err: lastErr}
	}

	aggregate := metrics.ConversationCount(channels)
	return extractorResult{
		value: aggregate,
		apply: func(inputs *metrics.HealthInputs) {
			inputs.Conversations = aggregate
		},
		degraded: aggregate.Truncated || lastErr != nil,
	}
}

func (s *AggregationService) extractSocial(ctx context.Context, req AggregateRequest) extractorResult {
	lookback := s.cfg.SocialLookback
	if req.WindowDays > 0 {
		lookback = time.Duration(req.WindowDays) * 24 * time.Hour
	}

	params := url.Values{}
	params.Set("locationId", req.LocationID)
	accountsPage, err := s.fetcher.FetchPage(ctx, req.Credential, crm.EndpointSocialAccounts, params)
	if err != nil {
		s.noteFailure(ctx, req, crm.EndpointSocialAccounts, err)
		if crm.IsUnsupported(err) {
			aggregate := domain.SocialAggregate{}
			return extractorResult{
				value:    aggregate,
				apply:    func(inputs *metrics.HealthInputs) { inputs.Social = aggregate },
				degraded: true,
			}
		}
		return extractorResult{err: err}
	}

	fromDate := s.now().Add(-lookback).UTC().Format(time.RFC3339)
	accounts := make([]metrics.AccountPosts, 0, len(accountsPage.Records))
	anyFailed := false
	for _, account := range accountsPage.Records {
		accountID, _ := crm.ProbeString(account, "id", "accountId", "_id")
		platform, ok := crm.ProbeString(account, "platform", "type")
		if !ok {
			platform = "unknown"
		}

		postParams := url.Values{}
		postParams.Set("locationId", req.LocationID)
		postParams.Set("accountId", accountID)
		postParams.Set("fromDate", fromDate)

		postsPage, postsErr := s.fetcher.FetchPage(ctx, req.Credential, crm.EndpointSocialPosts, postParams)
		if postsErr != nil {
			s.noteFailure(ctx, req, crm.EndpointSocialPosts, postsErr)
			// Failed accounts stay in the rollup zeroed so totals remain
			// comparable across refreshes.
			accounts = append(accounts, metrics.AccountPosts{AccountID: accountID, Platform: platform, FetchFailed: true})
			anyFailed = true
			continue
		}
		accounts = append(accounts, metrics.AccountPosts{AccountID: accountID, Platform: platform, Posts: postsPage.Records})
	}

	aggregate := metrics.SocialEngagement(accounts)
	return extractorResult{
		value: aggregate,
		apply: func(inputs *metrics.HealthInputs) {
			inputs.Social = aggregate
		},
		degraded: anyFailed,
	}
}

// noteFailure records authentication-class errors to the durable failure
// log. Transient and malformed errors are logged only.
func (s *AggregationService) noteFailure(ctx context.Context, req AggregateRequest, endpoint string, err error) {
	if !crm.IsAuth(err) {
		s.log.DebugContext(ctx, "upstream fetch failed", "endpoint", endpoint, "error", err)
		return
	}
	record := ports.FailureRecord{
		LocationID:   req.LocationID,
		LocationName: req.LocationName,
		Endpoint:     endpoint,
		Message:      err.Error(),
		OccurredAt:   s.now(),
	}
	if recordErr := s.failures.Record(ctx, record); recordErr != nil {
		s.log.ErrorContext(ctx, "failed to record credential failure", "endpoint", endpoint, "error", recordErr)
	}
}
