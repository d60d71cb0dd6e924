package domain

import "time"

// MetricKind identifies one cached/computable aggregate per location.
type MetricKind string

const (
	MetricContacts      MetricKind = "contacts"
	MetricOpportunities MetricKind = "opportunities"
	MetricLeads         MetricKind = "leads"
	MetricPipeline      MetricKind = "pipeline"
	MetricConversations MetricKind = "conversations"
	MetricForms         MetricKind = "forms"
	MetricSurveys       MetricKind = "surveys"
	MetricSocial        MetricKind = "social"
	MetricHealthScore   MetricKind = "health-score"
)

// KnownMetricKinds lists every kind the aggregation API accepts.
var KnownMetricKinds = []MetricKind{
	MetricContacts,
	MetricOpportunities,
	MetricLeads,
	MetricPipeline,
	MetricConversations,
	MetricForms,
	MetricSurveys,
	MetricSocial,
	MetricHealthScore,
}

// Valid reports whether the kind is one the engine can compute.
func (k MetricKind) Valid() bool {
	for _, known := range KnownMetricKinds {
		if k == known {
			return true
		}
	}
	return false
}

// CountAggregate is a single-figure count. Exact is false when the upstream
// response carried no authoritative total and the figure is a first-page
// lower bound.
type CountAggregate struct {
	Total int  `json:"total"`
	Exact bool `json:"exact"`
}

// SourceBucket is one attribution label with its derived share of total
// contacts. Percentage is always recomputed from Count, never stored apart.
type SourceBucket struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// LeadSourceAggregate summarizes lead attribution for a location. A contact
// may carry several labels at once, so bucket percentages can sum past 100;
// CompletionRate is the share of contacts with at least one attribution.
type LeadSourceAggregate struct {
	TotalLeads     int            `json:"totalLeads"`
	Sources        []SourceBucket `json:"sources"`
	CompletionRate float64        `json:"completionRate"`
	Estimated      bool           `json:"estimated,omitempty"`
}

// StageSummary is one pipeline stage bucket.
type StageSummary struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Value      float64 `json:"value"`
	WonCount   int     `json:"wonCount"`
	LostCount  int     `json:"lostCount"`
	AgingCount int     `json:"agingCount"`
	WinRate    float64 `json:"winRate"`
}

// PipelineAggregate summarizes the sales pipeline funnel.
type PipelineAggregate struct {
	TotalOpportunities int            `json:"totalOpportunities"`
	TotalValue         float64        `json:"totalValue"`
	WinRate            float64        `json:"winRate"`
	Stages             []StageSummary `json:"stages"`
}

// ConversationAggregate reports distinct conversations observed across the
// scanned message channels. Truncated marks a page-ceiling undercount.
type ConversationAggregate struct {
	TotalConversations int      `json:"totalConversations"`
	TotalMessages      int      `json:"totalMessages"`
	Channels           []string `json:"channels"`
	Truncated          bool     `json:"truncated,omitempty"`
}

// SocialAccountMetrics is engagement for one connected account. Accounts
// whose post fetch failed stay in the list zeroed with FetchFailed set so
// totals stay comparable across refreshes.
type SocialAccountMetrics struct {
	AccountID   string `json:"accountId"`
	Platform    string `json:"platform"`
	Posts       int    `json:"posts"`
	Likes       int    `json:"likes"`
	Comments    int    `json:"comments"`
	Shares      int    `json:"shares"`
	Engagement  int    `json:"engagement"`
	FetchFailed bool   `json:"fetchFailed,omitempty"`
}

// PlatformRollup sums engagement per platform.
type PlatformRollup struct {
	Platform   string `json:"platform"`
	Accounts   int    `json:"accounts"`
	Posts      int    `json:"posts"`
	Engagement int    `json:"engagement"`
}

// SocialAggregate rolls up connected-account engagement.
type SocialAggregate struct {
	TotalEngagement int                    `json:"totalEngagement"`
	TotalPosts      int                    `json:"totalPosts"`
	Accounts        []SocialAccountMetrics `json:"accounts"`
	Platforms       []PlatformRollup       `json:"platforms"`
}

// Sub-score maxima. They sum to 100.
const (
	MaxLeadGeneration        = 20.0
	MaxSalesPerformance      = 25.0
	MaxMarketingActivity     = 15.0
	MaxOperationalEfficiency = 15.0
	MaxCustomerEngagement    = 15.0
	MaxBusinessFoundation    = 10.0
)

// HealthScoreBreakdown is the composite 0-100 score with its six capped
// sub-scores. Score always equals the sum of the sub-scores.
type HealthScoreBreakdown struct {
	Score                 float64   `json:"score"`
	LeadGeneration        float64   `json:"leadGeneration"`
	SalesPerformance      float64   `json:"salesPerformance"`
	MarketingActivity     float64   `json:"marketingActivity"`
	OperationalEfficiency float64   `json:"operationalEfficiency"`
	CustomerEngagement    float64   `json:"customerEngagement"`
	BusinessFoundation    float64   `json:"businessFoundation"`
	ComputedAt            time.Time `json:"computedAt"`
}
