package metrics

import (
	"math"
	"time"

	"github.com/doms-project/crmpulse/internal/app/domain"
)

// HealthInputs carries the six extractor outputs the score is composed from.
// Zero values are valid inputs and produce a zero score.
type HealthInputs struct {
	Contacts      domain.CountAggregate
	Opportunities domain.CountAggregate
	Forms         domain.CountAggregate
	Surveys       domain.CountAggregate
	Leads         domain.LeadSourceAggregate
	Pipeline      domain.PipelineAggregate
	Conversations domain.ConversationAggregate
	Social        domain.SocialAggregate
}

// ComputeHealthScore combines the extractor outputs into the weighted 0-100
// composite. Deterministic and side-effect-free: identical inputs always
// yield identical output, which cache correctness depends on. Every signal
// is clamped into its declared range before summation so one outlier (an
// unusually long source list, a huge pipeline value) cannot push the
// composite outside [0,100].
func ComputeHealthScore(inputs HealthInputs, computedAt time.Time) domain.HealthScoreBreakdown {
	breakdown := domain.HealthScoreBreakdown{
		LeadGeneration:        leadGenerationScore(inputs),
		SalesPerformance:      salesPerformanceScore(inputs),
		MarketingActivity:     marketingActivityScore(inputs),
		OperationalEfficiency: operationalEfficiencyScore(inputs),
		CustomerEngagement:    customerEngagementScore(inputs),
		BusinessFoundation:    businessFoundationScore(inputs),
		ComputedAt:            computedAt.UTC(),
	}
	breakdown.Score = round1(clamp(
		breakdown.LeadGeneration+
			breakdown.SalesPerformance+
			breakdown.MarketingActivity+
			breakdown.OperationalEfficiency+
			breakdown.CustomerEngagement+
			breakdown.BusinessFoundation,
		0, 100))
	return breakdown
}

func leadGenerationScore(inputs HealthInputs) float64 {
	score := clamp(float64(inputs.Forms.Total)*5, 0, 8) +
		clamp(float64(inputs.Surveys.Total)*4, 0, 6) +
		clamp(float64(len(inputs.Leads.Sources))*3, 0, 6)
	return round1(clamp(score, 0, domain.MaxLeadGeneration))
}

func salesPerformanceScore(inputs HealthInputs) float64 {
	score := clamp(float64(inputs.Opportunities.Total)*0.5, 0, 10) +
		clamp(inputs.Pipeline.WinRate/10, 0, 10) +
		clamp(inputs.Pipeline.TotalValue/10000, 0, 5)
	return round1(clamp(score, 0, domain.MaxSalesPerformance))
}

func marketingActivityScore(inputs HealthInputs) float64 {
	score := clamp(float64(len(inputs.Social.Accounts))*3, 0, 6) +
		clamp(float64(inputs.Social.TotalPosts)*0.5, 0, 5) +
		clamp(float64(inputs.Social.TotalEngagement)/25, 0, 4)
	return round1(clamp(score, 0, domain.MaxMarketingActivity))
}

func operationalEfficiencyScore(inputs HealthInputs) float64 {
	activeStages := 0
	aging := 0
	for _, stage := range inputs.Pipeline.Stages {
		if stage.Count > 0 {
			activeStages++
		}
		aging += stage.AgingCount
	}
	score := clamp(float64(activeStages)*2, 0, 6)
	if inputs.Pipeline.TotalOpportunities > 0 {
		agingRatio := float64(aging) / float64(inputs.Pipeline.TotalOpportunities)
		score += clamp(1-agingRatio, 0, 1) * 9
	}
	return round1(clamp(score, 0, domain.MaxOperationalEfficiency))
}

func customerEngagementScore(inputs HealthInputs) float64 {
	score := clamp(float64(inputs.Conversations.TotalConversations)*0.5, 0, 8) +
		clamp(float64(inputs.Conversations.TotalMessages)*0.1, 0, 7)
	return round1(clamp(score, 0, domain.MaxCustomerEngagement))
}

func businessFoundationScore(inputs HealthInputs) float64 {
	score := 0.0
	if inputs.Contacts.Total > 0 {
		score += 3
	}
	if len(inputs.Pipeline.Stages) > 0 {
		score += 3
	}
	if len(inputs.Social.Accounts) > 0 {
		score += 2
	}
	if inputs.Forms.Total > 0 {
		score += 2
	}
	return round1(clamp(score, 0, domain.MaxBusinessFoundation))
}

func clamp(value, low, high float64) float64 {
	return math.Min(math.Max(value, low), high)
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}
