package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/doms-project/crmpulse/internal/app/domain"
)

func TestComputeHealthScoreAllZero(t *testing.T) {
	breakdown := ComputeHealthScore(HealthInputs{}, time.Now())
	if breakdown.Score != 0 {
		t.Fatalf("all-zero inputs must score 0, got %v", breakdown.Score)
	}
}

func TestComputeHealthScoreMaxesOut(t *testing.T) {
	inputs := HealthInputs{
		Contacts:      domain.CountAggregate{Total: 5000, Exact: true},
		Opportunities: domain.CountAggregate{Total: 500, Exact: true},
		Forms:         domain.CountAggregate{Total: 10, Exact: true},
		Surveys:       domain.CountAggregate{Total: 10, Exact: true},
		Leads: domain.LeadSourceAggregate{
			TotalLeads: 5000,
			Sources: []domain.SourceBucket{
				{Label: "a"}, {Label: "b"}, {Label: "c"}, {Label: "d"},
			},
		},
		Pipeline: domain.PipelineAggregate{
			TotalOpportunities: 500,
			TotalValue:         1_000_000,
			WinRate:            100,
			Stages: []domain.StageSummary{
				{Name: "s1", Count: 100},
				{Name: "s2", Count: 100},
				{Name: "s3", Count: 100},
			},
		},
		Conversations: domain.ConversationAggregate{TotalConversations: 100, TotalMessages: 1000},
		Social: domain.SocialAggregate{
			Accounts: []domain.SocialAccountMetrics{
				{AccountID: "a1"}, {AccountID: "a2"},
			},
			TotalPosts:      50,
			TotalEngagement: 10_000,
		},
	}

	breakdown := ComputeHealthScore(inputs, time.Now())
	if breakdown.Score != 100 {
		t.Fatalf("saturated inputs must score 100, got %v (%+v)", breakdown.Score, breakdown)
	}
	if breakdown.LeadGeneration != domain.MaxLeadGeneration {
		t.Fatalf("lead generation not capped: %v", breakdown.LeadGeneration)
	}
	if breakdown.SalesPerformance != domain.MaxSalesPerformance {
		t.Fatalf("sales performance not capped: %v", breakdown.SalesPerformance)
	}
}

func TestComputeHealthScoreEqualsSubScoreSum(t *testing.T) {
	inputs := HealthInputs{
		Contacts:      domain.CountAggregate{Total: 120, Exact: true},
		Opportunities: domain.CountAggregate{Total: 7, Exact: true},
		Forms:         domain.CountAggregate{Total: 1, Exact: true},
		Leads: domain.LeadSourceAggregate{
			TotalLeads: 120,
			Sources:    []domain.SourceBucket{{Label: "Organic", Count: 40}},
		},
		Pipeline: domain.PipelineAggregate{
			TotalOpportunities: 7,
			TotalValue:         42_000,
			WinRate:            75,
			Stages:             []domain.StageSummary{{Name: "Open", Count: 7, AgingCount: 2}},
		},
		Conversations: domain.ConversationAggregate{TotalConversations: 9, TotalMessages: 31},
		Social: domain.SocialAggregate{
			Accounts:        []domain.SocialAccountMetrics{{AccountID: "fb"}},
			TotalPosts:      4,
			TotalEngagement: 130,
		},
	}

	breakdown := ComputeHealthScore(inputs, time.Now())
	sum := breakdown.LeadGeneration + breakdown.SalesPerformance + breakdown.MarketingActivity +
		breakdown.OperationalEfficiency + breakdown.CustomerEngagement + breakdown.BusinessFoundation
	if math.Abs(breakdown.Score-math.Round(sum*10)/10) > 1e-9 {
		t.Fatalf("score %v does not match sub-score sum %v", breakdown.Score, sum)
	}
	if breakdown.Score <= 0 || breakdown.Score > 100 {
		t.Fatalf("score out of range: %v", breakdown.Score)
	}
}

func TestSalesPerformanceSubScore(t *testing.T) {
	inputs := HealthInputs{
		Opportunities: domain.CountAggregate{Total: 8, Exact: true},
		Pipeline:      domain.PipelineAggregate{TotalOpportunities: 8, TotalValue: 20_000, WinRate: 75},
	}
	breakdown := ComputeHealthScore(inputs, time.Now())
	// 8*0.5 + 75/10 + 20000/10000 = 4 + 7.5 + 2
	if breakdown.SalesPerformance != 13.5 {
		t.Fatalf("expected sales sub-score 13.5, got %v", breakdown.SalesPerformance)
	}
}

func TestOperationalEfficiencyNeedsOpportunities(t *testing.T) {
	// Stage structure without any opportunities earns nothing for aging.
	inputs := HealthInputs{
		Pipeline: domain.PipelineAggregate{
			Stages: []domain.StageSummary{{Name: "Open"}},
		},
	}
	breakdown := ComputeHealthScore(inputs, time.Now())
	if breakdown.OperationalEfficiency != 0 {
		t.Fatalf("expected 0 without opportunities, got %v", breakdown.OperationalEfficiency)
	}
}

func TestComputeHealthScoreDeterministic(t *testing.T) {
	inputs := HealthInputs{
		Contacts: domain.CountAggregate{Total: 10},
		Forms:    domain.CountAggregate{Total: 2},
	}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	first := ComputeHealthScore(inputs, at)
	second := ComputeHealthScore(inputs, at)
	if first != second {
		t.Fatalf("identical inputs must yield identical breakdowns")
	}
}
