package metrics

import (
	"testing"

	"github.com/doms-project/crmpulse/internal/crm"
)

func TestLeadSourcesMultiAttribution(t *testing.T) {
	records := []crm.Record{
		{"source": "Facebook Ads", "type": "lead", "tags": []any{"webinar"}},
		{"source": "Facebook Ads"},
		{"contactSource": "Referral"},
		{"firstName": "no attribution"},
	}

	aggregate := LeadSources(records, 4, false)

	if aggregate.TotalLeads != 4 {
		t.Fatalf("expected 4 total, got %d", aggregate.TotalLeads)
	}
	if len(aggregate.Sources) != 4 {
		t.Fatalf("expected 4 buckets, got %d: %+v", len(aggregate.Sources), aggregate.Sources)
	}
	// Facebook Ads leads the sort with two attributions.
	if aggregate.Sources[0].Label != "Facebook Ads" || aggregate.Sources[0].Count != 2 {
		t.Fatalf("unexpected top bucket: %+v", aggregate.Sources[0])
	}
	if aggregate.Sources[0].Percentage != 50 {
		t.Fatalf("expected 50%%, got %v", aggregate.Sources[0].Percentage)
	}
	// One contact carried three independent signals at once.
	for _, label := range []string{"Lead Type", "tag:webinar"} {
		found := false
		for _, bucket := range aggregate.Sources {
			if bucket.Label == label && bucket.Count == 1 {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected bucket %q with count 1: %+v", label, aggregate.Sources)
		}
	}
	// 3 of 4 contacts had at least one attribution signal.
	if aggregate.CompletionRate != 75 {
		t.Fatalf("expected completion rate 75, got %v", aggregate.CompletionRate)
	}
}

func TestLeadSourcesUsesUpstreamTotalForPercentages(t *testing.T) {
	records := []crm.Record{{"source": "Organic"}}

	aggregate := LeadSources(records, 200, true)
	if aggregate.TotalLeads != 200 {
		t.Fatalf("expected upstream total 200, got %d", aggregate.TotalLeads)
	}
	if aggregate.Sources[0].Percentage != 0.5 {
		t.Fatalf("expected 0.5%%, got %v", aggregate.Sources[0].Percentage)
	}
	if !aggregate.Estimated {
		t.Fatalf("expected estimated flag")
	}
}

func TestLeadSourcesEmptyInput(t *testing.T) {
	aggregate := LeadSources(nil, 0, false)
	if aggregate.TotalLeads != 0 || len(aggregate.Sources) != 0 || aggregate.CompletionRate != 0 {
		t.Fatalf("expected zero aggregate, got %+v", aggregate)
	}
}

func TestLeadSourcesDeduplicatesCaseVariantTags(t *testing.T) {
	records := []crm.Record{
		{"tags": []any{"VIP", "vip"}},
	}

	aggregate := LeadSources(records, 1, false)
	if len(aggregate.Sources) != 1 {
		t.Fatalf("expected case variants to merge, got %+v", aggregate.Sources)
	}
	if aggregate.Sources[0].Count != 1 {
		t.Fatalf("a contact contributes once per label, got %+v", aggregate.Sources[0])
	}
}
