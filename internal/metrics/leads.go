package metrics

import (
	"math"
	"sort"
	"strings"

	"github.com/doms-project/crmpulse/internal/app/domain"
	"github.com/doms-project/crmpulse/internal/crm"
)

// Candidate source fields in order of informativeness.
var leadSourceFields = []string{"source", "attributionSource", "contactSource", "leadSource"}

// LeadSources attributes contacts to source labels. A single contact can land
// in several buckets at once: an explicit source field, a lead-typed contact
// flag, and tags are independent signals, not mutually exclusive. Percentages
// are computed against total contact count, not total attributions, so the
// bucket percentages may legitimately sum past 100.
//
// totalContacts may come from upstream metadata and exceed the number of
// records scanned; estimated marks that case.
func LeadSources(records []crm.Record, totalContacts int, estimated bool) domain.LeadSourceAggregate {
	if totalContacts < len(records) {
		totalContacts = len(records)
	}

	counts := map[string]int{}
	attributed := 0
	for _, record := range records {
		labels := attributionLabels(record)
		if len(labels) == 0 {
			continue
		}
		attributed++
		for _, label := range labels {
			counts[label]++
		}
	}

	sources := make([]domain.SourceBucket, 0, len(counts))
	for label, count := range counts {
		sources = append(sources, domain.SourceBucket{
			Label:      label,
			Count:      count,
			Percentage: percentage(count, totalContacts),
		})
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Count == sources[j].Count {
			return sources[i].Label < sources[j].Label
		}
		return sources[i].Count > sources[j].Count
	})

	return domain.LeadSourceAggregate{
		TotalLeads:     totalContacts,
		Sources:        sources,
		CompletionRate: percentage(attributed, totalContacts),
		Estimated:      estimated,
	}
}

func attributionLabels(record crm.Record) []string {
	labels := make([]string, 0, 3)
	seen := map[string]struct{}{}
	add := func(label string) {
		label = strings.TrimSpace(label)
		if label == "" {
			return
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		labels = append(labels, label)
	}

	if source, ok := crm.ProbeString(record, leadSourceFields...); ok {
		add(source)
	}
	if contactType, ok := crm.ProbeString(record, "type", "contactType"); ok {
		if strings.EqualFold(contactType, "lead") {
			add("Lead Type")
		}
	}
	for _, tag := range crm.ProbeStrings(record, "tags", "tag") {
		add("tag:" + tag)
	}
	return labels
}

func percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}
