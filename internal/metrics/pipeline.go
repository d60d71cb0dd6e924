package metrics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/doms-project/crmpulse/internal/app/domain"
	"github.com/doms-project/crmpulse/internal/crm"
)

// DefaultAgingThreshold marks an opportunity as aging when it has been open
// longer than this before evaluation time, independent of its stage.
const DefaultAgingThreshold = 30 * 24 * time.Hour

type outcome int

const (
	outcomeOpen outcome = iota
	outcomeWon
	outcomeLost
)

// PipelineStages buckets opportunities by stage label and derives funnel
// statistics. Win rates are always derived from the won/lost counts at build
// time; a stage with nothing closed reports a win rate of exactly 0.
func PipelineStages(records []crm.Record, now time.Time, agingThreshold time.Duration) domain.PipelineAggregate {
	if agingThreshold <= 0 {
		agingThreshold = DefaultAgingThreshold
	}

	type stageBucket struct {
		summary domain.StageSummary
	}
	buckets := map[string]*stageBucket{}
	order := []string{}

	totalValue := 0.0
	totalWon := 0
	totalLost := 0

	for _, record := range records {
		stage, ok := crm.ProbeString(record, "status", "stageName", "pipelineStageName", "stage")
		if !ok {
			stage = "Unknown"
		}
		bucket, exists := buckets[stage]
		if !exists {
			bucket = &stageBucket{summary: domain.StageSummary{Name: stage}}
			buckets[stage] = bucket
			order = append(order, stage)
		}

		bucket.summary.Count++
		if value, ok := crm.ProbeFloat(record, "monetaryValue", "value", "amount"); ok {
			bucket.summary.Value += value
			totalValue += value
		}

		switch classifyOutcome(stage) {
		case outcomeWon:
			bucket.summary.WonCount++
			totalWon++
		case outcomeLost:
			bucket.summary.LostCount++
			totalLost++
		}

		if created, ok := crm.ProbeTime(record, "createdAt", "dateAdded", "created_at"); ok {
			if now.Sub(created) > agingThreshold {
				bucket.summary.AgingCount++
			}
		}
	}

	sort.Strings(order)
	stages := make([]domain.StageSummary, 0, len(order))
	for _, name := range order {
		summary := buckets[name].summary
		summary.WinRate = winRate(summary.WonCount, summary.LostCount)
		stages = append(stages, summary)
	}

	return domain.PipelineAggregate{
		TotalOpportunities: len(records),
		TotalValue:         totalValue,
		WinRate:            winRate(totalWon, totalLost),
		Stages:             stages,
	}
}

// classifyOutcome reads won/lost out of a free-form stage label. "lost" and
// "disqualified" beat "closed": a "Closed Lost" label is a loss.
func classifyOutcome(label string) outcome {
	lowered := strings.ToLower(label)
	if strings.Contains(lowered, "lost") || strings.Contains(lowered, "disqualified") {
		return outcomeLost
	}
	if strings.Contains(lowered, "won") || strings.Contains(lowered, "closed") {
		return outcomeWon
	}
	return outcomeOpen
}

func winRate(won, lost int) float64 {
	closed := won + lost
	if closed == 0 {
		return 0
	}
	return math.Round(float64(won)/float64(closed)*10000) / 100
}
