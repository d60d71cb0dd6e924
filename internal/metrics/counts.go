// Package metrics holds the pure extractors that turn raw CRM records into
// normalized aggregates, plus the health score calculator that combines them.
package metrics

import (
	"github.com/doms-project/crmpulse/internal/app/domain"
	"github.com/doms-project/crmpulse/internal/crm"
)

// CountFromPage derives an entity count from a single list response. An
// authoritative total from response metadata always wins over counting
// returned records: one cheap call with an exact total beats paginating
// dozens of pages. When the metadata is absent the first-page size is
// reported as a conservative "at least N" estimate.
func CountFromPage(page crm.Page) domain.CountAggregate {
	if page.HasTotal {
		return domain.CountAggregate{Total: page.Total, Exact: true}
	}
	return domain.CountAggregate{Total: len(page.Records)}
}
