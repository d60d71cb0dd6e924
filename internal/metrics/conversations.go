package metrics

import (
	"github.com/doms-project/crmpulse/internal/app/domain"
	"github.com/doms-project/crmpulse/internal/crm"
)

// Candidate conversation-identifier fields, tried in priority order.
var conversationIDFields = []string{"conversationId", "conversation_id", "convoId", "id"}

// ChannelMessages is the scanned message window for one channel.
type ChannelMessages struct {
	Channel string
	Batches [][]crm.Record
	// Truncated marks a scan that hit its page ceiling with upstream still
	// offering more messages.
	Truncated bool
}

// ConversationCount derives a distinct-conversation count from message
// records. Upstream exposes messages, not conversations, so each message is
// probed for a conversation identifier and identifiers are deduplicated. The
// scan window per channel is bounded for latency, accepting a documented
// undercount on very active locations; Truncated surfaces that degradation.
func ConversationCount(channels []ChannelMessages) domain.ConversationAggregate {
	seen := map[string]struct{}{}
	totalMessages := 0
	truncated := false
	names := make([]string, 0, len(channels))

	for _, channel := range channels {
		names = append(names, channel.Channel)
		if channel.Truncated {
			truncated = true
		}
		for _, batch := range channel.Batches {
			totalMessages += len(batch)
			for _, message := range batch {
				id, ok := crm.ProbeString(message, conversationIDFields...)
				if !ok {
					continue
				}
				// Identifiers are global, not per channel: the same
				// conversation surfacing on two channels is one
				// conversation.
				seen[id] = struct{}{}
			}
		}
	}

	return domain.ConversationAggregate{
		TotalConversations: len(seen),
		TotalMessages:      totalMessages,
		Channels:           names,
		Truncated:          truncated,
	}
}
