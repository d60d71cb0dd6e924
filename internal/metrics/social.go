package metrics

import (
	"sort"

	"github.com/samber/lo"

	"github.com/doms-project/crmpulse/internal/app/domain"
	"github.com/doms-project/crmpulse/internal/crm"
)

// AccountPosts is the fetched recent-post window for one connected social
// account. FetchFailed accounts are rolled up with zero metrics instead of
// being dropped, keeping totals comparable across refreshes.
type AccountPosts struct {
	AccountID   string
	Platform    string
	Posts       []crm.Record
	FetchFailed bool
}

// SocialEngagement sums per-post engagement (likes + comments + shares) per
// account and rolls counts up per platform.
func SocialEngagement(accounts []AccountPosts) domain.SocialAggregate {
	aggregate := domain.SocialAggregate{
		Accounts: make([]domain.SocialAccountMetrics, 0, len(accounts)),
	}

	for _, account := range accounts {
		entry := domain.SocialAccountMetrics{
			AccountID:   account.AccountID,
			Platform:    account.Platform,
			FetchFailed: account.FetchFailed,
		}
		for _, post := range account.Posts {
			likes, _ := crm.ProbeFloat(post, "likes", "likeCount", "like_count")
			comments, _ := crm.ProbeFloat(post, "comments", "commentCount", "comment_count")
			shares, _ := crm.ProbeFloat(post, "shares", "shareCount", "share_count")
			entry.Posts++
			entry.Likes += int(likes)
			entry.Comments += int(comments)
			entry.Shares += int(shares)
		}
		entry.Engagement = entry.Likes + entry.Comments + entry.Shares
		aggregate.Accounts = append(aggregate.Accounts, entry)
		aggregate.TotalPosts += entry.Posts
		aggregate.TotalEngagement += entry.Engagement
	}

	grouped := lo.GroupBy(aggregate.Accounts, func(account domain.SocialAccountMetrics) string {
		return account.Platform
	})
	aggregate.Platforms = make([]domain.PlatformRollup, 0, len(grouped))
	for platform, entries := range grouped {
		rollup := domain.PlatformRollup{Platform: platform, Accounts: len(entries)}
		for _, entry := range entries {
			rollup.Posts += entry.Posts
			rollup.Engagement += entry.Engagement
		}
		aggregate.Platforms = append(aggregate.Platforms, rollup)
	}
	sort.Slice(aggregate.Platforms, func(i, j int) bool {
		return aggregate.Platforms[i].Platform < aggregate.Platforms[j].Platform
	})

	return aggregate
}
