package metrics

import (
	"testing"

	"github.com/doms-project/crmpulse/internal/crm"
)

func TestSocialEngagementRollup(t *testing.T) {
	accounts := []AccountPosts{
		{
			AccountID: "fb-1",
			Platform:  "facebook",
			Posts: []crm.Record{
				{"likes": 50.0, "comments": 10.0, "shares": 5.0},
				{"likeCount": 40.0, "commentCount": 20.0, "share_count": 5.0},
			},
		},
		{
			AccountID: "ig-1",
			Platform:  "instagram",
			Posts:     []crm.Record{{"likes": 30.0}},
		},
		{AccountID: "ig-2", Platform: "instagram", FetchFailed: true},
	}

	aggregate := SocialEngagement(accounts)

	if aggregate.TotalPosts != 3 {
		t.Fatalf("expected 3 posts, got %d", aggregate.TotalPosts)
	}
	if aggregate.TotalEngagement != 160 {
		t.Fatalf("expected total engagement 160, got %d", aggregate.TotalEngagement)
	}
	if len(aggregate.Accounts) != 3 {
		t.Fatalf("failed accounts stay in the rollup, got %d", len(aggregate.Accounts))
	}
	if aggregate.Accounts[0].Engagement != 130 {
		t.Fatalf("expected facebook engagement 130, got %d", aggregate.Accounts[0].Engagement)
	}

	if len(aggregate.Platforms) != 2 {
		t.Fatalf("expected 2 platforms, got %+v", aggregate.Platforms)
	}
	// Sorted by platform name.
	if aggregate.Platforms[0].Platform != "facebook" || aggregate.Platforms[1].Platform != "instagram" {
		t.Fatalf("unexpected platform order: %+v", aggregate.Platforms)
	}
	if aggregate.Platforms[1].Accounts != 2 || aggregate.Platforms[1].Engagement != 30 {
		t.Fatalf("unexpected instagram rollup: %+v", aggregate.Platforms[1])
	}
}

func TestSocialEngagementEmpty(t *testing.T) {
	aggregate := SocialEngagement(nil)
	if aggregate.TotalPosts != 0 || aggregate.TotalEngagement != 0 || len(aggregate.Platforms) != 0 {
		t.Fatalf("expected zero aggregate, got %+v", aggregate)
	}
}
