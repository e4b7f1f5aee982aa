package pubsub

import (
	"testing"

	"github.com/tillstock/tillstock-backend/pkg/config"
)

func TestSubscriptionNamesSkipsBlank(t *testing.T) {
	names := subscriptionNames(config.PubSubConfig{AnalyticsSubscription: " ts-analytics-sub "})
	if len(names) != 1 || names[0] != "ts-analytics-sub" {
		t.Fatalf("unexpected names %v", names)
	}
	if got := subscriptionNames(config.PubSubConfig{}); len(got) != 0 {
		t.Fatalf("expected no names, got %v", got)
	}
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "proj"}

	if got := c.topicResourceName("ts-sales-events"); got != "projects/proj/topics/ts-sales-events" {
		t.Fatalf("unexpected topic name %q", got)
	}
	full := "projects/other/topics/x"
	if got := c.topicResourceName(full); got != full {
		t.Fatalf("expected full name passthrough, got %q", got)
	}
	if got := c.subscriptionResourceName("sub"); got != "projects/proj/subscriptions/sub" {
		t.Fatalf("unexpected subscription name %q", got)
	}
	if got := c.subscriptionResourceName("  "); got != "" {
		t.Fatalf("expected empty name, got %q", got)
	}
}
