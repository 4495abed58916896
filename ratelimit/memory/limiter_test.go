package memorylimiter

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_BlocksAfterLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if blocked, _ := l.Blocked(ctx, "10.0.0.1"); blocked {
			t.Fatalf("blocked too early after %d failures", i)
		}
		if err := l.RecordFailure(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if blocked, _ := l.Blocked(ctx, "10.0.0.1"); !blocked {
		t.Fatalf("expected client to be blocked at the limit")
	}
	if blocked, _ := l.Blocked(ctx, "10.0.0.2"); blocked {
		t.Fatalf("expected other clients to be unaffected")
	}

	now = now.Add(time.Minute + time.Millisecond)
	if blocked, _ := l.Blocked(ctx, "10.0.0.1"); blocked {
		t.Fatalf("expected failures to age out of the window")
	}
	if len(l.clients) != 0 {
		t.Fatalf("expected idle clients to be forgotten, have %d", len(l.clients))
	}
}

func TestLimiter_ZeroLimitDisables(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 5; i++ {
		_ = l.RecordFailure(context.Background(), "k")
	}
	if blocked, err := l.Blocked(context.Background(), "k"); blocked || err != nil {
		t.Fatalf("expected disabled limiter to never block, got %v %v", blocked, err)
	}
}

func TestLimiter_EmptyKey(t *testing.T) {
	l := New(1, time.Minute)
	if err := l.RecordFailure(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
