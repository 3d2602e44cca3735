package utils

import (
	"context"
	"testing"
	"time"
)

func TestScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if concurrencyAcquireScript == nil || concurrencyReleaseScript == nil || tokenBucketScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestTakeToken_RejectsBadArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := TakeToken(ctx, nil, "k", 1, time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestIncrDailyCounter_RejectsBadArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := IncrDailyCounter(ctx, nil, "k", time.Now()); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := GetDailyCounter(ctx, nil, "k", time.Now()); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestSetIfAbsent_RejectsBadArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := SetIfAbsent(ctx, nil, "k", "v", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
