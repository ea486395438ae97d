package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryReplayLedger_FirstClaimAccepted(t *testing.T) {
	ledger := NewMemoryReplayLedger(time.Minute)
	accepted, err := ledger.Claim(context.Background(), "relay:msg_1", time.Minute)
	if err != nil {
		t.Fatalf("claim first: %v", err)
	}
	if !accepted {
		t.Fatalf("expected first claim to be accepted")
	}
	if _, err := ledger.Claim(context.Background(), "  ", time.Minute); err == nil {
		t.Fatalf("expected blank key to be rejected")
	}
}

func TestMemoryReplayLedger_ReplayRejectedWithinTTL(t *testing.T) {
	ledger := NewMemoryReplayLedger(time.Minute)
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	if accepted, err := ledger.Claim(context.Background(), "relay:msg_2", 0); err != nil {
		t.Fatalf("claim first: %v", err)
	} else if !accepted {
		t.Fatalf("expected first claim to be accepted")
	}

	now = now.Add(30 * time.Second)
	if accepted, err := ledger.Claim(context.Background(), "relay:msg_2", 0); err != nil {
		t.Fatalf("claim replay: %v", err)
	} else if accepted {
		t.Fatalf("expected replay claim to be rejected")
	}
}

func TestMemoryReplayLedger_AcceptsAfterTTLExpiry(t *testing.T) {
	ledger := NewMemoryReplayLedger(time.Minute)
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	if accepted, _ := ledger.Claim(context.Background(), "relay:msg_3", time.Minute); !accepted {
		t.Fatalf("expected first claim to be accepted")
	}

	now = now.Add(2 * time.Minute)
	if purged, err := ledger.PurgeExpired(context.Background()); err != nil || purged != 1 {
		t.Fatalf("expected one purged key, got %d (%v)", purged, err)
	}
	if accepted, err := ledger.Claim(context.Background(), "relay:msg_3", time.Minute); err != nil {
		t.Fatalf("claim after ttl expiry: %v", err)
	} else if !accepted {
		t.Fatalf("expected claim after ttl expiry to be accepted")
	}
}

func TestMemoryReplayLedger_ReleaseAndBound(t *testing.T) {
	ledger := NewMemoryReplayLedgerWithLimits(time.Hour, 2)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if accepted, err := ledger.Claim(ctx, key, 0); err != nil || !accepted {
			t.Fatalf("claim %s: accepted=%v err=%v", key, accepted, err)
		}
	}
	if ledger.Len() != 2 {
		t.Fatalf("expected ledger to stay bounded at 2, got %d", ledger.Len())
	}
	if accepted, _ := ledger.Claim(ctx, "a", 0); !accepted {
		t.Fatalf("expected oldest key to have been evicted")
	}

	ledger.Release(ctx, "c")
	if accepted, _ := ledger.Claim(ctx, "c", 0); !accepted {
		t.Fatalf("expected released key to be claimable again")
	}
}
