package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-slack/core"
)

func TestMemoryLedger_ClaimLifecycle(t *testing.T) {
	now := testNow
	ledger := NewMemoryLedger()
	ledger.Now = func() time.Time { return now }
	ctx := context.Background()

	first, claimed, err := ledger.Claim(ctx, "Ev1", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected first claim, got claimed=%v err=%v", claimed, err)
	}
	if first.ClaimID == "" || first.ID == "" || first.Attempts != 1 {
		t.Fatalf("unexpected record %+v", first)
	}

	if _, claimed, _ := ledger.Claim(ctx, "Ev1", time.Minute); claimed {
		t.Fatalf("expected in-flight event not to be claimed twice")
	}

	if err := ledger.Fail(ctx, first.ClaimID, errors.New("temporary")); err != nil {
		t.Fatalf("fail claim: %v", err)
	}
	second, claimed, err := ledger.Claim(ctx, "Ev1", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected retry_ready event to be reclaimed, got claimed=%v err=%v", claimed, err)
	}
	if second.Attempts != 2 || second.ClaimID == first.ClaimID || second.ID != first.ID {
		t.Fatalf("unexpected reclaim record %+v", second)
	}

	// A stale claim id cannot settle the newer claim.
	if err := ledger.Complete(ctx, first.ClaimID); err != nil {
		t.Fatalf("complete stale claim: %v", err)
	}
	if record, _ := ledger.Get("Ev1"); record.Status != core.DeliveryStatusProcessing {
		t.Fatalf("expected processing after stale complete, got %q", record.Status)
	}

	if err := ledger.Complete(ctx, second.ClaimID); err != nil {
		t.Fatalf("complete claim: %v", err)
	}
	if _, claimed, _ := ledger.Claim(ctx, "Ev1", time.Minute); claimed {
		t.Fatalf("expected processed event not to be reclaimed")
	}

	now = now.Add(DefaultRetention + time.Second)
	if _, claimed, _ := ledger.Claim(ctx, "Ev1", time.Minute); !claimed {
		t.Fatalf("expected processed event to be forgotten after retention")
	}
}

func TestMemoryLedger_ExpiredLeaseIsReclaimable(t *testing.T) {
	now := testNow
	ledger := NewMemoryLedger()
	ledger.Now = func() time.Time { return now }
	ctx := context.Background()

	if _, claimed, _ := ledger.Claim(ctx, "Ev2", time.Second); !claimed {
		t.Fatalf("expected claim")
	}
	now = now.Add(2 * time.Second)
	record, claimed, err := ledger.Claim(ctx, "Ev2", time.Second)
	if err != nil || !claimed {
		t.Fatalf("expected expired lease to be reclaimable, got claimed=%v err=%v", claimed, err)
	}
	if record.Attempts != 2 {
		t.Fatalf("expected attempt count 2, got %d", record.Attempts)
	}
}

func TestMemoryLedger_RejectsBlankIdentifiers(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	if _, _, err := ledger.Claim(ctx, " ", time.Minute); err == nil {
		t.Fatalf("expected blank event id error")
	}
	err := ledger.Complete(ctx, "")
	if err == nil {
		t.Fatalf("expected blank claim id error")
	}
	if rich := core.ToServiceError(err); rich.TextCode != core.ErrorTextBadInput {
		t.Fatalf("expected bad input text code, got %q", rich.TextCode)
	}
	if err := ledger.Fail(ctx, "unknown", nil); err != nil {
		t.Fatalf("expected unknown claim to be ignored, got %v", err)
	}
}
