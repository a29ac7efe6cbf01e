package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/mistakeknot/concord/internal/core"
)

func TestAppendEventsChain(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := NewSQLiteTest(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	append1 := func(actor, project, desc string) core.EventReceipt {
		t.Helper()
		res, err := st.AppendEvents(ctx, "graph-1", []core.Event{{
			ActorID:     actor,
			ProjectID:   project,
			Category:    core.EventFix,
			Description: desc,
		}})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if len(res.Receipts) != 1 || res.Rejected != 0 {
			t.Fatalf("unexpected result: %+v", res)
		}
		now = now.Add(time.Second)
		return res.Receipts[0]
	}

	first := append1("alice", "proj-1", "first")
	second := append1("alice", "proj-1", "second")
	// A different project starts its own chain even for the same actor.
	other := append1("alice", "proj-2", "elsewhere")
	third := append1("alice", "proj-1", "third")

	chain, err := st.EventChain(ctx, "alice", "proj-1", 10)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected 3 events, got %d", len(chain))
	}
	if chain[0].ID != first.ID || chain[1].ID != second.ID || chain[2].ID != third.ID {
		t.Fatalf("chain out of order: %+v", chain)
	}
	if chain[0].PrevID != "" {
		t.Fatalf("chain head must have no predecessor, got %q", chain[0].PrevID)
	}
	if chain[1].PrevID != first.ID || chain[2].PrevID != second.ID {
		t.Fatalf("prev links broken: %q %q", chain[1].PrevID, chain[2].PrevID)
	}

	otherChain, err := st.EventChain(ctx, "alice", "proj-2", 10)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(otherChain) != 1 || otherChain[0].ID != other.ID || otherChain[0].PrevID != "" {
		t.Fatalf("per-project chain leaked across projects: %+v", otherChain)
	}
}

func TestAppendEventsBatch(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	res, err := st.AppendEvents(ctx, "graph-1", []core.Event{
		{ActorID: "alice", ProjectID: "proj-1", Category: core.EventFeature, Description: "ok"},
		{ActorID: "", ProjectID: "proj-1", Category: core.EventFeature, Description: "no actor"},
		{ActorID: "alice", ProjectID: "proj-1", Category: core.EventDecision, Description: ""},
		{ActorID: "alice", ProjectID: "proj-1", Category: core.EventInsight, Description: "also ok"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(res.Receipts) != 2 || res.Rejected != 2 {
		t.Fatalf("expected 2 accepted and 2 rejected, got %d/%d", len(res.Receipts), res.Rejected)
	}

	// Invalid entries must not break the chain between valid neighbors.
	chain, err := st.EventChain(ctx, "alice", "proj-1", 10)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(chain))
	}
	if chain[1].PrevID != chain[0].ID {
		t.Fatalf("second event must link to the first, got %q", chain[1].PrevID)
	}
}

func TestAppendEventsMetadata(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	res, err := st.AppendEvents(ctx, "graph-1", []core.Event{{
		ActorID:     "alice",
		OrgID:       "org-1",
		ProjectID:   "proj-1",
		Category:    core.EventGit,
		Description: "merged release branch",
		Impact:      "high",
		Files:       []string{"a.go", "b.go"},
		Tags:        []string{"release"},
		Shared:      true,
		Payload:     map[string]string{"branch": "release/1.2"},
	}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(res.Receipts) != 1 {
		t.Fatalf("expected one receipt, got %+v", res)
	}

	chain, err := st.EventChain(ctx, "alice", "proj-1", 1)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	got := chain[0]
	if got.Impact != "high" || !got.Shared {
		t.Fatalf("metadata lost: %+v", got)
	}
	if len(got.Files) != 2 || got.Files[0] != "a.go" {
		t.Fatalf("files lost: %v", got.Files)
	}
	if got.Payload["branch"] != "release/1.2" {
		t.Fatalf("payload lost: %v", got.Payload)
	}
}

func TestEventChainLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := NewSQLiteTest(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := st.AppendEvents(ctx, "graph-1", []core.Event{{
			ActorID:     "alice",
			ProjectID:   "proj-1",
			Category:    core.EventFix,
			Description: "step",
		}}); err != nil {
			t.Fatalf("append: %v", err)
		}
		now = now.Add(time.Second)
	}

	chain, err := st.EventChain(ctx, "alice", "proj-1", 2)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2, got %d", len(chain))
	}
	// The limit keeps the newest entries, returned oldest first.
	if !chain[0].Timestamp.Before(chain[1].Timestamp) {
		t.Fatalf("expected ascending timestamps, got %s then %s", chain[0].Timestamp, chain[1].Timestamp)
	}
}
