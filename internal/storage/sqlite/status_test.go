package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/mistakeknot/concord/internal/core"
)

func TestUpdateEpicStatus(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	epic, err := st.CreateEpic(ctx, core.Epic{GraphID: "graph-1", Title: "Q3 milestones"})
	if err != nil {
		t.Fatalf("create epic: %v", err)
	}
	if epic.Status != core.LifecycleActive {
		t.Fatalf("expected active default, got %s", epic.Status)
	}

	updated, previous, err := st.UpdateEpicStatus(ctx, "graph-1", epic.ID, core.LifecyclePaused, "alice")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if previous != core.LifecycleActive {
		t.Fatalf("expected previous active, got %s", previous)
	}
	if updated.Status != core.LifecyclePaused || updated.StatusUpdatedBy != "alice" || updated.StatusUpdatedAt == nil {
		t.Fatalf("transition not recorded: %+v", updated)
	}

	t.Run("missing epic", func(t *testing.T) {
		_, _, err := st.UpdateEpicStatus(ctx, "graph-1", "no-such-epic", core.LifecycleArchived, "alice")
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("wrong graph", func(t *testing.T) {
		_, _, err := st.UpdateEpicStatus(ctx, "graph-2", epic.ID, core.LifecycleArchived, "alice")
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestUpdateSprintStatus(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	sprint, err := st.CreateSprint(ctx, core.Sprint{GraphID: "graph-1", Name: "sprint 14"})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}

	updated, previous, err := st.UpdateSprintStatus(ctx, "graph-1", sprint.ID, core.LifecycleCompleted, "bob")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if previous != core.LifecycleActive || updated.Status != core.LifecycleCompleted {
		t.Fatalf("transition not recorded: %s -> %s", previous, updated.Status)
	}

	// A same-status update is still a transition with an accurate previous.
	again, previous, err := st.UpdateSprintStatus(ctx, "graph-1", sprint.ID, core.LifecycleCompleted, "bob")
	if err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if previous != core.LifecycleCompleted || again.Status != core.LifecycleCompleted {
		t.Fatalf("expected completed -> completed, got %s -> %s", previous, again.Status)
	}
}
