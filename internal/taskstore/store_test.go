package taskstore

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, zerolog.Nop(), nil)
}

func TestExactDedupOverwritesDescriptionAndKeepsID(t *testing.T) {
	s := newTestStore(t)

	first, fresh, err := s.Create(CreateRequest{Title: "T", Location: "L", Description: "first"})
	if err != nil || !fresh {
		t.Fatalf("expected fresh create, err=%v fresh=%v", err, fresh)
	}

	second, fresh2, err := s.Create(CreateRequest{Title: "T", Location: "L", Description: "second"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if fresh2 {
		t.Fatalf("expected dedup to fold into existing row, not create fresh")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same id, got %s vs %s", first.ID, second.ID)
	}
	if second.Description != "second" {
		t.Fatalf("expected description overwritten, got %q", second.Description)
	}
}

func TestSemanticDedupByZoneAndOverlappingTaskType(t *testing.T) {
	s := newTestStore(t)

	first, _, err := s.Create(CreateRequest{Title: "A", Location: "L1", Zone: "main", TaskType: []string{"supply", "cleaning"}})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	second, fresh, err := s.Create(CreateRequest{Title: "B", Location: "L2", Zone: "main", TaskType: []string{"cleaning", "other"}})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if fresh {
		t.Fatalf("expected semantic dedup to fold B into A")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same id for overlapping task_type in same zone")
	}
}

func TestDifferentZonesProduceDistinctTasks(t *testing.T) {
	s := newTestStore(t)

	first, _, _ := s.Create(CreateRequest{Title: "A", Location: "L1", Zone: "main", TaskType: []string{"supply"}})
	second, fresh, err := s.Create(CreateRequest{Title: "B", Location: "L2", Zone: "kitchen", TaskType: []string{"supply"}})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !fresh || second.ID == first.ID {
		t.Fatalf("expected distinct task for a different zone, got fresh=%v id=%s vs %s", fresh, second.ID, first.ID)
	}
}

func TestCompletingThenRecreatingYieldsNewID(t *testing.T) {
	s := newTestStore(t)

	first, _, err := s.Create(CreateRequest{Title: "T", Location: "L"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.Complete(first.ID, CompleteRequest{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	second, fresh, err := s.Create(CreateRequest{Title: "T", Location: "L"})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if !fresh || second.ID == first.ID {
		t.Fatalf("expected a new task after the first was completed, got fresh=%v id=%s vs %s", fresh, second.ID, first.ID)
	}
}

func TestAcceptLifecycleGuards(t *testing.T) {
	s := newTestStore(t)
	task, _, _ := s.Create(CreateRequest{Title: "T", Location: "L"})

	uid := "7"
	if _, err := s.Accept(task.ID, &uid); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := s.Accept(task.ID, &uid); err != ErrAlreadyAccepted {
		t.Fatalf("expected ErrAlreadyAccepted, got %v", err)
	}

	if _, err := s.Complete(task.ID, CompleteRequest{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := s.Accept(task.ID, &uid); err != ErrAlreadyCompleted {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestBountyCapRejected(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Create(CreateRequest{Title: "T", Location: "L", BountyGold: 6000})
	if err == nil {
		t.Fatalf("expected bounty cap rejection")
	}
}
