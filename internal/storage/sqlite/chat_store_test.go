package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
)

func TestChatStore_AppendAndList(t *testing.T) {
	store := NewChatStore(openTestDB(t))
	ctx := context.Background()

	userID := uuid.New()
	runID := uuid.New()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	entries := []*domain.ChatEntry{
		domain.NewChatEntry(userID, 1, runID, 1, 1, domain.RoleAI, "Welcome to problem 1."),
		domain.NewChatEntry(userID, 1, runID, 1, 1, domain.RoleUser, "my answer"),
		domain.NewChatEntry(userID, 1, runID, 1, 1, domain.RoleAI, "Correct!"),
	}
	for i, e := range entries {
		e.SentAt = base.Add(time.Duration(i) * time.Second)
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := store.ListByRun(ctx, userID, 1, runID)
	if err != nil {
		t.Fatalf("ListByRun() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d; want 3", len(got))
	}
	for i, e := range got {
		if e.Message != entries[i].Message {
			t.Errorf("entry[%d].Message = %q; want %q", i, e.Message, entries[i].Message)
		}
	}
	if got[0].Role != domain.RoleAI || got[1].Role != domain.RoleUser {
		t.Errorf("roles = %s, %s", got[0].Role, got[1].Role)
	}
}

func TestChatStore_ListByRun_ScopedToRun(t *testing.T) {
	store := NewChatStore(openTestDB(t))
	ctx := context.Background()

	userID := uuid.New()
	runA := uuid.New()
	runB := uuid.New()

	if err := store.Append(ctx, domain.NewChatEntry(userID, 1, runA, 1, 1, domain.RoleUser, "in run A")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, domain.NewChatEntry(userID, 1, runB, 1, 1, domain.RoleUser, "in run B")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := store.ListByRun(ctx, userID, 1, runA)
	if err != nil {
		t.Fatalf("ListByRun() error = %v", err)
	}
	if len(got) != 1 || got[0].Message != "in run A" {
		t.Errorf("ListByRun(runA) = %+v", got)
	}
}
