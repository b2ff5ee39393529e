package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"status":"pending"}`),
	}

	saved, err := repo.Enqueue(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID != saved.ID {
		t.Fatalf("expected same message id, got %s", pending[0].ID)
	}
}

func TestOutboxRepository_PullOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		if _, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: id, CreatedAt: base.Add(time.Duration(3-i) * time.Minute)}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	pending, err := repo.PullPending(ctx, 2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "b" || pending[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", pending)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 3 {
		t.Fatalf("expected 3 pending, got %d", stats.PendingCount)
	}
	if !stats.OldestPendingAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected oldest pending at %s", stats.OldestPendingAt)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	sent, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder})
	failed, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder})

	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, failed.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing record")
	}

	if got := len(repo.AllPending()); got != 0 {
		t.Fatalf("expected empty backlog, got %d", got)
	}
}
