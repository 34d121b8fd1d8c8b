package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_MarkStatusOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entry := Entry{ID: uuid.NewString(), WalletID: uuid.NewString(), Kind: KindPayment, Amount: -1_500, Status: StatusPending}
	if err := s.Insert(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.MarkStatus(ctx, entry.ID, StatusCompleted); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := s.MarkStatus(ctx, entry.ID, StatusFailed); err != ErrAlreadyFinal {
		t.Fatalf("expected ErrAlreadyFinal, got %v", err)
	}

	got, err := s.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("terminal status overwritten: %s", got.Status)
	}
}

func TestMemoryStore_AnnotateAfterFinal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entry := Entry{ID: uuid.NewString(), WalletID: uuid.NewString(), Kind: KindP2P, Amount: 500, Status: StatusPending}
	if err := s.Insert(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.MarkStatus(ctx, entry.ID, StatusFailed); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := s.Annotate(ctx, entry.ID, "failure_reason", "processor timeout"); err != nil {
		t.Fatalf("annotate: %v", err)
	}
	got, _ := s.Get(ctx, entry.ID)
	if got.Metadata["failure_reason"] != "processor timeout" {
		t.Fatalf("annotation lost: %+v", got.Metadata)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	walletID := uuid.NewString()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := s.Insert(ctx, Entry{
			ID:        uuid.NewString(),
			WalletID:  walletID,
			Kind:      KindP2P,
			Amount:    int64(100 * (i + 1)),
			Status:    StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	entries, err := s.ListByWallet(ctx, walletID, Filter{Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Amount != 500 || entries[2].Amount != 300 {
		t.Fatalf("unexpected order: %+v", entries)
	}

	page2, err := s.ListByWallet(ctx, walletID, Filter{Limit: 3, Offset: 3})
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(page2) != 2 || page2[0].Amount != 200 {
		t.Fatalf("unexpected second page: %+v", page2)
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	walletID := uuid.NewString()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s.Insert(ctx, Entry{ID: uuid.NewString(), WalletID: walletID, Kind: KindP2P, Amount: -100, Status: StatusCompleted, CreatedAt: base})
	s.Insert(ctx, Entry{ID: uuid.NewString(), WalletID: walletID, Kind: KindPayment, Amount: -200, Status: StatusCompleted, CreatedAt: base.AddDate(0, 0, 1)})
	s.Insert(ctx, Entry{ID: uuid.NewString(), WalletID: uuid.NewString(), Kind: KindP2P, Amount: -300, Status: StatusCompleted, CreatedAt: base})

	entries, err := s.ListByWallet(ctx, walletID, Filter{Kind: KindPayment, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != -200 {
		t.Fatalf("kind filter broken: %+v", entries)
	}

	entries, err = s.ListByWallet(ctx, walletID, Filter{From: base.AddDate(0, 0, 1), Limit: 10})
	if err != nil {
		t.Fatalf("list from: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != KindPayment {
		t.Fatalf("date filter broken: %+v", entries)
	}
}
