package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lumopay/lumopay/internal/ledger"
)

// ErrInsufficientFunds occurs when a debit would drive the balance below zero.
// It is raised before any write is attempted.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Service exposes balance reads, conditional balance mutations and transaction
// history. It holds no state of its own; concurrency safety comes entirely from
// the repository's compare-and-set contract.
type Service struct {
	repo    Repository
	entries ledger.Store
}

// NewService builds a wallet service instance.
func NewService(repo Repository, entries ledger.Store) *Service {
	return &Service{repo: repo, entries: entries}
}

// Create provisions a wallet for an owner. A second call for the same owner
// returns the existing wallet.
func (s *Service) Create(ctx context.Context, ownerID, currency string) (Wallet, error) {
	if currency == "" {
		currency = "USD"
	}
	w := Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	w.UpdatedAt = w.CreatedAt

	if err := s.repo.Create(ctx, w); err != nil {
		if errors.Is(err, ErrExists) {
			return s.repo.GetByOwner(ctx, ownerID)
		}
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner retrieves the wallet owned by the given user.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Balance returns the current balance for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: w.Balance, Currency: w.Currency, AsOf: time.Now().UTC()}, nil
}

// ApplyDelta applies a signed delta to the wallet balance with optimistic
// concurrency: the write succeeds only if the stored balance still equals
// expected. On ErrConflict the caller re-reads and retries or aborts; the
// service never guesses the resulting balance and never silently overwrites.
func (s *Service) ApplyDelta(ctx context.Context, id string, delta, expected int64) (int64, error) {
	newBalance := expected + delta
	if newBalance < 0 {
		return 0, ErrInsufficientFunds
	}
	if err := s.repo.CompareAndSetBalance(ctx, id, expected, newBalance); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Transactions lists ledger entries for the wallet, newest first.
func (s *Service) Transactions(ctx context.Context, id string, filter ledger.Filter) ([]ledger.Entry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.entries.ListByWallet(ctx, id, filter)
}
