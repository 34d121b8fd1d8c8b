package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEntryNotFound indicates the referenced ledger entry does not exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrAlreadyFinal indicates the entry already reached a terminal status and
	// cannot transition again.
	ErrAlreadyFinal = errors.New("ledger entry already finalized")
)

// Entry kinds. One entry records one signed monetary movement against one wallet.
const (
	KindPayment  = "payment"
	KindP2P      = "p2p"
	KindFund     = "fund"
	KindWithdraw = "withdraw"
)

// Entry statuses. An entry is created pending and transitions at most once to a
// terminal state; metadata may still be annotated afterwards.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Entry is an append-mostly transaction record. Amount is in minor currency
// units, negative for debits and positive for credits.
type Entry struct {
	ID        string
	WalletID  string
	Kind      string
	Amount    int64
	Status    string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Filter narrows and paginates history listings.
type Filter struct {
	Kind   string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Store persists ledger entries. Implementations use only single-row inserts
// and single-row conditional updates; there is no multi-row transaction.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
	Get(ctx context.Context, id string) (Entry, error)
	// MarkStatus transitions a pending entry to the given terminal status. It
	// returns ErrAlreadyFinal when the entry is no longer pending, which lets
	// callers treat duplicate settlement callbacks as no-ops.
	MarkStatus(ctx context.Context, id, status string) error
	// Annotate sets a metadata key on an entry. Metadata is the only field that
	// may change after an entry is finalized.
	Annotate(ctx context.Context, id, key, value string) error
	// ListByWallet returns entries for a wallet newest first.
	ListByWallet(ctx context.Context, walletID string, filter Filter) ([]Entry, error)
}

// IsTerminal reports whether the status is one an entry cannot leave.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
