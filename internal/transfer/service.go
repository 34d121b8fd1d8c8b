package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumopay/lumopay/internal/identity"
	"github.com/lumopay/lumopay/internal/ledger"
	"github.com/lumopay/lumopay/internal/notification"
	"github.com/lumopay/lumopay/internal/wallet"
)

var (
	// ErrInvalidAmount indicates the amount is non-positive or above the cap.
	ErrInvalidAmount = errors.New("invalid transfer amount")

	// ErrSelfTransfer indicates sender and recipient are the same user.
	ErrSelfTransfer = errors.New("cannot transfer to self")

	// ErrRecipientNotFound indicates the contact resolves to no known user.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrNotAuthorized indicates the payer has not passed identity verification.
	ErrNotAuthorized = errors.New("transfer not authorized")

	// ErrBalanceChanged indicates the debit lost the conditional write race on
	// every attempt within the retry budget. No balance was modified; the whole
	// operation is safe to retry.
	ErrBalanceChanged = errors.New("balance changed")

	// ErrPartiallySettled indicates the debit was applied but the credit could
	// not land. The debit is never rolled back; the record is parked for
	// operator reconciliation.
	ErrPartiallySettled = errors.New("transfer partially settled")

	// ErrRequestExpired indicates the money request lapsed before a response.
	ErrRequestExpired = errors.New("request expired")

	// ErrRequestAlreadyResolved indicates the request left the pending state.
	ErrRequestAlreadyResolved = errors.New("request already resolved")

	// ErrInvalidDecision indicates an unknown respond decision.
	ErrInvalidDecision = errors.New("invalid decision")
)

// Directory resolves contact identifiers and answers the trust predicate. The
// identity service satisfies it; in production it fronts the identity provider.
type Directory interface {
	ResolveContact(ctx context.Context, contact string) (identity.User, error)
	Verified(ctx context.Context, userID string) (bool, error)
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	Currency      string
	MaxAmount     int64
	RetryBudget   int
	RequestExpiry time.Duration
}

// Service orchestrates P2P sends and money requests as sequences of single-row
// conditional writes. There is no cross-row transaction anywhere: a debit that
// conflicts is retried from a fresh read, and an applied debit is never undone.
type Service struct {
	wallets   *wallet.Service
	records   Store
	entries   ledger.Store
	directory Directory
	notifier  notification.Notifier
	opts      Options
}

// NewService constructs a transfer service.
func NewService(wallets *wallet.Service, records Store, entries ledger.Store, directory Directory, notifier notification.Notifier, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.MaxAmount <= 0 {
		opts.MaxAmount = 1_000_000
	}
	if opts.RetryBudget < 1 {
		opts.RetryBudget = 3
	}
	if opts.RequestExpiry <= 0 {
		opts.RequestExpiry = 24 * time.Hour
	}
	return &Service{wallets: wallets, records: records, entries: entries, directory: directory, notifier: notifier, opts: opts}
}

// SendInput captures the data needed to move funds between users.
type SendInput struct {
	SenderID         string
	RecipientContact string
	Amount           int64
}

// SendResult describes the outcome of a settled transfer.
type SendResult struct {
	TransferID       string
	LedgerTxID       string
	NewSenderBalance int64
}

// Send executes a P2P transfer: resolve, authorize, debit, credit, record.
func (s *Service) Send(ctx context.Context, input SendInput) (SendResult, error) {
	if input.Amount <= 0 || input.Amount > s.opts.MaxAmount {
		return SendResult{}, ErrInvalidAmount
	}

	recipient, err := s.directory.ResolveContact(ctx, input.RecipientContact)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return SendResult{}, ErrRecipientNotFound
		}
		return SendResult{}, err
	}
	if recipient.ID == input.SenderID {
		return SendResult{}, ErrSelfTransfer
	}

	verified, err := s.directory.Verified(ctx, input.SenderID)
	if err != nil {
		return SendResult{}, err
	}
	if !verified {
		return SendResult{}, ErrNotAuthorized
	}

	rec := Record{
		ID:          uuid.NewString(),
		SenderID:    input.SenderID,
		RecipientID: recipient.ID,
		Amount:      input.Amount,
		Status:      StatusAccepted,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		return SendResult{}, err
	}

	return s.settle(ctx, rec)
}

// RequestInput captures a money request.
type RequestInput struct {
	RequesterID  string
	PayerContact string
	Amount       int64
	ExpiresIn    time.Duration
}

// Request records a pending money request. No ledger entry exists until the
// payer accepts.
func (s *Service) Request(ctx context.Context, input RequestInput) (Record, error) {
	if input.Amount <= 0 || input.Amount > s.opts.MaxAmount {
		return Record{}, ErrInvalidAmount
	}

	payer, err := s.directory.ResolveContact(ctx, input.PayerContact)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return Record{}, ErrRecipientNotFound
		}
		return Record{}, err
	}
	if payer.ID == input.RequesterID {
		return Record{}, ErrSelfTransfer
	}

	expiresIn := input.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = s.opts.RequestExpiry
	}

	now := time.Now().UTC()
	rec := Record{
		ID:          uuid.NewString(),
		SenderID:    payer.ID,
		RecipientID: input.RequesterID,
		Amount:      input.Amount,
		Status:      StatusPending,
		ExpiresAt:   now.Add(expiresIn),
		CreatedAt:   now,
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		return Record{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindMoneyRequested,
			Destination: payer.ID,
			Body:        fmt.Sprintf("Request for %d pending your approval", input.Amount),
		})
	}

	return rec, nil
}

// Respond resolves a pending money request. The pending→accepted claim is a
// conditional write, so concurrent accepts of the same request cannot both
// charge the payer.
func (s *Service) Respond(ctx context.Context, requestID, responderID, decision string) (Record, error) {
	rec, err := s.records.Get(ctx, requestID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusPending {
		return rec, ErrRequestAlreadyResolved
	}
	if rec.SenderID != responderID {
		return rec, ErrNotAuthorized
	}

	if !rec.ExpiresAt.IsZero() && time.Now().UTC().After(rec.ExpiresAt) {
		if err := s.records.Transition(ctx, requestID, StatusPending, StatusFailed, ""); err != nil && !errors.Is(err, ErrStatusChanged) {
			return rec, err
		}
		rec.Status = StatusFailed
		return rec, ErrRequestExpired
	}

	switch decision {
	case DecisionDecline:
		if err := s.records.Transition(ctx, requestID, StatusPending, StatusCancelled, ""); err != nil {
			if errors.Is(err, ErrStatusChanged) {
				return rec, ErrRequestAlreadyResolved
			}
			return rec, err
		}
		rec.Status = StatusCancelled
		return rec, nil

	case DecisionAccept:
		verified, err := s.directory.Verified(ctx, responderID)
		if err != nil {
			return rec, err
		}
		if !verified {
			return rec, ErrNotAuthorized
		}
		if err := s.records.Transition(ctx, requestID, StatusPending, StatusAccepted, ""); err != nil {
			if errors.Is(err, ErrStatusChanged) {
				return rec, ErrRequestAlreadyResolved
			}
			return rec, err
		}
		rec.Status = StatusAccepted
		if _, err := s.settle(ctx, rec); err != nil {
			return rec, err
		}
		return s.records.Get(ctx, requestID)

	default:
		return rec, ErrInvalidDecision
	}
}

// PartiallySettled lists transfers whose debit landed but whose credit did not.
// These are surfaced for manual reconciliation rather than retried blindly: the
// applied debit may already have been observed by other operations and cannot
// safely be undone.
func (s *Service) PartiallySettled(ctx context.Context) ([]Record, error) {
	return s.records.ListByStatus(ctx, StatusPartiallySettled)
}

// settle runs the debit/credit sequence for a record in the accepted state and
// finalizes it. The debit uses the balance from its own read as the expected
// value and re-reads on conflict, up to the retry budget. Once the debit is
// durably applied the operation runs to completion or to partially_settled; it
// is never rolled back.
func (s *Service) settle(ctx context.Context, rec Record) (SendResult, error) {
	senderWallet, err := s.wallets.GetByOwner(ctx, rec.SenderID)
	if err != nil {
		s.markFailed(ctx, rec.ID)
		return SendResult{}, err
	}

	var newSenderBalance int64
	debited := false
	for attempt := 0; attempt < s.opts.RetryBudget; attempt++ {
		if senderWallet.Balance < rec.Amount {
			s.markFailed(ctx, rec.ID)
			return SendResult{}, wallet.ErrInsufficientFunds
		}
		newSenderBalance, err = s.wallets.ApplyDelta(ctx, senderWallet.ID, -rec.Amount, senderWallet.Balance)
		if err == nil {
			debited = true
			break
		}
		if !errors.Is(err, wallet.ErrConflict) {
			s.markFailed(ctx, rec.ID)
			return SendResult{}, err
		}
		senderWallet, err = s.wallets.Get(ctx, senderWallet.ID)
		if err != nil {
			s.markFailed(ctx, rec.ID)
			return SendResult{}, err
		}
	}
	if !debited {
		s.markFailed(ctx, rec.ID)
		return SendResult{}, ErrBalanceChanged
	}

	// Debit applied. Credit is retried against fresh reads; if it cannot land
	// the record is parked for reconciliation instead of failed.
	recipientWallet, err := s.wallets.Create(ctx, rec.RecipientID, s.opts.Currency)
	if err != nil {
		_ = s.records.Transition(ctx, rec.ID, StatusAccepted, StatusPartiallySettled, "")
		return SendResult{TransferID: rec.ID, NewSenderBalance: newSenderBalance}, ErrPartiallySettled
	}

	credited := false
	for attempt := 0; attempt < s.opts.RetryBudget; attempt++ {
		if _, err = s.wallets.ApplyDelta(ctx, recipientWallet.ID, rec.Amount, recipientWallet.Balance); err == nil {
			credited = true
			break
		}
		if !errors.Is(err, wallet.ErrConflict) {
			break
		}
		if recipientWallet, err = s.wallets.Get(ctx, recipientWallet.ID); err != nil {
			break
		}
	}
	if !credited {
		_ = s.records.Transition(ctx, rec.ID, StatusAccepted, StatusPartiallySettled, "")
		return SendResult{TransferID: rec.ID, NewSenderBalance: newSenderBalance}, ErrPartiallySettled
	}

	txID := uuid.NewString()
	now := time.Now().UTC()
	debitEntry := ledger.Entry{
		ID:       uuid.NewString(),
		WalletID: senderWallet.ID,
		Kind:     ledger.KindP2P,
		Amount:   -rec.Amount,
		Status:   ledger.StatusCompleted,
		Metadata: map[string]string{
			"tx_id":        txID,
			"transfer_id":  rec.ID,
			"counterparty": rec.RecipientID,
		},
		CreatedAt: now,
	}
	creditEntry := ledger.Entry{
		ID:       uuid.NewString(),
		WalletID: recipientWallet.ID,
		Kind:     ledger.KindP2P,
		Amount:   rec.Amount,
		Status:   ledger.StatusCompleted,
		Metadata: map[string]string{
			"tx_id":        txID,
			"transfer_id":  rec.ID,
			"counterparty": rec.SenderID,
		},
		CreatedAt: now,
	}
	if err := s.entries.Insert(ctx, debitEntry); err != nil {
		return SendResult{TransferID: rec.ID, NewSenderBalance: newSenderBalance}, err
	}
	if err := s.entries.Insert(ctx, creditEntry); err != nil {
		return SendResult{TransferID: rec.ID, NewSenderBalance: newSenderBalance}, err
	}

	if err := s.records.Transition(ctx, rec.ID, StatusAccepted, StatusCompleted, txID); err != nil {
		return SendResult{TransferID: rec.ID, NewSenderBalance: newSenderBalance}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: rec.RecipientID,
			Body:        fmt.Sprintf("You received %d from user %s", rec.Amount, rec.SenderID),
		})
	}

	return SendResult{TransferID: rec.ID, LedgerTxID: txID, NewSenderBalance: newSenderBalance}, nil
}

func (s *Service) markFailed(ctx context.Context, recordID string) {
	_ = s.records.Transition(ctx, recordID, StatusAccepted, StatusFailed, "")
}
