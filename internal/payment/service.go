package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumopay/lumopay/internal/ledger"
	"github.com/lumopay/lumopay/internal/notification"
	"github.com/lumopay/lumopay/internal/wallet"
)

var (
	// ErrInvalidPayment indicates bad input (amount, merchant id).
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrBalanceChanged indicates the debit lost the conditional write race on
	// every attempt within the retry budget; nothing was charged.
	ErrBalanceChanged = errors.New("balance changed")

	// ErrNotPayment indicates the ledger entry is not a merchant payment.
	ErrNotPayment = errors.New("entry is not a merchant payment")
)

// Payment statuses exposed to callers.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Rewards awards loyalty points for completed payments. Implemented by the
// rewards engine; award is idempotent per source transaction.
type Rewards interface {
	Award(ctx context.Context, userID string, amount int64, sourceTxID string) error
}

// Service runs merchant payments: debit first, then settle with the external
// processor, refunding the payer when settlement fails. A failed payment must
// never leave the payer short, so the refund is retried against the
// then-current balance until it lands.
type Service struct {
	wallets     *wallet.Service
	entries     ledger.Store
	processor   Processor
	rewards     Rewards
	notifier    notification.Notifier
	timeout     time.Duration
	retryBudget int
}

// NewService constructs a payment service. A nil processor falls back to the
// static stub; rewards and notifier may be nil.
func NewService(wallets *wallet.Service, entries ledger.Store, processor Processor, rewards Rewards, notifier notification.Notifier, timeout time.Duration, retryBudget int) *Service {
	if processor == nil {
		processor = StaticProcessor{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retryBudget < 1 {
		retryBudget = 3
	}
	return &Service{
		wallets:     wallets,
		entries:     entries,
		processor:   processor,
		rewards:     rewards,
		notifier:    notifier,
		timeout:     timeout,
		retryBudget: retryBudget,
	}
}

// PayInput captures a merchant payment attempt.
type PayInput struct {
	UserID     string
	MerchantID string
	Amount     int64
	Nonce      string
	Channel    string
}

// PayResult is the terminal outcome of a payment attempt. A declined payment
// is a result (status failed, balance restored), not a transport error.
type PayResult struct {
	PaymentID  string
	Status     string
	NewBalance int64
}

// Pay debits the payer, opens a pending ledger entry and settles it with the
// processor under a bounded wait. A processor failure or timeout marks the
// entry failed and credits the payer back.
func (s *Service) Pay(ctx context.Context, input PayInput) (PayResult, error) {
	if input.Amount <= 0 || input.MerchantID == "" {
		return PayResult{}, ErrInvalidPayment
	}

	w, err := s.wallets.GetByOwner(ctx, input.UserID)
	if err != nil {
		return PayResult{}, err
	}

	var newBalance int64
	debited := false
	for attempt := 0; attempt < s.retryBudget; attempt++ {
		if w.Balance < input.Amount {
			return PayResult{}, wallet.ErrInsufficientFunds
		}
		newBalance, err = s.wallets.ApplyDelta(ctx, w.ID, -input.Amount, w.Balance)
		if err == nil {
			debited = true
			break
		}
		if !errors.Is(err, wallet.ErrConflict) {
			return PayResult{}, err
		}
		if w, err = s.wallets.Get(ctx, w.ID); err != nil {
			return PayResult{}, err
		}
	}
	if !debited {
		return PayResult{}, ErrBalanceChanged
	}

	entry := ledger.Entry{
		ID:       uuid.NewString(),
		WalletID: w.ID,
		Kind:     ledger.KindPayment,
		Amount:   -input.Amount,
		Status:   ledger.StatusPending,
		Metadata: map[string]string{
			"merchant_id": input.MerchantID,
			"channel":     input.Channel,
			"nonce":       input.Nonce,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.entries.Insert(ctx, entry); err != nil {
		// The debit is durable but the entry is not; put the money back.
		if rerr := s.refund(ctx, w.ID, input.Amount); rerr != nil {
			return PayResult{}, rerr
		}
		return PayResult{}, err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	decision, err := s.processor.Charge(chargeCtx, ChargeRequest{
		Reference:  entry.ID,
		MerchantID: input.MerchantID,
		Nonce:      input.Nonce,
		Channel:    input.Channel,
		Amount:     input.Amount,
	})
	approved := err == nil && decision.Approved

	res, err := s.Settle(ctx, entry.ID, approved)
	if err != nil {
		return PayResult{}, err
	}
	if res.Status == StatusCompleted {
		res.NewBalance = newBalance
	}
	return res, nil
}

// Settle finalizes a pending payment entry. It is the settlement callback:
// duplicate calls for an already-terminal entry are no-ops with the same
// result, keyed by the ledger entry id.
func (s *Service) Settle(ctx context.Context, entryID string, approved bool) (PayResult, error) {
	entry, err := s.entries.Get(ctx, entryID)
	if err != nil {
		return PayResult{}, err
	}
	if entry.Kind != ledger.KindPayment {
		return PayResult{}, ErrNotPayment
	}

	amount := -entry.Amount

	if approved {
		if err := s.entries.MarkStatus(ctx, entryID, ledger.StatusCompleted); err != nil {
			if errors.Is(err, ledger.ErrAlreadyFinal) {
				return s.terminalResult(ctx, entryID)
			}
			return PayResult{}, err
		}
		if s.rewards != nil {
			owner, err := s.wallets.Get(ctx, entry.WalletID)
			if err == nil {
				_ = s.rewards.Award(ctx, owner.OwnerID, amount, entryID)
			}
		}
		w, err := s.wallets.Get(ctx, entry.WalletID)
		if err != nil {
			return PayResult{}, err
		}
		return PayResult{PaymentID: entryID, Status: StatusCompleted, NewBalance: w.Balance}, nil
	}

	if err := s.entries.MarkStatus(ctx, entryID, ledger.StatusFailed); err != nil {
		if errors.Is(err, ledger.ErrAlreadyFinal) {
			return s.terminalResult(ctx, entryID)
		}
		return PayResult{}, err
	}
	_ = s.entries.Annotate(ctx, entryID, "failure_reason", "processor declined or timed out")

	if err := s.refund(ctx, entry.WalletID, amount); err != nil {
		return PayResult{}, err
	}

	w, err := s.wallets.Get(ctx, entry.WalletID)
	if err != nil {
		return PayResult{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPaymentFailed,
			Destination: w.OwnerID,
			Body:        fmt.Sprintf("Payment of %d failed and was refunded", amount),
		})
	}

	return PayResult{PaymentID: entryID, Status: StatusFailed, NewBalance: w.Balance}, nil
}

// refund credits the amount back, retrying against the then-current balance
// for as long as the write keeps conflicting. Only context cancellation or a
// hard store error stops it.
func (s *Service) refund(ctx context.Context, walletID string, amount int64) error {
	for {
		w, err := s.wallets.Get(ctx, walletID)
		if err != nil {
			return err
		}
		if _, err := s.wallets.ApplyDelta(ctx, walletID, amount, w.Balance); err == nil {
			return nil
		} else if !errors.Is(err, wallet.ErrConflict) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (s *Service) terminalResult(ctx context.Context, entryID string) (PayResult, error) {
	entry, err := s.entries.Get(ctx, entryID)
	if err != nil {
		return PayResult{}, err
	}
	w, err := s.wallets.Get(ctx, entry.WalletID)
	if err != nil {
		return PayResult{}, err
	}
	status := StatusFailed
	if entry.Status == ledger.StatusCompleted {
		status = StatusCompleted
	}
	return PayResult{PaymentID: entryID, Status: status, NewBalance: w.Balance}, nil
}
