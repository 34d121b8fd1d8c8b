package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumopay/lumopay/internal/ledger"
	"github.com/lumopay/lumopay/internal/wallet"
)

type decliningProcessor struct{}

func (decliningProcessor) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	return ChargeResult{Reference: req.Reference, Approved: false}, nil
}

type timeoutProcessor struct{}

func (timeoutProcessor) Charge(ctx context.Context, _ ChargeRequest) (ChargeResult, error) {
	<-ctx.Done()
	return ChargeResult{}, ctx.Err()
}

type recordingRewards struct {
	awards map[string]int64
}

func (r *recordingRewards) Award(_ context.Context, userID string, amount int64, _ string) error {
	if r.awards == nil {
		r.awards = map[string]int64{}
	}
	r.awards[userID] += amount
	return nil
}

type paymentFixture struct {
	svc     *Service
	wallets *wallet.Service
	entries ledger.Store
	rewards *recordingRewards
	userID  string
	wallet  wallet.Wallet
}

func newPaymentFixture(t *testing.T, processor Processor, balance int64) *paymentFixture {
	t.Helper()
	repo := wallet.NewMemoryRepository()
	entries := ledger.NewMemoryStore()
	wallets := wallet.NewService(repo, entries)
	rewards := &recordingRewards{}
	svc := NewService(wallets, entries, processor, rewards, nil, 100*time.Millisecond, 3)

	userID := uuid.NewString()
	w, err := wallets.Create(context.Background(), userID, "USD")
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	wallet.SeedBalance(repo, w.ID, balance)
	w.Balance = balance

	return &paymentFixture{svc: svc, wallets: wallets, entries: entries, rewards: rewards, userID: userID, wallet: w}
}

func TestPaySuccess(t *testing.T) {
	f := newPaymentFixture(t, nil, 10_000)
	ctx := context.Background()

	res, err := f.svc.Pay(ctx, PayInput{UserID: f.userID, MerchantID: "m-42", Amount: 3_000, Nonce: "n-1", Channel: "nfc"})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if res.Status != StatusCompleted || res.NewBalance != 7_000 {
		t.Fatalf("unexpected result: %+v", res)
	}

	entry, err := f.entries.Get(ctx, res.PaymentID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != ledger.StatusCompleted || entry.Amount != -3_000 || entry.Kind != ledger.KindPayment {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Metadata["merchant_id"] != "m-42" || entry.Metadata["nonce"] != "n-1" {
		t.Fatalf("merchant annotation missing: %+v", entry.Metadata)
	}

	// The rewards engine receives the raw spend; point math lives there.
	if f.rewards.awards[f.userID] != 3_000 {
		t.Fatalf("rewards not notified of spend: %+v", f.rewards.awards)
	}
}

func TestPayValidation(t *testing.T) {
	f := newPaymentFixture(t, nil, 10_000)
	ctx := context.Background()

	if _, err := f.svc.Pay(ctx, PayInput{UserID: f.userID, MerchantID: "m-1", Amount: 0}); err != ErrInvalidPayment {
		t.Fatalf("zero amount: expected ErrInvalidPayment, got %v", err)
	}
	if _, err := f.svc.Pay(ctx, PayInput{UserID: f.userID, MerchantID: "", Amount: 100}); err != ErrInvalidPayment {
		t.Fatalf("no merchant: expected ErrInvalidPayment, got %v", err)
	}
}

func TestPayInsufficientFunds(t *testing.T) {
	f := newPaymentFixture(t, nil, 500)
	ctx := context.Background()

	if _, err := f.svc.Pay(ctx, PayInput{UserID: f.userID, MerchantID: "m-1", Amount: 1_000}); err != wallet.ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	bal, _ := f.wallets.Balance(ctx, f.wallet.ID)
	if bal.Amount != 500 {
		t.Fatalf("balance mutated: %d", bal.Amount)
	}
}

func TestPayDeclinedRefundsPayer(t *testing.T) {
	f := newPaymentFixture(t, decliningProcessor{}, 10_000)
	ctx := context.Background()

	res, err := f.svc.Pay(ctx, PayInput{UserID: f.userID, MerchantID: "m-1", Amount: 4_000})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", res.Status)
	}
	// Refund correctness: balance after the failure equals the balance before
	// the debit.
	if res.NewBalance != 10_000 {
		t.Fatalf("payer left short: %d", res.NewBalance)
	}

	entry, _ := f.entries.Get(ctx, res.PaymentID)
	if entry.Status != ledger.StatusFailed {
		t.Fatalf("entry status %s", entry.Status)
	}
	if entry.Metadata["failure_reason"] == "" {
		t.Fatalf("failure reason not annotated")
	}
	if len(f.rewards.awards) != 0 {
		t.Fatalf("points awarded for failed payment")
	}
}

func TestPayTimeoutRefundsPayer(t *testing.T) {
	f := newPaymentFixture(t, timeoutProcessor{}, 10_000)
	ctx := context.Background()

	res, err := f.svc.Pay(ctx, PayInput{UserID: f.userID, MerchantID: "m-1", Amount: 4_000})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if res.Status != StatusFailed || res.NewBalance != 10_000 {
		t.Fatalf("timeout not treated as failed+refunded: %+v", res)
	}
}

func TestSettleIdempotent(t *testing.T) {
	f := newPaymentFixture(t, nil, 10_000)
	ctx := context.Background()

	res, err := f.svc.Pay(ctx, PayInput{UserID: f.userID, MerchantID: "m-1", Amount: 2_000})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	// The duplicate settlement callback must not move money or change state.
	again, err := f.svc.Settle(ctx, res.PaymentID, true)
	if err != nil {
		t.Fatalf("duplicate settle: %v", err)
	}
	if again.Status != StatusCompleted || again.NewBalance != 8_000 {
		t.Fatalf("duplicate settle changed outcome: %+v", again)
	}

	// Even a contradictory duplicate is a no-op.
	flipped, err := f.svc.Settle(ctx, res.PaymentID, false)
	if err != nil {
		t.Fatalf("contradictory settle: %v", err)
	}
	if flipped.Status != StatusCompleted || flipped.NewBalance != 8_000 {
		t.Fatalf("contradictory settle changed outcome: %+v", flipped)
	}
}

func TestSettleRejectsNonPaymentEntries(t *testing.T) {
	f := newPaymentFixture(t, nil, 1_000)
	ctx := context.Background()

	entry := ledger.Entry{ID: uuid.NewString(), WalletID: f.wallet.ID, Kind: ledger.KindP2P, Amount: -100, Status: ledger.StatusPending}
	if err := f.entries.Insert(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := f.svc.Settle(ctx, entry.ID, true); !errors.Is(err, ErrNotPayment) {
		t.Fatalf("expected ErrNotPayment, got %v", err)
	}
}
