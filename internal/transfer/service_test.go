package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/lumopay/lumopay/internal/identity"
	"github.com/lumopay/lumopay/internal/ledger"
	"github.com/lumopay/lumopay/internal/wallet"
)

type fixture struct {
	svc     *Service
	wallets *wallet.Service
	// seedRepo is the raw memory repository; balance seeding bypasses any
	// conflict-injecting wrapper the service itself uses.
	seedRepo wallet.Repository
	entries  ledger.Store
	records  Store
	ids      *identity.Service
}

// flakyRepo forces conditional-write conflicts on selected wallets.
type flakyRepo struct {
	wallet.Repository
	conflictAll bool
	conflictOn  map[string]bool
}

func (r *flakyRepo) CompareAndSetBalance(ctx context.Context, id string, expected, newBalance int64) error {
	if r.conflictAll || r.conflictOn[id] {
		return wallet.ErrConflict
	}
	return r.Repository.CompareAndSetBalance(ctx, id, expected, newBalance)
}

func newFixture(wrap func(wallet.Repository) wallet.Repository) *fixture {
	seedRepo := wallet.NewMemoryRepository()
	walletRepo := seedRepo
	if wrap != nil {
		walletRepo = wrap(seedRepo)
	}
	entries := ledger.NewMemoryStore()
	wallets := wallet.NewService(walletRepo, entries)
	ids := identity.NewService(identity.NewMemoryRepository())
	records := NewMemoryStore()
	svc := NewService(wallets, records, entries, ids, nil, Options{})
	return &fixture{svc: svc, wallets: wallets, seedRepo: seedRepo, entries: entries, records: records, ids: ids}
}

func (f *fixture) user(t *testing.T, phone string, verified bool, balance int64) identity.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.ids.Register(ctx, identity.Credentials{Phone: phone, PIN: "1234"})
	if err != nil {
		t.Fatalf("register %s: %v", phone, err)
	}
	if verified {
		if err := f.ids.MarkVerified(ctx, u.ID); err != nil {
			t.Fatalf("verify %s: %v", phone, err)
		}
	}
	w, err := f.wallets.Create(ctx, u.ID, "USD")
	if err != nil {
		t.Fatalf("create wallet %s: %v", phone, err)
	}
	wallet.SeedBalance(f.seedRepo, w.ID, balance)
	return u
}

func TestSendSuccess(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	sender := f.user(t, "+15550001", true, 10_000)
	recipient := f.user(t, "+15550002", false, 500)

	res, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+15550002", Amount: 3_000})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.NewSenderBalance != 7_000 {
		t.Fatalf("expected sender balance 7000, got %d", res.NewSenderBalance)
	}

	rw, _ := f.wallets.GetByOwner(ctx, recipient.ID)
	if rw.Balance != 3_500 {
		t.Fatalf("expected recipient balance 3500, got %d", rw.Balance)
	}

	rec, err := f.records.Get(ctx, res.TransferID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != StatusCompleted || rec.LedgerTxID != res.LedgerTxID || rec.CompletedAt.IsZero() {
		t.Fatalf("record not settled: %+v", rec)
	}

	// Conservation: both entries share one tx id and sum to zero.
	sw, _ := f.wallets.GetByOwner(ctx, sender.ID)
	senderEntries, _ := f.entries.ListByWallet(ctx, sw.ID, ledger.Filter{Limit: 10})
	recipientEntries, _ := f.entries.ListByWallet(ctx, rw.ID, ledger.Filter{Limit: 10})
	if len(senderEntries) != 1 || len(recipientEntries) != 1 {
		t.Fatalf("expected one entry per wallet, got %d and %d", len(senderEntries), len(recipientEntries))
	}
	if senderEntries[0].Amount != -3_000 || recipientEntries[0].Amount != 3_000 {
		t.Fatalf("unexpected amounts: %d, %d", senderEntries[0].Amount, recipientEntries[0].Amount)
	}
	if senderEntries[0].Amount+recipientEntries[0].Amount != 0 {
		t.Fatalf("transfer not conserved")
	}
	if senderEntries[0].Metadata["tx_id"] != recipientEntries[0].Metadata["tx_id"] {
		t.Fatalf("entries do not share a transaction id")
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	sender := f.user(t, "+15550001", true, 10_000)
	f.user(t, "+15550002", false, 0)

	if _, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+15550002", Amount: 0}); err != ErrInvalidAmount {
		t.Fatalf("zero amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+15550002", Amount: 2_000_000}); err != ErrInvalidAmount {
		t.Fatalf("over cap: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+15550001", Amount: 100}); err != ErrSelfTransfer {
		t.Fatalf("self: expected ErrSelfTransfer, got %v", err)
	}
	if _, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+19990000", Amount: 100}); err != ErrRecipientNotFound {
		t.Fatalf("unknown: expected ErrRecipientNotFound, got %v", err)
	}
}

func TestSendUnverifiedSender(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	sender := f.user(t, "+15550001", false, 10_000)
	f.user(t, "+15550002", false, 0)

	if _, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+15550002", Amount: 100}); err != ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	sender := f.user(t, "+15550001", true, 1_000)
	recipient := f.user(t, "+15550002", false, 0)

	if _, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+15550002", Amount: 5_000}); err != wallet.ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	// No monetary effect at all.
	sw, _ := f.wallets.GetByOwner(ctx, sender.ID)
	rw, _ := f.wallets.GetByOwner(ctx, recipient.ID)
	if sw.Balance != 1_000 || rw.Balance != 0 {
		t.Fatalf("balances mutated: %d, %d", sw.Balance, rw.Balance)
	}
	entries, _ := f.entries.ListByWallet(ctx, sw.ID, ledger.Filter{Limit: 10})
	if len(entries) != 0 {
		t.Fatalf("unexpected ledger entries: %+v", entries)
	}
}

func TestSendDebitConflictExhaustsBudget(t *testing.T) {
	f := newFixture(func(r wallet.Repository) wallet.Repository {
		return &flakyRepo{Repository: r, conflictAll: true}
	})
	ctx := context.Background()

	sender := f.user(t, "+15550001", true, 10_000)
	f.user(t, "+15550002", false, 0)

	if _, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+15550002", Amount: 100}); err != ErrBalanceChanged {
		t.Fatalf("expected ErrBalanceChanged, got %v", err)
	}

	sw, _ := f.wallets.GetByOwner(ctx, sender.ID)
	if sw.Balance != 10_000 {
		t.Fatalf("debit applied despite conflicts: %d", sw.Balance)
	}
}

func TestSendCreditConflictParksForReconciliation(t *testing.T) {
	flaky := &flakyRepo{conflictOn: map[string]bool{}}
	f := newFixture(func(r wallet.Repository) wallet.Repository {
		flaky.Repository = r
		return flaky
	})
	ctx := context.Background()

	sender := f.user(t, "+15550001", true, 10_000)
	recipient := f.user(t, "+15550002", false, 500)
	rw, _ := f.wallets.GetByOwner(ctx, recipient.ID)
	flaky.conflictOn[rw.ID] = true

	res, err := f.svc.Send(ctx, SendInput{SenderID: sender.ID, RecipientContact: "+15550002", Amount: 3_000})
	if err != ErrPartiallySettled {
		t.Fatalf("expected ErrPartiallySettled, got %v", err)
	}
	if res.NewSenderBalance != 7_000 {
		t.Fatalf("debit should stand: %d", res.NewSenderBalance)
	}

	rec, _ := f.records.Get(ctx, res.TransferID)
	if rec.Status != StatusPartiallySettled {
		t.Fatalf("record status %s", rec.Status)
	}

	parked, err := f.svc.PartiallySettled(ctx)
	if err != nil {
		t.Fatalf("list parked: %v", err)
	}
	if len(parked) != 1 || parked[0].ID != res.TransferID {
		t.Fatalf("reconciliation feed wrong: %+v", parked)
	}
}

func TestRequestAndDecline(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	requester := f.user(t, "+15550001", true, 0)
	payer := f.user(t, "+15550002", true, 5_000)

	rec, err := f.svc.Request(ctx, RequestInput{RequesterID: requester.ID, PayerContact: "+15550002", Amount: 2_000})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if rec.Status != StatusPending || rec.ExpiresAt.IsZero() || rec.LedgerTxID != "" {
		t.Fatalf("unexpected request record: %+v", rec)
	}

	declined, err := f.svc.Respond(ctx, rec.ID, payer.ID, DecisionDecline)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", declined.Status)
	}

	// No monetary effect.
	pw, _ := f.wallets.GetByOwner(ctx, payer.ID)
	if pw.Balance != 5_000 {
		t.Fatalf("payer balance mutated: %d", pw.Balance)
	}
	entries, _ := f.entries.ListByWallet(ctx, pw.ID, ledger.Filter{Limit: 10})
	if len(entries) != 0 {
		t.Fatalf("unexpected ledger entries after decline")
	}

	if _, err := f.svc.Respond(ctx, rec.ID, payer.ID, DecisionDecline); err != ErrRequestAlreadyResolved {
		t.Fatalf("second respond: expected ErrRequestAlreadyResolved, got %v", err)
	}
}

func TestRespondAcceptMovesFunds(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	requester := f.user(t, "+15550001", true, 0)
	payer := f.user(t, "+15550002", true, 5_000)

	rec, err := f.svc.Request(ctx, RequestInput{RequesterID: requester.ID, PayerContact: "+15550002", Amount: 2_000})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	resolved, err := f.svc.Respond(ctx, rec.ID, payer.ID, DecisionAccept)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if resolved.Status != StatusCompleted || resolved.CompletedAt.IsZero() || resolved.LedgerTxID == "" {
		t.Fatalf("request not settled: %+v", resolved)
	}

	pw, _ := f.wallets.GetByOwner(ctx, payer.ID)
	qw, _ := f.wallets.GetByOwner(ctx, requester.ID)
	if pw.Balance != 3_000 || qw.Balance != 2_000 {
		t.Fatalf("balances wrong: payer=%d requester=%d", pw.Balance, qw.Balance)
	}

	if _, err := f.svc.Respond(ctx, rec.ID, payer.ID, DecisionAccept); err != ErrRequestAlreadyResolved {
		t.Fatalf("repeat accept must not double-charge, got %v", err)
	}
	pw, _ = f.wallets.GetByOwner(ctx, payer.ID)
	if pw.Balance != 3_000 {
		t.Fatalf("payer double-charged: %d", pw.Balance)
	}
}

func TestRespondExpired(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	requester := f.user(t, "+15550001", true, 0)
	payer := f.user(t, "+15550002", true, 5_000)

	rec, err := f.svc.Request(ctx, RequestInput{RequesterID: requester.ID, PayerContact: "+15550002", Amount: 1_000, ExpiresIn: time.Nanosecond})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := f.svc.Respond(ctx, rec.ID, payer.ID, DecisionAccept); err != ErrRequestExpired {
		t.Fatalf("expected ErrRequestExpired, got %v", err)
	}

	stored, _ := f.records.Get(ctx, rec.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("expired request should fail, got %s", stored.Status)
	}

	pw, _ := f.wallets.GetByOwner(ctx, payer.ID)
	if pw.Balance != 5_000 {
		t.Fatalf("expired request moved money: %d", pw.Balance)
	}
}

func TestRespondOnlyPayerMayAnswer(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	requester := f.user(t, "+15550001", true, 0)
	f.user(t, "+15550002", true, 5_000)

	rec, _ := f.svc.Request(ctx, RequestInput{RequesterID: requester.ID, PayerContact: "+15550002", Amount: 1_000})

	if _, err := f.svc.Respond(ctx, rec.ID, requester.ID, DecisionAccept); err != ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}
