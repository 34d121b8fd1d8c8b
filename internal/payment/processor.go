package payment

import (
	"context"

	"github.com/google/uuid"
)

// Processor is the connector to the external payment network. The engine only
// relies on a binary approved/declined outcome; transport errors and timeouts
// are treated as declines and refunded.
type Processor interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// ChargeRequest carries the settlement attempt. Reference is the ledger entry
// id and doubles as the idempotency key on the processor side.
type ChargeRequest struct {
	Reference  string
	MerchantID string
	Nonce      string
	Channel    string
	Amount     int64
}

// ChargeResult captures the processor's decision.
type ChargeResult struct {
	Reference string
	Approved  bool
}

// StaticProcessor simulates a processor that approves everything.
type StaticProcessor struct{}

// Charge approves the payment with a synthetic reference.
func (StaticProcessor) Charge(_ context.Context, _ ChargeRequest) (ChargeResult, error) {
	return ChargeResult{Reference: uuid.NewString(), Approved: true}, nil
}
