package transfer

import "time"

// Record statuses. A send and a request are the same entity; the initiator side
// distinguishes them. Status is monotonic: once terminal it never changes.
// "accepted" is the transient claim a responder (or the send path) holds while
// the debit/credit sequence runs; the pending→accepted transition is a
// conditional write, so two concurrent accepts cannot both charge the payer.
const (
	StatusPending          = "pending"
	StatusAccepted         = "accepted"
	StatusCompleted        = "completed"
	StatusFailed           = "failed"
	StatusCancelled        = "cancelled"
	StatusPartiallySettled = "partially_settled"
)

// Respond decisions.
const (
	DecisionAccept  = "ACCEPT"
	DecisionDecline = "DECLINE"
)

// Record is one P2P transfer or money request. LedgerTxID stays empty until the
// transfer settles; ExpiresAt only applies to requests.
type Record struct {
	ID          string
	LedgerTxID  string
	SenderID    string
	RecipientID string
	Amount      int64
	Status      string
	ExpiresAt   time.Time
	CompletedAt time.Time
	CreatedAt   time.Time
}

// Terminal reports whether the record can no longer change status.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusPartiallySettled:
		return true
	}
	return false
}
