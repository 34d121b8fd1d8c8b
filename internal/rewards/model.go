package rewards

import "time"

// Grant is one points movement: a positive award tied to a source transaction,
// or a negative redemption audit row. Awards always expire; redemption rows
// never do. The points balance is derived from grant rows at read time; there
// is no stored counter.
type Grant struct {
	ID         string
	UserID     string
	Points     int64
	SourceTxID string
	MerchantID string
	ExpiresAt  time.Time // zero for redemption rows
	CreatedAt  time.Time
}

// Redemption reports whether the grant is a redemption audit row. Earned
// grants only ever count down to zero; negative points mark a redemption.
func (g Grant) Redemption() bool {
	return g.Points < 0
}

// Expired reports whether the grant has lapsed as of now.
func (g Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}
