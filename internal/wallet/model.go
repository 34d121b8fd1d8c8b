package wallet

import "time"

// Wallet is a stored-value account. Balance is in minor currency units and is
// never negative after a settled operation.
type Wallet struct {
	ID        string
	OwnerID   string
	Balance   int64
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance is a point-in-time read of available funds.
type Balance struct {
	WalletID string
	Amount   int64
	Currency string
	AsOf     time.Time
}
