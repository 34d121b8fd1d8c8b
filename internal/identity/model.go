package identity

import "time"

// User is the engine-side view of an account held by the identity provider.
// Verified is the trust predicate consulted before money can leave a wallet.
type User struct {
	ID        string
	Phone     string
	Verified  bool
	PINHash   []byte
	CreatedAt time.Time
}

// Credentials captures registration input.
type Credentials struct {
	Phone string
	PIN   string
}
