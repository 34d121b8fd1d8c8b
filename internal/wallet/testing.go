package wallet

// SeedBalance is a test helper that sets a wallet balance directly when using
// the in-memory repository.
func SeedBalance(r Repository, walletID string, amount int64) {
	if mem, ok := r.(*memoryRepository); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		w := mem.byID[walletID]
		w.Balance = amount
		mem.byID[walletID] = w
	}
}
