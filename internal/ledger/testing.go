package ledger

// SeedBalance is a test helper that overwrites a stored balance when using the
// in-memory ledger. No ledger entry is written, so reconciliation over a
// seeded wallet reports a mismatch by design.
func SeedBalance(l Ledger, userID, asset, balance string) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.ensureBalance(userID, asset)
		mem.balances[balanceKey{userID, asset}] = balance
	}
}
