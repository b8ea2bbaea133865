// Package ledger provides an in-memory reference implementation of
// vault.AssetTransferer, suitable for tests and the demo server. A real
// deployment would back this with an on-chain vault or a database-backed
// balance table; this package exists so the engine is runnable and
// testable end to end without one.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"clob/internal/registry"
)

var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// MemoryLedger holds per-trader, per-asset balances in memory, guarded by
// a single mutex. Transfer is all-or-nothing: it never debits an account
// without crediting the other.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[registry.TraderID]map[string]*big.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[registry.TraderID]map[string]*big.Int)}
}

// Credit adds amount to trader's balance of asset, for seeding test
// accounts or crediting deposits. It never fails.
func (l *MemoryLedger) Credit(trader registry.TraderID, asset string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addLocked(trader, asset, amount)
}

// Balance returns trader's current balance of asset, zero if none.
func (l *MemoryLedger) Balance(trader registry.TraderID, asset string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(trader, asset))
}

// Transfer moves amount of asset from from's balance to to's, failing
// with ErrInsufficientBalance if from does not have enough. A zero or
// negative amount is a no-op success.
func (l *MemoryLedger) Transfer(ctx context.Context, from, to registry.TraderID, asset string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.balanceLocked(from, asset)
	if cur.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.addLocked(from, asset, new(big.Int).Neg(amount))
	l.addLocked(to, asset, amount)
	return nil
}

func (l *MemoryLedger) balanceLocked(trader registry.TraderID, asset string) *big.Int {
	assets, ok := l.balances[trader]
	if !ok {
		return big.NewInt(0)
	}
	b, ok := assets[asset]
	if !ok {
		return big.NewInt(0)
	}
	return b
}

func (l *MemoryLedger) addLocked(trader registry.TraderID, asset string, delta *big.Int) {
	if l.balances[trader] == nil {
		l.balances[trader] = make(map[string]*big.Int)
	}
	cur, ok := l.balances[trader][asset]
	if !ok {
		cur = big.NewInt(0)
	}
	l.balances[trader][asset] = new(big.Int).Add(cur, delta)
}
