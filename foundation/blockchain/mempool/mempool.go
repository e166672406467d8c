// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/mempool/selector"
)

// ErrUnderpriced is returned when a transaction tries to replace a pending
// transaction with the same nonce without paying a large enough tip.
var ErrUnderpriced = errors.New("replacement transaction underpriced")

// replaceBumpPercent is how much larger the tip of a replacement
// transaction must be.
const replaceBumpPercent = 10

// Mempool represents a cache of transactions organized by account:nonce.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]database.BlockTx
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyTip)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]database.BlockTx),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction from the mempool. A transaction
// with the same account and nonce as a pending one only replaces it when
// its tip is at least 10% higher. Resubmitting the same transaction is a
// no-op.
func (mp *Mempool) Upsert(tx database.BlockTx) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := mapKey(tx)

	if existing, exists := mp.pool[key]; exists {
		if existing.Equals(tx) {
			return len(mp.pool), nil
		}

		if !outbids(tx.Tip, existing.Tip) {
			return len(mp.pool), fmt.Errorf("%w: tip %d, pending tip %d", ErrUnderpriced, tx.Tip, existing.Tip)
		}
	}

	mp.pool[key] = tx

	return len(mp.pool), nil
}

// Contains reports whether the exact transaction is pending.
func (mp *Mempool) Contains(tx database.BlockTx) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	existing, exists := mp.pool[mapKey(tx)]
	return exists && existing.Equals(tx)
}

// Delete removed a transaction from the mempool.
func (mp *Mempool) Delete(tx database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, mapKey(tx))
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.BlockTx)
}

// PickBest uses the configured sort strategy to return a set of transactions.
// If 0 is passed, all transactions in the mempool will be returned.
func (mp *Mempool) PickBest(howMany ...uint16) []database.BlockTx {
	number := 0
	if len(howMany) > 0 {
		number = int(howMany[0])
	}

	// Group the transactions by account.
	m := make(map[database.AccountID][]database.BlockTx)
	mp.mu.RLock()
	{
		if number == 0 {
			number = len(mp.pool)
		}

		for _, tx := range mp.pool {
			m[tx.FromID] = append(m[tx.FromID], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, number)
}

// =============================================================================

// mapKey is used to generate the map key.
func mapKey(tx database.BlockTx) string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.Nonce)
}

// outbids reports whether the new tip is at least replaceBumpPercent larger
// than the old one.
func outbids(newTip uint64, oldTip uint64) bool {
	if newTip <= oldTip {
		return false
	}

	// Compare newTip*100 against oldTip*(100+bump) in 128 bits.
	needHi, needLo := bits.Mul64(oldTip, 100+replaceBumpPercent)
	gotHi, gotLo := bits.Mul64(newTip, 100)

	return gotHi > needHi || (gotHi == needHi && gotLo >= needLo)
}
