package selector

import (
	"sort"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
)

// advancedTipSelect returns transactions with the best tip while respecting the nonce
// for each account/transaction. This strategy takes into account high-value transactions
// that happens to be stuck on a low-nonce transaction with a low tip price.
//
// Taking n transactions from an account means taking its n lowest nonces, so
// every account offers a set of prefixes. Picking one prefix per account that
// fits in howMany and maximizes the total tip is a grouped knapsack, solved
// here with dynamic programming over the block capacity.
var advancedTipSelect = func(m map[database.AccountID][]database.BlockTx, howMany int) []database.BlockTx {
	if howMany <= 0 {
		return []database.BlockTx{}
	}

	// Sort the transactions per account by nonce.
	accounts := make([]database.AccountID, 0, len(m))
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	// best[c] is the best result using at most c transactions from the
	// accounts processed so far. take[g][c] is the prefix length chosen for
	// account g at capacity c.
	best := make([]result, howMany+1)
	take := make([][]int, len(accounts))

	for g, from := range accounts {
		txs := m[from]
		prefix := prefixTips(txs, howMany)

		next := make([]result, howMany+1)
		take[g] = make([]int, howMany+1)

		for c := 0; c <= howMany; c++ {
			next[c] = best[c]
			for n := 1; n < len(prefix) && n <= c; n++ {
				cand := result{tip: best[c-n].tip + prefix[n], count: best[c-n].count + n}
				if cand.better(next[c]) {
					next[c] = cand
					take[g][c] = n
				}
			}
		}
		best = next
	}

	// Walk back through the choices to find each account's prefix.
	counts := make([]int, len(accounts))
	c := howMany
	for g := len(accounts) - 1; g >= 0; g-- {
		counts[g] = take[g][c]
		c -= counts[g]
	}

	final := []database.BlockTx{}
	for g, from := range accounts {
		final = append(final, m[from][:counts[g]]...)
	}

	return final
}

// result is the value of a knapsack cell.
type result struct {
	tip   uint64
	count int
}

// better prefers the larger total tip, then more transactions.
func (r result) better(other result) bool {
	if r.tip != other.tip {
		return r.tip > other.tip
	}
	return r.count > other.count
}

// prefixTips returns the cumulative tips of the first n transactions, for n
// from 0 up to howMany.
func prefixTips(txs []database.BlockTx, howMany int) []uint64 {
	n := min(len(txs), howMany)

	prefix := make([]uint64, n+1)
	for i := 0; i < n; i++ {
		prefix[i+1] = prefix[i] + txs[i].Tip
	}
	return prefix
}
