package selector

import (
	"sort"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
)

// tipSelect returns transactions with the best tip while respecting the nonce
// for each account/transaction.
var tipSelect = func(m map[database.AccountID][]database.BlockTx, howMany int) []database.BlockTx {

	/*
		Bill: {Nonce: 2, Tip: 250}, {Nonce: 1, Tip: 150}
		Pavl: {Nonce: 2, Tip: 200}, {Nonce: 1, Tip: 75}
		Edua: {Nonce: 2, Tip: 75},  {Nonce: 1, Tip: 100}
	*/

	// Sort the transactions per account by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	// Walk the accounts in a stable order so every call with the same
	// mempool builds the same rows.
	accounts := make([]database.AccountID, 0, len(m))
	for key := range m {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	// Pick the first transaction in the slice for each account. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been selected.
	var rows [][]database.BlockTx
	for {
		var row []database.BlockTx
		for _, key := range accounts {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	/*
		0: Bill: {Nonce: 1, Tip: 150}, Pavl: {Nonce: 1, Tip: 75},  Edua: {Nonce: 1, Tip: 100}
		1: Bill: {Nonce: 2, Tip: 250}, Pavl: {Nonce: 2, Tip: 200}, Edua: {Nonce: 2, Tip: 75}
	*/

	// Sort each row by tip unless we will take all transactions from that row
	// anyway. Then try to select the number of requested transactions. Keep
	// pulling transactions from each row until the amount of fulfilled or
	// there are no more transactions.
	final := []database.BlockTx{}
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Sort(byTip(row))
			final = append(final, row[:need]...)
			break
		}
		final = append(final, row...)
	}

	/*
		howMany 4: Bill 1, Pavl 1, Edua 1, Bill 2
	*/

	return final
}
