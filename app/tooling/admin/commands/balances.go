// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"fmt"
	"sort"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
)

// Balances prints the balances of every account, or only the one specified.
func Balances(account string, db *database.Database) error {
	fmt.Printf("LatestBlockHash: %s\n\n", db.LatestBlock().Hash())

	if account != "" {
		accountID, err := database.ToAccountID(account)
		if err != nil {
			return err
		}

		act, err := db.Query(accountID)
		if err != nil {
			return err
		}

		fmt.Printf("Account: %s  Balance: %d  Nonce: %d  Stake: %d\n", act.AccountID, act.Balance, act.Nonce, act.Stake)
		return nil
	}

	accounts := db.CopyAccounts()
	ids := make([]database.AccountID, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		act := accounts[id]
		fmt.Printf("Account: %s  Balance: %d  Nonce: %d  Stake: %d\n", id, act.Balance, act.Nonce, act.Stake)
	}

	return nil
}

// Stakes prints every account holding a stake with its weight at the time of
// the latest block.
func Stakes(db *database.Database) error {
	at := db.LatestBlock().Header.TimeStamp

	for id, act := range db.CopyAccounts() {
		if act.Stake == 0 {
			continue
		}
		fmt.Printf("Account: %s  Stake: %d  StakedAt: %d  Weight: %.2f\n", id, act.Stake, act.StakedAt, database.WeightedStake(act, at))
	}

	return nil
}
