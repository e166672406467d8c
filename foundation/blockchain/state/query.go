package state

import (
	"sort"
	"time"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// QueryAccount returns a copy of the account from the database.
func (s *State) QueryAccount(account database.AccountID) (database.Account, error) {
	return s.db.Query(account)
}

// QueryStake returns the amount the account has staked.
func (s *State) QueryStake(account database.AccountID) (uint64, error) {
	acc, err := s.db.Query(account)
	if err != nil {
		return 0, err
	}

	return acc.Stake, nil
}

// QueryStakes returns every account holding a stake, sorted by account.
func (s *State) QueryStakes() []database.Account {
	var stakes []database.Account
	for _, account := range s.db.CopyAccounts() {
		if account.Stake > 0 {
			stakes = append(stakes, account)
		}
	}

	sort.Slice(stakes, func(i, j int) bool {
		return stakes[i].AccountID < stakes[j].AccountID
	})

	return stakes
}

// QueryMempool returns the transactions in the mempool, optionally limited
// to the ones sent from or to the specified account.
func (s *State) QueryMempool(account database.AccountID) []database.BlockTx {
	trans := s.mempool.PickBest()
	if account == "" {
		return trans
	}

	var out []database.BlockTx
	for _, tx := range trans {
		if tx.FromID == account || tx.ToID == account {
			out = append(out, tx)
		}
	}

	return out
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlocksByNumber returns the set of blocks based on block numbers. This
// function reads the blockchain from disk first.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	latest := s.db.LatestBlock().Header.Number

	if from == QueryLatest {
		from = latest
		to = from
	}
	if to == QueryLatest || to > latest {
		to = latest
	}
	if from == 0 {
		from = 1
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: getblock: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// QueryBlocksByAccount returns the set of blocks by account. If the account
// is empty, all blocks are returned. This function reads the blockchain
// from disk first.
func (s *State) QueryBlocksByAccount(accountID database.AccountID) ([]database.Block, error) {
	var out []database.Block

	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if accountID == "" || block.Header.BeneficiaryID == accountID {
			out = append(out, block)
			continue
		}

		for _, tx := range block.MerkleTree.Values() {
			if tx.FromID == accountID || tx.ToID == accountID {
				out = append(out, block)
				break
			}
		}
	}

	return out, nil
}

// QueryBlockByHash returns the block with the specified hash.
func (s *State) QueryBlockByHash(hash string) (database.Block, error) {
	return s.db.GetBlockByHash(hash)
}

// SelectedValidator returns the account selected to propose the next block
// under proof of stake in the current round.
func (s *State) SelectedValidator() (database.AccountID, error) {
	latest := s.db.LatestBlock()
	return s.db.SelectValidator(latest, database.NextTimeStamp(latest, time.Now()))
}
