package state

import (
	"fmt"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
)

// UpsertWalletTransaction accepts a transaction from a wallet for inclusion.
func (s *State) UpsertWalletTransaction(signedTx database.SignedTx) error {
	if err := s.validateTransaction(signedTx); err != nil {
		return err
	}

	tx := database.NewBlockTx(signedTx, s.genesis.GasPrice, database.UnitsOfGas)

	if _, err := s.mempool.Upsert(tx); err != nil {
		return err
	}
	s.markSeen(txKey(tx))
	s.metrics.SetMempool(s.mempool.Count())

	if w := s.RetrieveWorker(); w != nil {
		w.SignalShareTx(tx)
		w.SignalStartMining()
	}

	return nil
}

// UpsertNodeTransaction accepts a transaction from a node for inclusion. A
// transaction seen before is dropped without error so gossip terminates.
func (s *State) UpsertNodeTransaction(tx database.BlockTx) error {
	if s.markSeen(txKey(tx)) {
		return nil
	}

	if err := s.validateTransaction(tx.SignedTx); err != nil {
		s.seen.Remove(txKey(tx))
		return err
	}

	if err := tx.ValidateGas(s.genesis.GasPrice); err != nil {
		s.seen.Remove(txKey(tx))
		return err
	}

	if _, err := s.mempool.Upsert(tx); err != nil {
		s.seen.Remove(txKey(tx))
		return err
	}
	s.metrics.SetMempool(s.mempool.Count())

	if w := s.RetrieveWorker(); w != nil {
		w.SignalShareTx(tx)
		w.SignalStartMining()
	}

	return nil
}

// =============================================================================

// validateTransaction takes the signed transaction and validates it has
// a proper signature and other aspects of the data.
func (s *State) validateTransaction(signedTx database.SignedTx) error {
	if err := signedTx.Validate(s.genesis.ChainID); err != nil {
		return err
	}

	if err := s.db.ValidateNonce(signedTx); err != nil {
		return err
	}

	if signedTx.IsStake() && signedTx.Value == 0 {
		return fmt.Errorf("stake deposit from %s must carry a value", signedTx.FromID)
	}

	return nil
}
