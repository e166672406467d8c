package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// ErrNotSelected is returned when a proof of stake block is requested but
// this node's account is not the selected validator.
var ErrNotSelected = errors.New("not the selected validator")

// ErrBlockKnown is returned when a proposed block is already in the chain.
var ErrBlockKnown = errors.New("block already known")

// =============================================================================

// MineNewBlock attempts to create a new block that can become the next block
// in the chain. Proof of work solves the puzzle, proof of stake signs the
// block when this node is the selected validator.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	start := time.Now()
	prevBlock := s.db.LatestBlock()

	// Pick the best transactions from the mempool.
	trans := s.mempool.PickBest(s.genesis.TransPerBlock)

	var block database.Block
	var err error

	switch s.genesis.Consensus {
	case genesis.ConsensusPOS:
		s.evHandler("state: MineNewBlock: MINING: check validator selection")

		// The validator is drawn for the time the block will carry.
		timeStamp := database.NextTimeStamp(prevBlock, time.Now())

		validator, err := s.db.SelectValidator(prevBlock, timeStamp)
		if err != nil {
			return database.Block{}, err
		}

		if validator != s.beneficiaryID {
			return database.Block{}, fmt.Errorf("%w: selected %s", ErrNotSelected, validator)
		}

		s.evHandler("state: MineNewBlock: MINING: perform POS")

		block, err = database.POS(database.POSArgs{
			BeneficiaryKey: s.beneficiaryKey,
			MiningReward:   s.genesis.MiningReward,
			PrevBlock:      prevBlock,
			TimeStamp:      timeStamp,
			StateRoot:      s.db.HashState(),
			Trans:          trans,
			EvHandler:      s.evHandler,
		})
		if err != nil {
			return database.Block{}, err
		}

	default:
		s.evHandler("state: MineNewBlock: MINING: perform POW")

		// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
		block, err = database.POW(ctx, database.POWArgs{
			BeneficiaryID: s.beneficiaryID,
			Difficulty:    s.genesis.Difficulty,
			MiningReward:  s.genesis.MiningReward,
			PrevBlock:     prevBlock,
			StateRoot:     s.db.HashState(),
			Trans:         trans,
			EvHandler:     s.evHandler,
		})
		if err != nil {
			return database.Block{}, err
		}
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	// Validate the block and then update the blockchain database.
	if err := s.validateUpdateDatabase(block, time.Since(start)); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain. An accepted block
// is forwarded to our own peers once.
func (s *State) ProcessProposedBlock(block database.Block) error {
	if err := s.processBlock(block); err != nil {
		return err
	}

	if w := s.RetrieveWorker(); w != nil {
		w.SignalShareBlock(block)
	}

	return nil
}

// processBlock validates and applies a block from a peer and stops any local
// mining for the same height.
func (s *State) processBlock(block database.Block) error {
	hash := block.Hash()

	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.PrevBlockHash, hash, len(block.MerkleTree.Values()))
	defer s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]", hash)

	if s.isKnownBlock(block) {
		return ErrBlockKnown
	}

	// Validate the block and then update the blockchain database.
	if err := s.validateUpdateDatabase(block, 0); err != nil {
		return err
	}

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from the
	// function until done is called. That allows this function to complete
	// its state changes before a new mining operation takes place.
	if w := s.RetrieveWorker(); w != nil {
		done := w.SignalCancelMining()
		defer func() {
			s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
			done()
		}()
	}

	return nil
}

// isKnownBlock reports whether the block is already part of our chain.
func (s *State) isKnownBlock(block database.Block) bool {
	if s.seen.Contains(blockKey(block.Hash())) {
		return true
	}

	if block.Header.Number == 0 || block.Header.Number > s.db.LatestBlock().Header.Number {
		return false
	}

	stored, err := s.db.GetBlock(block.Header.Number)
	if err != nil {
		return false
	}

	return stored.Hash() == block.Hash()
}

// =============================================================================

// validateUpdateDatabase takes the block and validates the block against the
// consensus rules. If the block passes, then the state of the node is updated
// including adding the block to disk.
func (s *State) validateUpdateDatabase(block database.Block, took time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: validateUpdateDatabase: validate block")

	latest := s.db.LatestBlock()

	rules, err := s.db.Rules(latest, block.Header.TimeStamp)
	if err != nil {
		return err
	}

	if err := block.ValidateBlock(latest, s.db.HashState(), rules, s.evHandler); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: write to disk")

	// Write the new block to the chain on disk.
	if err := s.db.Write(block); err != nil {
		return err
	}
	s.db.UpdateLatestBlock(block)
	s.markSeen(blockKey(block.Hash()))

	s.evHandler("state: validateUpdateDatabase: update accounts and remove from mempool")

	// Process the transactions and update the accounts.
	trans := block.MerkleTree.Values()
	for _, tx := range trans {
		s.evHandler("state: validateUpdateDatabase: tx[%s] update and remove", tx)

		// Remove this transaction from the mempool.
		s.mempool.Delete(tx)

		// Apply the balance changes based on this transaction.
		if err := s.db.ApplyTransaction(block, tx); err != nil {
			s.evHandler("state: validateUpdateDatabase: WARNING : %s", err)
			continue
		}
	}

	s.evHandler("state: validateUpdateDatabase: apply mining reward")

	// Apply the mining reward for this block.
	s.db.ApplyMiningReward(block)

	s.metrics.ObserveBlock(block.Header.Number, len(trans), took)
	s.metrics.SetMempool(s.mempool.Count())

	// Send an event about this new block.
	s.blockEvent(block)

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.MerkleTree.Values())
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}
