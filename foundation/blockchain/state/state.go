// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
	"github.com/kadchain/blockchain/foundation/blockchain/mempool"
	"github.com/kadchain/blockchain/foundation/blockchain/metrics"
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
)

// seenCacheSize is the number of block and transaction keys remembered to
// drop duplicate gossip.
const seenCacheSize = 4096

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	Sync()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(blockTx database.BlockTx)
	SignalShareBlock(block database.Block)
}

// Gossiper interface represents the behavior of an overlay network that can
// broadcast blocks and transactions in addition to the node's own HTTP
// fan-out.
type Gossiper interface {
	PublishBlock(ctx context.Context, blockData database.BlockData) error
	PublishTx(ctx context.Context, tx database.BlockTx) error
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	BeneficiaryKey *ecdsa.PrivateKey
	Host           string
	Storage        database.Storage
	Genesis        genesis.Genesis
	SelectStrategy string
	KnownPeers     *peer.Table
	GossipFanout   int
	Metrics        *metrics.Metrics
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	mu          sync.RWMutex
	resyncWG    sync.WaitGroup
	allowMining bool

	beneficiaryKey *ecdsa.PrivateKey
	beneficiaryID  database.AccountID
	host           string
	evHandler      EventHandler
	knownPeers     *peer.Table
	gossipFanout   int
	metrics        *metrics.Metrics
	seen           *lru.Cache[string, struct{}]

	gossipMu sync.RWMutex
	gossiper Gossiper

	workerMu sync.RWMutex
	worker   Worker

	genesis genesis.Genesis
	mempool *mempool.Mempool
	db      *database.Database
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {
	if cfg.BeneficiaryKey == nil {
		return nil, errors.New("beneficiary key is required")
	}

	if cfg.KnownPeers == nil {
		return nil, errors.New("known peers table is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	// Access the storage for the blockchain.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	// Construct a mempool with the specified sort strategy.
	mempool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		allowMining:    true,
		beneficiaryKey: cfg.BeneficiaryKey,
		beneficiaryID:  database.PublicKeyToAccountID(cfg.BeneficiaryKey.PublicKey),
		host:           cfg.Host,
		evHandler:      ev,
		knownPeers:     cfg.KnownPeers,
		gossipFanout:   cfg.GossipFanout,
		metrics:        cfg.Metrics,
		seen:           seen,

		genesis: cfg.Genesis,
		mempool: mempool,
		db:      db,
	}

	state.metrics.SetPeers(cfg.KnownPeers.Len())
	state.metrics.SetMempool(0)
	state.metrics.SetLatest(db.LatestBlock().Header.Number)

	// The Worker is not set here. The call to worker.Run will register itself
	// and start everything up and running for the node.

	return &state, nil
}

// SetGossiper attaches an overlay network used in addition to HTTP fan-out.
func (s *State) SetGossiper(g Gossiper) {
	s.gossipMu.Lock()
	defer s.gossipMu.Unlock()

	s.gossiper = g
}

// RegisterWorker sets the worker that mines and shares for this node. Peer
// handlers may already be running so access is guarded.
func (s *State) RegisterWorker(w Worker) {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()

	s.worker = w
}

// RetrieveWorker returns the registered worker or nil before worker.Run.
func (s *State) RetrieveWorker() Worker {
	s.workerMu.RLock()
	defer s.workerMu.RUnlock()

	return s.worker
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database file is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Wait for any resync to finish.
	s.resyncWG.Wait()

	// Stop all blockchain writing activity.
	if w := s.RetrieveWorker(); w != nil {
		w.Shutdown()
	}

	return nil
}

// IsMiningAllowed identifies if we are allowed to mine blocks. This
// might be turned off if the blockchain needs to be re-synced.
func (s *State) IsMiningAllowed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.allowMining
}

// Consensus returns the consensus algorithm the chain runs.
func (s *State) Consensus() string {
	return s.genesis.Consensus
}

// =============================================================================

// markSeen records the key and reports whether it was seen before.
func (s *State) markSeen(key string) bool {
	seen, _ := s.seen.ContainsOrAdd(key, struct{}{})
	return seen
}

// blockKey returns the seen cache key for a block.
func blockKey(hash string) string {
	return "blk:" + hash
}

// txKey returns the seen cache key for a transaction.
func txKey(tx database.BlockTx) string {
	return "tx:" + tx.SignatureString()
}
