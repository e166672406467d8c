// Package database handles all the lower level support for maintaining the
// blockchain in storage and maintaining an in memory database of account
// information.
package database

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
	"github.com/kadchain/blockchain/foundation/blockchain/signature"
)

// ErrNotFound is returned by storage engines and queries when the requested
// block or account does not exist.
var ErrNotFound = errors.New("not found")

// blockCacheSize is the number of recently read blocks kept in memory.
const blockCacheSize = 128

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Storage interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	GetBlockByHash(hash string) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// Database manages data related to accounts who have transacted on the blockchain.
type Database struct {
	mu          sync.RWMutex
	genesis     genesis.Genesis
	latestBlock Block
	accounts    map[AccountID]Account
	storage     Storage
	cache       *lru.Cache[uint64, Block]
}

// New constructs a new database and applies account genesis information and
// reads/writes the blockchain database on disk if a dbPath is provided.
func New(genesis genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	cache, err := lru.New[uint64, Block](blockCacheSize)
	if err != nil {
		return nil, err
	}

	db := Database{
		genesis: genesis,
		storage: storage,
		cache:   cache,
	}

	if err := db.loadGenesis(); err != nil {
		return nil, err
	}

	// Read all the blocks from storage, validating each one against the
	// state produced by the blocks before it.
	iter := db.storage.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		rules, err := db.Rules(db.latestBlock, block.Header.TimeStamp)
		if err != nil {
			return nil, err
		}

		if err := block.ValidateBlock(db.latestBlock, db.HashState(), rules, evHandler); err != nil {
			return nil, err
		}

		for _, tx := range block.MerkleTree.Values() {
			if err := db.ApplyTransaction(block, tx); err != nil {
				evHandler("database: New: blk[%d]: tx[%s]: ERROR: %s", block.Header.Number, tx, err)
			}
		}
		db.ApplyMiningReward(block)

		db.latestBlock = block
	}

	return &db, nil
}

// loadGenesis initializes the accounts from the genesis balances and stakes.
func (db *Database) loadGenesis() error {
	accounts := make(map[AccountID]Account)

	for accountStr, balance := range db.genesis.Balances {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return err
		}
		accounts[accountID] = newAccount(accountID, balance)
	}

	stakedAt := uint64(0)
	if !db.genesis.Date.IsZero() {
		stakedAt = uint64(db.genesis.Date.Unix())
	}

	for accountStr, stake := range db.genesis.Stakes {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return err
		}

		account, exists := accounts[accountID]
		if !exists {
			account = newAccount(accountID, 0)
		}
		account.Stake = stake
		account.StakedAt = stakedAt
		accounts[accountID] = account
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = accounts
	db.latestBlock = Block{}

	return nil
}

// Close closes the open blocks database.
func (db *Database) Close() {
	db.storage.Close()
}

// Reset re-initializes the database back to the genesis state.
func (db *Database) Reset() error {
	if err := db.storage.Reset(); err != nil {
		return err
	}
	db.cache.Purge()

	return db.loadGenesis()
}

// Genesis returns the genesis information the database was built from.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// Query retrieves an account from the database.
func (db *Database) Query(accountID AccountID) (Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[accountID]
	if !exists {
		return Account{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	return account, nil
}

// CopyAccounts makes a copy of the current accounts in the database.
func (db *Database) CopyAccounts() map[AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[AccountID]Account, len(db.accounts))
	for accountID, account := range db.accounts {
		accounts[accountID] = account
	}
	return accounts
}

// HashState returns a hash based on the contents of the accounts and
// their balances. This is added to each block and checked by peers.
func (db *Database) HashState() string {
	accounts := make([]Account, 0, len(db.accounts))

	db.mu.RLock()
	{
		for _, account := range db.accounts {
			accounts = append(accounts, account)
		}
	}
	db.mu.RUnlock()

	sort.Sort(byAccount(accounts))
	return signature.Hash(accounts)
}

// ValidateNonce validates the nonce for the specified transaction is larger
// than the last nonce used by the account who signed the transaction.
func (db *Database) ValidateNonce(tx SignedTx) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	from := db.accounts[tx.FromID]
	if tx.Nonce <= from.Nonce {
		return fmt.Errorf("invalid nonce, got %d, exp > %d", tx.Nonce, from.Nonce)
	}

	return nil
}

// Rules returns the consensus rules the block following the specified
// parent and carrying the specified timestamp must satisfy given the
// current accounts.
func (db *Database) Rules(parent Block, timeStamp uint64) (Rules, error) {
	rules := Rules{
		Consensus:  db.genesis.Consensus,
		Difficulty: db.genesis.Difficulty,
		GasPrice:   db.genesis.GasPrice,
	}

	if db.genesis.Consensus != genesis.ConsensusPOS {
		return rules, nil
	}

	// A proposer can't claim a round that hasn't started yet.
	limit := time.Now().Add(db.genesis.Cycle()).Unix()
	if timeStamp > uint64(limit) {
		return Rules{}, fmt.Errorf("block timestamp %d is ahead of the current round", timeStamp)
	}

	validator, err := db.SelectValidator(parent, timeStamp)
	if err != nil {
		return Rules{}, err
	}
	rules.Validator = validator

	return rules, nil
}

// SelectValidator returns the account selected to propose the block that
// follows the specified parent at the specified time. The parent hash and
// the number of cycles passed since the parent seed the draw, so a new
// validator is drawn every cycle the chain doesn't move. Stake age is
// measured at the parent's timestamp.
func (db *Database) SelectValidator(parent Block, timeStamp uint64) (AccountID, error) {
	seed := fmt.Sprintf("%s:%d", parent.Hash(), db.round(parent, timeStamp))
	return SelectValidator(db.CopyAccounts(), seed, parent.Header.TimeStamp)
}

// round returns the number of full cycles between the parent and the
// specified time. The first block is measured from the genesis date.
func (db *Database) round(parent Block, timeStamp uint64) uint64 {
	start := parent.Header.TimeStamp
	if parent.Header.Number == 0 && !db.genesis.Date.IsZero() {
		start = uint64(db.genesis.Date.Unix())
	}

	if timeStamp <= start {
		return 0
	}

	return (timeStamp - start) / uint64(db.genesis.Cycle()/time.Second)
}

// ApplyMiningReward gives the beneficiary account the reward for mining.
func (db *Database) ApplyMiningReward(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	account, exists := db.accounts[block.Header.BeneficiaryID]
	if !exists {
		account = newAccount(block.Header.BeneficiaryID, 0)
	}
	account.Balance += block.Header.MiningReward

	db.accounts[block.Header.BeneficiaryID] = account
}

// ApplyTransaction performs the business logic for applying a transaction
// to the database.
func (db *Database) ApplyTransaction(block Block, tx BlockTx) error {
	if err := tx.Validate(db.genesis.ChainID); err != nil {
		return err
	}

	if err := tx.ValidateGas(db.genesis.GasPrice); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	{
		fromID := tx.FromID
		beneficiaryID := block.Header.BeneficiaryID

		// Capture these accounts from the database.
		from, exists := db.accounts[fromID]
		if !exists {
			from = newAccount(fromID, 0)
		}

		bnfc, exists := db.accounts[beneficiaryID]
		if !exists {
			bnfc = newAccount(beneficiaryID, 0)
		}

		// The account needs to pay the gas fee regardless. Take the
		// remaining balance if the account doesn't hold enough for the
		// full amount of gas. This is the only way to stop bad actors.
		gasFee, _ := tx.GasFee()
		if gasFee > from.Balance {
			gasFee = from.Balance
		}
		from.Balance -= gasFee
		if beneficiaryID == fromID {
			from.Balance += gasFee
		} else {
			bnfc.Balance += gasFee
			db.accounts[beneficiaryID] = bnfc
		}

		// Make sure these changes get applied.
		db.accounts[fromID] = from

		// Perform basic accounting checks.
		{
			if tx.Nonce <= from.Nonce {
				return fmt.Errorf("transaction invalid, nonce too small, current %d, provided %d", from.Nonce, tx.Nonce)
			}

			if tx.Value > math.MaxUint64-tx.Tip {
				return fmt.Errorf("transaction invalid, value %d and tip %d overflow", tx.Value, tx.Tip)
			}

			if from.Balance == 0 || from.Balance < (tx.Value+tx.Tip) {
				return fmt.Errorf("transaction invalid, insufficient funds, bal %d, needed %d", from.Balance, (tx.Value + tx.Tip))
			}

			if tx.IsStake() {
				if tx.Value == 0 {
					return errors.New("transaction invalid, stake deposit must be greater than zero")
				}

				if from.Stake > math.MaxUint64-tx.Value {
					return fmt.Errorf("transaction invalid, stake overflow, stake %d, deposit %d", from.Stake, tx.Value)
				}
			}
		}

		// Move the value. A stake deposit stays with the sender.
		from.Balance -= tx.Value
		if tx.IsStake() {
			from.Stake += tx.Value
			from.StakedAt = block.Header.TimeStamp
		}

		// Give the beneficiary the tip.
		from.Balance -= tx.Tip
		if beneficiaryID == fromID {
			from.Balance += tx.Tip
		} else {
			bnfc.Balance += tx.Tip
		}

		// Update the nonce for the next transaction check.
		from.Nonce = tx.Nonce

		// Update the final changes to these accounts.
		db.accounts[fromID] = from
		if beneficiaryID != fromID {
			db.accounts[beneficiaryID] = bnfc
		}

		if !tx.IsStake() {
			to, exists := db.accounts[tx.ToID]
			if !exists {
				to = newAccount(tx.ToID, 0)
			}
			to.Balance += tx.Value
			db.accounts[tx.ToID] = to
		}
	}

	return nil
}

// UpdateLatestBlock provides safe access to update the latest block.
func (db *Database) UpdateLatestBlock(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.latestBlock = block
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Write adds a new block to the chain.
func (db *Database) Write(block Block) error {
	if err := db.storage.Write(NewBlockData(block)); err != nil {
		return err
	}

	db.cache.Add(block.Header.Number, block)
	return nil
}

// GetBlock searches the blockchain to locate and return the contents of the
// specified block by number. Recently read blocks are served from a cache.
func (db *Database) GetBlock(num uint64) (Block, error) {
	if block, ok := db.cache.Get(num); ok {
		return block, nil
	}

	blockData, err := db.storage.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	block, err := ToBlock(blockData)
	if err != nil {
		return Block{}, err
	}

	db.cache.Add(num, block)
	return block, nil
}

// GetBlockByHash locates and returns the block with the specified hash.
func (db *Database) GetBlockByHash(hash string) (Block, error) {
	blockData, err := db.storage.GetBlockByHash(hash)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.storage.ForEach()}
}

// =============================================================================

// DatabaseIterator provides support for iterating over the blocks in the
// blockchain database using the configured storage option.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}
