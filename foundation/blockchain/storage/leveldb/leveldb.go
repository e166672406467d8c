// Package leveldb implements the ability to read and write blocks to a
// LevelDB database, indexing every block by number and by hash.
package leveldb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout.
//
//	n/<8 byte big endian number> -> block hash
//	h/<block hash>               -> json encoded block data
//	meta/latest                  -> 8 byte big endian number of the latest block
var (
	numberPrefix = []byte("n/")
	hashPrefix   = []byte("h/")
	latestKey    = []byte("meta/latest")
)

// LevelDB represents the serialization implementation for reading and storing
// blocks in a LevelDB database. This implements the database.Storage interface.
type LevelDB struct {
	mu     sync.RWMutex
	db     *leveldb.DB
	latest uint64
}

// New opens or creates the LevelDB database at the specified path.
func New(dbPath string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}

	l := LevelDB{db: db}

	data, err := db.Get(latestKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("read latest: %w", err)
	default:
		l.latest = binary.BigEndian.Uint64(data)
	}

	return &l, nil
}

// Close releases the underlying database files.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Write appends the block to the chain. The block number, hash and latest
// pointer are updated in a single atomic batch.
func (l *LevelDB) Write(blockData database.BlockData) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if blockData.Header.Number != l.latest+1 {
		return fmt.Errorf("block is out of order, got %d, exp %d", blockData.Header.Number, l.latest+1)
	}

	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	num := encodeNumber(blockData.Header.Number)

	batch := new(leveldb.Batch)
	batch.Put(numberKey(blockData.Header.Number), []byte(blockData.Hash))
	batch.Put(hashKey(blockData.Hash), data)
	batch.Put(latestKey, num)

	if err := l.db.Write(batch, nil); err != nil {
		return err
	}

	l.latest = blockData.Header.Number
	return nil
}

// GetBlock locates the block with the specified number.
func (l *LevelDB) GetBlock(num uint64) (database.BlockData, error) {
	hash, err := l.db.Get(numberKey(num), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.BlockData{}, fmt.Errorf("block %d: %w", num, database.ErrNotFound)
		}
		return database.BlockData{}, err
	}

	return l.GetBlockByHash(string(hash))
}

// GetBlockByHash locates the block with the specified hash.
func (l *LevelDB) GetBlockByHash(hash string) (database.BlockData, error) {
	data, err := l.db.Get(hashKey(hash), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.BlockData{}, fmt.Errorf("block %s: %w", hash, database.ErrNotFound)
		}
		return database.BlockData{}, err
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// Latest returns the number of the latest block written.
func (l *LevelDB) Latest() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.latest
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (l *LevelDB) ForEach() database.Iterator {
	return &levelDBIterator{
		storage: l,
		iter:    l.db.NewIterator(util.BytesPrefix(numberPrefix), nil),
	}
}

// Reset deletes every key in the database.
func (l *LevelDB) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}

	if err := iter.Error(); err != nil {
		return err
	}

	if err := l.db.Write(batch, nil); err != nil {
		return err
	}

	l.latest = 0
	return nil
}

// =============================================================================

// levelDBIterator walks the number index in key order, which is block order
// because numbers are stored big endian.
type levelDBIterator struct {
	storage *LevelDB
	iter    iterator.Iterator
	eoc     bool
}

// Next retrieves the next block from the database.
func (li *levelDBIterator) Next() (database.BlockData, error) {
	if li.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	if !li.iter.Next() {
		li.eoc = true
		err := li.iter.Error()
		li.iter.Release()
		if err != nil {
			return database.BlockData{}, err
		}
		return database.BlockData{}, errors.New("end of chain")
	}

	return li.storage.GetBlockByHash(string(li.iter.Value()))
}

// Done returns the end of chain value.
func (li *levelDBIterator) Done() bool {
	return li.eoc
}

// =============================================================================

func encodeNumber(num uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, num)
	return b
}

func numberKey(num uint64) []byte {
	return append(append([]byte(nil), numberPrefix...), encodeNumber(num)...)
}

func hashKey(hash string) []byte {
	return append(append([]byte(nil), hashPrefix...), hash...)
}
