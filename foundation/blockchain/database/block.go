package database

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
	"github.com/kadchain/blockchain/foundation/blockchain/merkle"
	"github.com/kadchain/blockchain/foundation/blockchain/signature"
)

// ErrChainForked is returned from validateNextBlock if another node's chain
// is two or more blocks ahead of ours.
var ErrChainForked = errors.New("blockchain forked, start resync")

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Sig    string      `json:"sig,omitempty"`
	Trans  []BlockTx   `json:"trans"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Sig:    block.Sig,
		Trans:  block.MerkleTree.Values(),
	}

	return blockData
}

// ToBlock converts a storage block into a database block.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Header:     blockData.Header,
		Sig:        blockData.Sig,
		MerkleTree: tree,
	}

	return block, nil
}

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64    `json:"number"`          // Ethereum: Block number in the chain.
	PrevBlockHash string    `json:"prev_block_hash"` // Bitcoin: Hash of the previous block in the chain.
	TimeStamp     uint64    `json:"timestamp"`       // Bitcoin: Time the block was mined, in unix seconds.
	BeneficiaryID AccountID `json:"beneficiary"`     // Ethereum: The account who is receiving fees and tips.
	Difficulty    uint16    `json:"difficulty"`      // Ethereum: Number of 0's needed to solve the hash solution.
	MiningReward  uint64    `json:"mining_reward"`   // Ethereum: The reward for mining this block.
	StateRoot     string    `json:"state_root"`      // Ethereum: Represents a hash of the accounts and their balances.
	TransRoot     string    `json:"trans_root"`      // Both: Represents the merkle tree root hash for the transactions in this block.
	Nonce         uint64    `json:"nonce"`           // Both: Value identified to solve the hash solution.
}

// Block represents a group of transactions batched together. Proof of stake
// blocks carry the proposer's signature over the header in Sig.
type Block struct {
	Header     BlockHeader
	Sig        string
	MerkleTree *merkle.Tree[BlockTx]
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	BeneficiaryID AccountID
	Difficulty    uint16
	MiningReward  uint64
	PrevBlock     Block
	StateRoot     string
	Trans         []BlockTx
	EvHandler     func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	b, err := newBlock(args.BeneficiaryID, args.Difficulty, args.MiningReward, args.PrevBlock, NextTimeStamp(args.PrevBlock, time.Now()), args.StateRoot, args.Trans)
	if err != nil {
		return Block{}, err
	}

	// Perform the proof of work mining operation.
	if err := b.performPOW(ctx, args.EvHandler); err != nil {
		return Block{}, err
	}

	return b, nil
}

// POSArgs represents the set of arguments required to propose a POS block.
type POSArgs struct {
	BeneficiaryKey *ecdsa.PrivateKey
	MiningReward   uint64
	PrevBlock      Block
	TimeStamp      uint64 // The validator was selected for this time, see NextTimeStamp.
	StateRoot      string
	Trans          []BlockTx
	EvHandler      func(v string, args ...any)
}

// POS constructs a new Block and signs its header with the beneficiary key.
// There is no puzzle to solve; the right to propose comes from being the
// selected validator.
func POS(args POSArgs) (Block, error) {
	beneficiaryID := PublicKeyToAccountID(args.BeneficiaryKey.PublicKey)

	timeStamp := args.TimeStamp
	if timeStamp == 0 {
		timeStamp = NextTimeStamp(args.PrevBlock, time.Now())
	}

	b, err := newBlock(beneficiaryID, 0, args.MiningReward, args.PrevBlock, timeStamp, args.StateRoot, args.Trans)
	if err != nil {
		return Block{}, err
	}

	v, r, s, err := signature.Sign(b.Header, args.BeneficiaryKey)
	if err != nil {
		return Block{}, fmt.Errorf("signing block header: %w", err)
	}
	b.Sig = signature.SignatureString(v, r, s)

	args.EvHandler("database: POS: PROPOSED: prevBlk[%s]: newBlk[%s]: numTrans[%d]", b.Header.PrevBlockHash, b.Hash(), len(args.Trans))

	return b, nil
}

// newBlock constructs the header and merkle tree shared by both consensus
// algorithms.
func newBlock(beneficiaryID AccountID, difficulty uint16, reward uint64, prevBlock Block, timeStamp uint64, stateRoot string, trans []BlockTx) (Block, error) {

	// When mining the first block, the previous block's hash will be zero.
	prevBlockHash := signature.ZeroHash
	if prevBlock.Header.Number > 0 {
		prevBlockHash = prevBlock.Hash()
	}

	// Construct a merkle tree from the transaction for this block. The root
	// of this tree will be part of the block to be mined.
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: BlockHeader{
			Number:        prevBlock.Header.Number + 1,
			PrevBlockHash: prevBlockHash,
			TimeStamp:     timeStamp,
			BeneficiaryID: beneficiaryID,
			Difficulty:    difficulty,
			MiningReward:  reward,
			StateRoot:     stateRoot,
			TransRoot:     tree.RootHex(),
			Nonce:         0, // Will be identified by the POW algorithm.
		},
		MerkleTree: tree,
	}

	return nb, nil
}

// NextTimeStamp returns the timestamp of a block built on top of the parent
// at the specified time. Blocks produced within the same second as the
// parent get pushed forward so the timestamp always moves.
func NextTimeStamp(parent Block, now time.Time) uint64 {
	timeStamp := uint64(now.UTC().Unix())
	if timeStamp <= parent.Header.TimeStamp {
		timeStamp = parent.Header.TimeStamp + 1
	}
	return timeStamp
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started")
	defer ev("database: PerformPOW: MINING: completed")

	// Log the transactions that are a part of this potential block.
	for _, tx := range b.MerkleTree.Values() {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	ev("database: PerformPOW: MINING: running")

	// Loop until we or another node finds a solution for the next block.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: running: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	// CORE NOTE: Hashing the block header and not the whole block so the blockchain
	// can be cryptographically checked by only needing block headers and not full
	// blocks with the transaction data. The POS signature lives outside the header
	// so the hash is the same before and after signing.

	return signature.Hash(b.Header)
}

// Proposer recovers the account that signed a POS block header.
func (b Block) Proposer() (AccountID, error) {
	if b.Sig == "" {
		return "", errors.New("block is not signed")
	}

	v, r, s, err := signature.ToVRSFromHexSignature(b.Sig)
	if err != nil {
		return "", err
	}

	if err := signature.VerifySignature(v, r, s); err != nil {
		return "", err
	}

	address, err := signature.FromAddress(b.Header, v, r, s)
	if err != nil {
		return "", err
	}

	return AccountID(address), nil
}

// Rules carries the consensus rules a block is validated against. Validator
// is the account selected to propose the block when running POS.
type Rules struct {
	Consensus  string
	Difficulty uint16
	GasPrice   uint64
	Validator  AccountID
}

// ValidateBlock takes a block and validates it to be included into the blockchain.
func (b Block) ValidateBlock(previousBlock Block, stateRoot string, rules Rules, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: chain is not forked", b.Header.Number)

	// The node who sent this block has a chain that is two or more blocks ahead
	// of ours. This means there has been a fork and we are on the wrong side.
	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number >= (nextNumber + 2) {
		return ErrChainForked
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty is the same or greater than parent block difficulty", b.Header.Number)

	if b.Header.Difficulty < previousBlock.Header.Difficulty {
		return fmt.Errorf("block difficulty is less than parent block difficulty, parent %d, block %d", previousBlock.Header.Difficulty, b.Header.Difficulty)
	}

	hash := b.Hash()

	switch rules.Consensus {
	case genesis.ConsensusPOS:
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block is signed by the selected validator", b.Header.Number)

		proposer, err := b.Proposer()
		if err != nil {
			return fmt.Errorf("invalid block signature: %w", err)
		}

		if proposer != b.Header.BeneficiaryID {
			return fmt.Errorf("block signed by %s, beneficiary is %s", proposer, b.Header.BeneficiaryID)
		}

		if proposer != rules.Validator {
			return fmt.Errorf("block proposed by %s, selected validator is %s", proposer, rules.Validator)
		}

	default:
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty is the chain difficulty or greater", b.Header.Number)

		if b.Header.Difficulty < rules.Difficulty {
			return fmt.Errorf("block difficulty is less than chain difficulty, chain %d, block %d", rules.Difficulty, b.Header.Difficulty)
		}

		evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

		if !isHashSolved(b.Header.Difficulty, hash) {
			return fmt.Errorf("%s invalid block hash", hash)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	if b.Header.Number != nextNumber {
		return fmt.Errorf("this block is not the next number, got %d, exp %d", b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("parent block hash doesn't match our known parent, got %s, exp %s", b.Header.PrevBlockHash, previousBlock.Hash())
	}

	if previousBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is greater than parent block's timestamp", b.Header.Number)

		parentTime := time.Unix(int64(previousBlock.Header.TimeStamp), 0)
		blockTime := time.Unix(int64(b.Header.TimeStamp), 0)
		if !blockTime.After(parentTime) {
			return fmt.Errorf("block timestamp is before parent block, parent %s, block %s", parentTime, blockTime)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: state root hash does match current state", b.Header.Number)

	if b.Header.StateRoot != stateRoot {
		return fmt.Errorf("state root does not match current state, got %s, exp %s", b.Header.StateRoot, stateRoot)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	if b.Header.TransRoot != b.MerkleTree.RootHex() {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", b.MerkleTree.RootHex(), b.Header.TransRoot)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: transactions pay the chain gas price", b.Header.Number)

	for _, tx := range b.MerkleTree.Values() {
		if err := tx.ValidateGas(rules.GasPrice); err != nil {
			return fmt.Errorf("tx[%s]: %w", tx, err)
		}
	}

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint16, hash string) bool {
	hash = strings.TrimPrefix(hash, "0x")
	if len(hash) != 64 || int(difficulty) > len(hash) {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}
