// Package merkle provides a merkle tree over any value that can hash
// itself. Blocks use it to commit to their transactions and to hand out
// inclusion proofs.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// Proof order values. They describe on which side the proof hash is
// concatenated when walking up to the root.
const (
	ProofLeft  int64 = 0
	ProofRight int64 = 1
)

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint. Every level is stored bottom
// up, with odd levels padded by duplicating their last hash.
type Tree[T Hashable[T]] struct {
	values       []T
	levels       [][][]byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the levels of the tree from the specified data. If the
// tree has been generated previously, the tree is re-generated from scratch.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return errors.New("cannot construct tree with no content")
	}

	level := make([][]byte, 0, len(values)+1)
	for _, value := range values {
		h, err := value.Hash()
		if err != nil {
			return err
		}
		level = append(level, h)
	}

	var levels [][][]byte
	for {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		levels = append(levels, level)

		next := make([][]byte, 0, len(level)/2+1)
		for i := 0; i < len(level); i += 2 {
			h, err := t.hashPair(level[i], level[i+1])
			if err != nil {
				return err
			}
			next = append(next, h)
		}

		if len(next) == 1 {
			levels = append(levels, next)
			break
		}
		level = next
	}

	t.values = append([]T(nil), values...)
	t.levels = levels

	return nil
}

// Root returns the merkle root hash.
func (t *Tree[T]) Root() []byte {
	return t.levels[len(t.levels)-1][0]
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.Root())
}

// Values returns a copy of the values stored in the tree, in the order
// they were provided.
func (t *Tree[T]) Values() []T {
	if t == nil {
		return nil
	}
	return append([]T(nil), t.values...)
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a value is in the tree.
//
// Hash the value in question, then for each proof hash: when the order is
// ProofLeft hash(proof || current), when ProofRight hash(current || proof).
// The final hash should match the merkle root.
func (t *Tree[T]) Proof(value T) ([][]byte, []int64, error) {
	idx := -1
	for i, v := range t.values {
		if v.Equals(value) {
			idx = i
			break
		}
	}

	if idx == -1 {
		return nil, nil, errors.New("unable to find value in tree")
	}

	var proof [][]byte
	var order []int64
	for _, level := range t.levels[:len(t.levels)-1] {
		if idx%2 == 0 {
			proof = append(proof, level[idx+1])
			order = append(order, ProofRight)
		} else {
			proof = append(proof, level[idx-1])
			order = append(order, ProofLeft)
		}
		idx /= 2
	}

	return proof, order, nil
}

// Verify recomputes every level of the tree from the stored values and
// checks the result against the stored root.
func (t *Tree[T]) Verify() error {
	cpy := Tree[T]{hashStrategy: t.hashStrategy}
	if err := cpy.Generate(t.values); err != nil {
		return err
	}

	if !bytes.Equal(cpy.Root(), t.Root()) {
		return errors.New("merkle root does not match the tree values")
	}

	return nil
}

// VerifyProof walks the proof for the value and reports whether it ends
// at the tree's root.
func (t *Tree[T]) VerifyProof(value T, proof [][]byte, order []int64) (bool, error) {
	leaf, err := value.Hash()
	if err != nil {
		return false, err
	}

	return VerifyProof(t.Root(), leaf, proof, order, t.hashStrategy)
}

// String returns the root hash and number of values.
func (t *Tree[T]) String() string {
	return hexutil.Encode(t.Root())
}

// MarshalText prevents the tree from being marshaled by accident. Use the
// Values method to get a slice that can be marshaled.
func (t *Tree[T]) MarshalText() ([]byte, error) {
	return nil, errors.New("do not marshal the merkle tree, use Values")
}

// hashPair hashes two sibling hashes into their parent.
func (t *Tree[T]) hashPair(left, right []byte) ([]byte, error) {
	h := t.hashStrategy()
	if _, err := h.Write(left); err != nil {
		return nil, err
	}
	if _, err := h.Write(right); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// =============================================================================

// VerifyProof checks an inclusion proof for a leaf hash against a root hash
// without needing the tree.
func VerifyProof(root []byte, leaf []byte, proof [][]byte, order []int64, hashStrategy func() hash.Hash) (bool, error) {
	if len(proof) != len(order) {
		return false, errors.New("proof and order length mismatch")
	}

	current := leaf
	for i, p := range proof {
		h := hashStrategy()
		switch order[i] {
		case ProofLeft:
			h.Write(p)
			h.Write(current)
		case ProofRight:
			h.Write(current)
			h.Write(p)
		default:
			return false, errors.New("invalid proof order value")
		}
		current = h.Sum(nil)
	}

	return bytes.Equal(current, root), nil
}
