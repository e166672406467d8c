package peer

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// NodeIDBits is the size of the id space in bits, which is also the number
// of buckets in the routing table.
const NodeIDBits = 256

// NodeID identifies a node in the Kademlia id space. It is the Keccak-256
// hash of the node's uncompressed public key.
type NodeID [32]byte

// NodeIDFromPublicKey derives the node id from a public key.
func NodeIDFromPublicKey(pk ecdsa.PublicKey) NodeID {
	var id NodeID

	// Drop the 0x04 uncompressed point prefix.
	copy(id[:], crypto.Keccak256(crypto.FromECDSAPub(&pk)[1:]))
	return id
}

// ParseNodeID converts a hex encoded id back into a NodeID. The empty string
// is the zero id.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID
	if s == "" {
		return id, nil
	}

	b, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("parse node id: %w", err)
	}

	if len(b) != len(id) {
		return id, fmt.Errorf("parse node id: got %d bytes, exp %d", len(b), len(id))
	}

	copy(id[:], b)
	return id, nil
}

// String returns the hex form of the id.
func (id NodeID) String() string {
	return hexutil.Encode(id[:])
}

// IsZero reports whether the id has not been set.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// MarshalText implements encoding.TextMarshaler. The zero id marshals as an
// empty string.
func (id NodeID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}

// Distance returns the XOR distance between two ids.
func (id NodeID) Distance(other NodeID) NodeID {
	var d NodeID
	for i := range id {
		d[i] = id[i] ^ other[i]
	}
	return d
}

// CommonPrefixLen returns the number of leading bits the two ids share.
func (id NodeID) CommonPrefixLen(other NodeID) int {
	for i := range id {
		if x := id[i] ^ other[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return NodeIDBits
}

// Less reports whether a is closer to id than b.
func (id NodeID) Less(a, b NodeID) bool {
	da := id.Distance(a)
	db := id.Distance(b)
	return bytes.Compare(da[:], db[:]) < 0
}
