// Package peer maintains the peer related information such as the node
// identity, the Kademlia routing table of known peers and their status.
package peer

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host"`
	ID   NodeID `json:"id"`
}

// New constructs a peer value for a host whose id is not known yet.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// NewWithID constructs a peer value for an identified host.
func NewWithID(host string, id NodeID) Peer {
	return Peer{
		Host: host,
		ID:   id,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the status
// of any given peer.
type PeerStatus struct {
	ID                NodeID `json:"id"`
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	KnownPeers        []Peer `json:"known_peers"`
}
