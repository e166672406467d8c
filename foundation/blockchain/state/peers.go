package state

import (
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
)

// AddKnownPeer provides the ability to add a new peer to the routing table.
// It reports whether the peer was not known before.
func (s *State) AddKnownPeer(p peer.Peer) bool {
	if p.Host == s.host {
		return false
	}

	added, err := s.knownPeers.Add(p)
	if err != nil {
		s.evHandler("state: AddKnownPeer: peer[%s]: %s", p.Host, err)
		return false
	}

	if added {
		s.metrics.SetPeers(s.knownPeers.Len())
	}

	return added
}

// RemoveKnownPeer provides the ability to remove a peer from
// the routing table.
func (s *State) RemoveKnownPeer(p peer.Peer) {
	s.knownPeers.Remove(p)
	s.metrics.SetPeers(s.knownPeers.Len())
}

// ClosestPeers returns up to n known peers closest to the target id.
// A zero n returns a full bucket worth of peers.
func (s *State) ClosestPeers(target peer.NodeID, n int) []peer.Peer {
	if n <= 0 {
		n = s.knownPeers.BucketSize()
	}

	return s.knownPeers.Closest(target, n)
}
