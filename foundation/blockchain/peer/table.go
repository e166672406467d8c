package peer

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
)

// DefaultBucketSize is the number of peers each bucket holds, the k of
// Kademlia.
const DefaultBucketSize = 16

// ErrBucketFull is returned by Add when the bucket for the peer's id
// already holds k peers.
var ErrBucketFull = errors.New("bucket is full")

// Table is a Kademlia routing table. Peers are placed in the bucket matching
// the length of the prefix their id shares with the local id. Each bucket
// keeps its peers ordered from least to most recently seen. Peers whose id
// is not known yet are held in a pending set keyed by host until they are
// identified.
type Table struct {
	mu      sync.RWMutex
	self    Peer
	k       int
	buckets [NodeIDBits][]Peer
	pending map[string]Peer
}

// NewTable constructs a routing table around the local node. A bucket size
// of zero or less uses DefaultBucketSize.
func NewTable(self Peer, k int) *Table {
	if k <= 0 {
		k = DefaultBucketSize
	}

	return &Table{
		self:    self,
		k:       k,
		pending: make(map[string]Peer),
	}
}

// Self returns the local node.
func (t *Table) Self() Peer {
	return t.self
}

// BucketSize returns the k of the table.
func (t *Table) BucketSize() int {
	return t.k
}

// BucketIndex returns the bucket the id belongs in. The local id has no
// bucket and returns -1.
func (t *Table) BucketIndex(id NodeID) int {
	return NodeIDBits - 1 - t.self.ID.CommonPrefixLen(id)
}

// Add records the peer as seen. It returns true when the peer was not
// known before. A known peer moves to the tail of its bucket. The local
// node is never added.
func (t *Table) Add(p Peer) (bool, error) {
	if p.Host == "" || p.Host == t.self.Host {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if p.ID.IsZero() {
		if t.findHost(p.Host) {
			return false, nil
		}

		if _, exists := t.pending[p.Host]; exists {
			return false, nil
		}

		t.pending[p.Host] = p
		return true, nil
	}

	if p.ID == t.self.ID {
		return false, nil
	}

	_, wasPending := t.pending[p.Host]
	delete(t.pending, p.Host)

	// A host that restarted with a new key replaces its old entry.
	for i := range t.buckets {
		t.buckets[i] = slices.DeleteFunc(t.buckets[i], func(q Peer) bool {
			return q.Host == p.Host && q.ID != p.ID
		})
	}

	idx := t.BucketIndex(p.ID)
	bucket := t.buckets[idx]

	if i := slices.IndexFunc(bucket, func(q Peer) bool { return q.ID == p.ID }); i >= 0 {
		bucket = slices.Delete(bucket, i, i+1)
		t.buckets[idx] = append(bucket, p)
		return false, nil
	}

	if len(bucket) >= t.k {
		if wasPending {
			t.pending[p.Host] = New(p.Host)
		}
		return false, ErrBucketFull
	}

	t.buckets[idx] = append(bucket, p)
	return !wasPending, nil
}

// Remove drops the peer with the same host from the table.
func (t *Table) Remove(p Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, p.Host)
	for i := range t.buckets {
		t.buckets[i] = slices.DeleteFunc(t.buckets[i], func(q Peer) bool {
			return q.Host == p.Host
		})
	}
}

// Contains reports whether the host is known.
func (t *Table) Contains(host string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, exists := t.pending[host]; exists {
		return true
	}
	return t.findHost(host)
}

// Len returns the number of known peers including pending ones.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.pending)
	for _, bucket := range t.buckets {
		n += len(bucket)
	}
	return n
}

// Copy returns a list of the known peers, excluding the specified host.
func (t *Table) Copy(host string) []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var peers []Peer
	for _, bucket := range t.buckets {
		for _, p := range bucket {
			if !p.Match(host) {
				peers = append(peers, p)
			}
		}
	}

	for _, p := range t.pending {
		if !p.Match(host) {
			peers = append(peers, p)
		}
	}

	return peers
}

// Closest returns up to n identified peers sorted by XOR distance to the
// target id.
func (t *Table) Closest(target NodeID, n int) []Peer {
	t.mu.RLock()
	var peers []Peer
	for _, bucket := range t.buckets {
		peers = append(peers, bucket...)
	}
	t.mu.RUnlock()

	SortByDistance(target, peers)

	if n > 0 && len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// Random returns up to n known peers chosen at random. A value of n of zero
// or less returns every known peer.
func (t *Table) Random(n int) []Peer {
	peers := t.Copy("")

	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})

	if n > 0 && len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// findHost reports whether an identified peer uses the host. The caller
// must hold the lock.
func (t *Table) findHost(host string) bool {
	for _, bucket := range t.buckets {
		for _, p := range bucket {
			if p.Host == host {
				return true
			}
		}
	}
	return false
}

// =============================================================================

// SortByDistance sorts the peers by XOR distance to the target, closest
// first. Peers without an id sort last.
func SortByDistance(target NodeID, peers []Peer) {
	slices.SortFunc(peers, func(a, b Peer) int {
		switch {
		case a.ID.IsZero() && b.ID.IsZero():
			return 0
		case a.ID.IsZero():
			return 1
		case b.ID.IsZero():
			return -1
		case target.Less(a.ID, b.ID):
			return -1
		case target.Less(b.ID, a.ID):
			return 1
		}
		return 0
	})
}
