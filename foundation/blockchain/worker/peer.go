package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
	"golang.org/x/sync/errgroup"
)

// maxPeerRequests bounds the number of peers contacted concurrently.
const maxPeerRequests = 8

// lookupTimeout bounds the self lookup performed on each peer update.
const lookupTimeout = 30 * time.Second

// peerOperations handles finding new peers.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation updates the routing table. Every known peer is asked for
// its status and dropped when it does not answer, a lookup of our own id
// fills the buckets around us, and finally every peer is told we exist.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	statuses := w.peerStatuses()

	// Pick up blocks from any peer that moved ahead of us.
	for _, ps := range statuses {
		if ps.status.LatestBlockNumber > w.state.RetrieveLatestBlock().Header.Number {
			w.retrievePeerBlocks(ps.peer)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	found, err := w.state.NetLookup(ctx, w.state.RetrieveNodeID())
	if err != nil {
		w.evHandler("worker: runPeersOperation: lookup: ERROR: %s", err)
	}
	w.evHandler("worker: runPeersOperation: lookup: found[%d]", len(found))

	w.announce()
}

// peerState pairs a peer with the status it reported.
type peerState struct {
	peer   peer.Peer
	status peer.PeerStatus
}

// peerStatuses requests the status of every known peer concurrently. Peers
// that answer are identified in the routing table along with the peers they
// know. Peers that don't are removed.
func (w *Worker) peerStatuses() []peerState {
	var mu sync.Mutex
	var out []peerState

	var g errgroup.Group
	g.SetLimit(maxPeerRequests)

	for _, pr := range w.state.RetrieveKnownPeers() {
		g.Go(func() error {
			status, err := w.state.NetRequestPeerStatus(pr)
			if err != nil {
				w.evHandler("worker: peerStatuses: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
				w.state.RemoveKnownPeer(pr)
				return nil
			}

			identified := peer.NewWithID(pr.Host, status.ID)
			w.state.AddKnownPeer(identified)
			w.addNewPeers(status.KnownPeers)

			mu.Lock()
			out = append(out, peerState{peer: identified, status: status})
			mu.Unlock()

			return nil
		})
	}

	g.Wait()

	return out
}

// announce lets every known peer know this node is available to chat.
func (w *Worker) announce() {
	var g errgroup.Group
	g.SetLimit(maxPeerRequests)

	for _, pr := range w.state.RetrieveKnownPeers() {
		g.Go(func() error {
			remote, err := w.state.NetRequestAddPeer(pr)
			if err != nil {
				w.evHandler("worker: announce: addPeer: %s: ERROR: %s", pr.Host, err)
				return nil
			}

			if remote.Host == pr.Host {
				w.state.AddKnownPeer(remote)
			}
			return nil
		})
	}

	g.Wait()
}

// addNewPeers takes the list of known peers and makes sure they are included
// in the nodes list of know peers.
func (w *Worker) addNewPeers(knownPeers []peer.Peer) {
	w.evHandler("worker: addNewPeers: started")
	defer w.evHandler("worker: addNewPeers: completed")

	for _, pr := range knownPeers {

		// Don't add this running node to the known peer list.
		if pr.Match(w.state.RetrieveHost()) {
			continue
		}

		if w.state.AddKnownPeer(pr) {
			w.evHandler("worker: addNewPeers: add peer nodes: adding peer-node %s", pr)
		}
	}
}

// retrievePeerBlocks downloads the blocks we are missing from the peer and
// starts a resync when the peer is on a different fork.
func (w *Worker) retrievePeerBlocks(pr peer.Peer) {
	w.evHandler("worker: retrievePeerBlocks: %s", pr.Host)

	err := w.state.NetRequestPeerBlocks(pr)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrChainForked):
		w.evHandler("worker: retrievePeerBlocks: %s: fork detected", pr.Host)
		if err := w.state.Resync(); err != nil {
			w.evHandler("worker: retrievePeerBlocks: resync: ERROR: %s", err)
		}
	default:
		w.evHandler("worker: retrievePeerBlocks: %s: ERROR %s", pr.Host, err)
	}
}
