package worker

import (
	"sort"
)

// Sync updates the peer list, mempool and blocks. Peer statuses are
// requested concurrently, then blocks are downloaded from the peers that
// are ahead of us, the longest chain first.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	statuses := w.peerStatuses()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].status.LatestBlockNumber > statuses[j].status.LatestBlockNumber
	})

	for _, ps := range statuses {

		// Retrieve the mempool from the peer.
		pool, err := w.state.NetRequestPeerMempool(ps.peer)
		if err != nil {
			w.evHandler("worker: sync: retrievePeerMempool: %s: ERROR: %s", ps.peer.Host, err)
		}
		for _, tx := range pool {
			w.evHandler("worker: sync: retrievePeerMempool: %s: Add Tx: %s", ps.peer.Host, tx)
			if err := w.state.UpsertNodeTransaction(tx); err != nil {
				w.evHandler("worker: sync: retrievePeerMempool: %s: WARNING: %s", ps.peer.Host, err)
			}
		}

		// If this peer has blocks we don't have, we need to add them.
		if ps.status.LatestBlockNumber > w.state.RetrieveLatestBlock().Header.Number {
			w.evHandler("worker: sync: retrievePeerBlocks: %s: latestBlockNumber[%d]", ps.peer.Host, ps.status.LatestBlockNumber)
			w.retrievePeerBlocks(ps.peer)
		}
	}
}
