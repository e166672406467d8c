package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/metrics"
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
	"golang.org/x/sync/errgroup"
)

const baseURL = "http://%s/v1/node"

// lookupAlpha is the number of peers queried concurrently during a lookup.
const lookupAlpha = 3

// requestTimeout bounds every request made to a peer.
const requestTimeout = 10 * time.Second

// ClosestPeers is the response of a find node request. Self is the
// responding node so the caller learns its id.
type ClosestPeers struct {
	Self  peer.Peer   `json:"self"`
	Peers []peer.Peer `json:"peers"`
}

// =============================================================================

// NetSendBlockToPeers takes a new block and sends it to the gossip network
// and a random set of known peers.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	blockData := database.NewBlockData(block)

	var errs []error

	if g := s.retrieveGossiper(); g != nil {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := g.PublishBlock(ctx, blockData); err != nil {
			errs = append(errs, fmt.Errorf("gossip: %w", err))
		}
	}

	for _, pr := range s.sharePeers() {
		url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))

		var status struct {
			Status string `json:"status"`
		}

		if err := s.send(context.Background(), http.MethodPost, url, blockData, &status); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pr.Host, err))
			continue
		}
		s.metrics.GossipMessage("block", metrics.DirectionOut)

		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr)
	}

	return errors.Join(errs...)
}

// NetSendTxToPeers shares a new block transaction with the gossip network
// and a random set of known peers.
func (s *State) NetSendTxToPeers(tx database.BlockTx) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	// CORE NOTE: Bitcoin does not send the full transaction immediately to save
	// on bandwidth. A node will send the transaction's mempool key first so the
	// receiving node can check if they already have the transaction or not.
	// This node sends the full transaction and relies on the seen cache of the
	// receiver to drop duplicates.

	if g := s.retrieveGossiper(); g != nil {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := g.PublishTx(ctx, tx); err != nil {
			s.evHandler("state: NetSendTxToPeers: gossip: WARNING: %s", err)
		}
	}

	for _, pr := range s.sharePeers() {
		url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
		if err := s.send(context.Background(), http.MethodPost, url, tx, nil); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: %s", err)
			continue
		}
		s.metrics.GossipMessage("tx", metrics.DirectionOut)
	}
}

// NetRequestPeerStatus looks for new nodes on the blockchain by asking
// known nodes for their peer list. New nodes are added to the list.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := s.send(context.Background(), http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer-node[%s]: latest-blknum[%d]: peer-list[%s]", pr, ps.LatestBlockNumber, ps.KnownPeers)

	return ps, nil
}

// NetRequestPeerMempool asks the peer for the transactions in their mempool.
func (s *State) NetRequestPeerMempool(pr peer.Peer) ([]database.BlockTx, error) {
	s.evHandler("state: NetRequestPeerMempool: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerMempool: completed: %s", pr)

	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var mempool []database.BlockTx
	if err := s.send(context.Background(), http.MethodGet, url, nil, &mempool); err != nil {
		return nil, err
	}

	s.evHandler("state: sync: NetRequestPeerMempool: len[%d]", len(mempool))

	return mempool, nil
}

// NetRequestPeerBlocks queries the specified node asking for blocks this node does
// not have, then writes them to disk.
func (s *State) NetRequestPeerBlocks(pr peer.Peer) error {
	s.evHandler("state: NetRequestPeerBlocks: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerBlocks: completed: %s", pr)

	// CORE NOTE: Ideally you want to start by pulling just block headers and
	// performing the cryptographic audit so you know your're not being attacked.
	// This node is a full node and needs the transactions to have a complete
	// account database. The audit takes place as each full block is downloaded.

	from := s.RetrieveLatestBlock().Header.Number + 1
	url := fmt.Sprintf("%s/block/list/%d/latest", fmt.Sprintf(baseURL, pr.Host), from)

	var blocksData []database.BlockData
	if err := s.send(context.Background(), http.MethodGet, url, nil, &blocksData); err != nil {
		return err
	}

	s.evHandler("state: NetRequestPeerBlocks: found blocks[%d]", len(blocksData))

	for _, blockData := range blocksData {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return err
		}

		if err := s.processBlock(block); err != nil {
			if errors.Is(err, ErrBlockKnown) {
				continue
			}
			return err
		}
	}

	return nil
}

// NetRequestAddPeer announces this node to the specified peer and returns
// the peer as it identifies itself.
func (s *State) NetRequestAddPeer(pr peer.Peer) (peer.Peer, error) {
	s.evHandler("state: NetRequestAddPeer: started: %s", pr)
	defer s.evHandler("state: NetRequestAddPeer: completed: %s", pr)

	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))

	var remote peer.Peer
	if err := s.send(context.Background(), http.MethodPost, url, s.RetrieveSelf(), &remote); err != nil {
		return peer.Peer{}, err
	}

	return remote, nil
}

// NetFindNode asks the specified peer for the peers it knows that are
// closest to the target id.
func (s *State) NetFindNode(ctx context.Context, pr peer.Peer, target peer.NodeID) (ClosestPeers, error) {
	url := fmt.Sprintf("%s/peers/closest/%s", fmt.Sprintf(baseURL, pr.Host), target)

	var cp ClosestPeers
	if err := s.send(ctx, http.MethodGet, url, nil, &cp); err != nil {
		return ClosestPeers{}, err
	}

	return cp, nil
}

// NetLookup performs an iterative Kademlia lookup for the target id. Up to
// lookupAlpha peers are queried at a time, always picking the closest peers
// not queried yet, until the closest bucket size worth of peers have all
// been queried. Every identified peer learned on the way is offered to the
// routing table. The closest responding peers are returned.
func (s *State) NetLookup(ctx context.Context, target peer.NodeID) ([]peer.Peer, error) {
	s.evHandler("state: NetLookup: started: target[%s]", target)
	defer s.evHandler("state: NetLookup: completed: target[%s]", target)

	k := s.knownPeers.BucketSize()

	var mu sync.Mutex
	candidates := make(map[string]peer.Peer)
	queried := make(map[string]bool)
	responded := make(map[string]peer.Peer)

	offer := func(p peer.Peer) {
		if p.Host == "" || p.Host == s.host {
			return
		}

		if current, exists := candidates[p.Host]; exists && !current.ID.IsZero() && p.ID.IsZero() {
			return
		}
		candidates[p.Host] = p
	}

	// Start from everything we know: identified peers closest to the target
	// and pending hosts that have not told us their id yet.
	for _, p := range s.knownPeers.Copy(s.host) {
		offer(p)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mu.Lock()
		shortlist := sortedCandidates(target, candidates, k)
		var round []peer.Peer
		for _, p := range shortlist {
			if len(round) == lookupAlpha {
				break
			}
			if !queried[p.Host] {
				queried[p.Host] = true
				round = append(round, p)
			}
		}
		mu.Unlock()

		if len(round) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(lookupAlpha)

		for _, p := range round {
			g.Go(func() error {
				cp, err := s.NetFindNode(gctx, p, target)
				if err != nil {
					s.evHandler("state: NetLookup: peer[%s]: WARNING: %s", p.Host, err)

					mu.Lock()
					delete(candidates, p.Host)
					mu.Unlock()
					return nil
				}

				self := cp.Self
				if self.Host == "" {
					self.Host = p.Host
				}
				s.AddKnownPeer(self)

				mu.Lock()
				defer mu.Unlock()

				// A peer that advertises another host is tracked under
				// that host only and is not dialled a second time.
				if self.Host != p.Host {
					delete(candidates, p.Host)
					queried[self.Host] = true
				}

				offer(self)
				responded[self.Host] = self

				for _, found := range cp.Peers {
					if found.Host == s.host {
						continue
					}
					offer(found)
				}

				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	mu.Lock()
	defer mu.Unlock()

	var out []peer.Peer
	for _, p := range sortedCandidates(target, candidates, len(candidates)) {
		if _, ok := responded[p.Host]; ok {
			out = append(out, responded[p.Host])
		}
		if len(out) == k {
			break
		}
	}

	return out, nil
}

// sortedCandidates returns up to n candidates ordered by distance to the
// target. Peers without an id are ordered last by host.
func sortedCandidates(target peer.NodeID, candidates map[string]peer.Peer, n int) []peer.Peer {
	var identified []peer.Peer
	var pending []peer.Peer

	for _, p := range candidates {
		if p.ID.IsZero() {
			pending = append(pending, p)
			continue
		}
		identified = append(identified, p)
	}

	peer.SortByDistance(target, identified)
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Host < pending[j].Host
	})

	out := append(identified, pending...)
	if len(out) > n {
		out = out[:n]
	}

	return out
}

// =============================================================================

// sharePeers returns the peers a new block or transaction is forwarded to.
// A zero fan-out selects every known peer.
func (s *State) sharePeers() []peer.Peer {
	var out []peer.Peer
	for _, p := range s.knownPeers.Random(s.gossipFanout) {
		if p.Host != s.host {
			out = append(out, p)
		}
	}

	return out
}

// retrieveGossiper returns the overlay network when one is attached.
func (s *State) retrieveGossiper() Gossiper {
	s.gossipMu.RLock()
	defer s.gossipMu.RUnlock()

	return s.gossiper
}

// send is a helper function to send an HTTP request to a node.
func (s *State) send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if dataSend != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
