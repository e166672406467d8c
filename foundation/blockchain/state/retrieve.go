package state

import (
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveNodeID returns the id of this node in the routing table.
func (s *State) RetrieveNodeID() peer.NodeID {
	return s.knownPeers.Self().ID
}

// RetrieveSelf returns this node as a peer.
func (s *State) RetrieveSelf() peer.Peer {
	return s.knownPeers.Self()
}

// RetrieveBeneficiaryID returns the account receiving mining rewards.
func (s *State) RetrieveBeneficiaryID() database.AccountID {
	return s.beneficiaryID
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// RetrieveMempool returns a copy of the mempool.
func (s *State) RetrieveMempool() []database.BlockTx {
	return s.mempool.PickBest()
}

// RetrieveAccounts returns a copy of the database accounts.
func (s *State) RetrieveAccounts() map[database.AccountID]database.Account {
	return s.db.CopyAccounts()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveStatus returns the status this node reports to its peers.
func (s *State) RetrieveStatus() peer.PeerStatus {
	latest := s.db.LatestBlock()

	return peer.PeerStatus{
		ID:                s.knownPeers.Self().ID,
		LatestBlockHash:   latest.Hash(),
		LatestBlockNumber: latest.Header.Number,
		KnownPeers:        s.RetrieveKnownPeers(),
	}
}
