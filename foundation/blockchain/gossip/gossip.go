// Package gossip runs a libp2p overlay that carries blocks and transactions
// over GossipSub and finds peers through a Kademlia DHT.
package gossip

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/metrics"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/routing"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"
)

// Set of topics and protocols spoken by the overlay.
const (
	BlockTopic   = "kadchain/blocks/1"
	TxTopic      = "kadchain/txs/1"
	HostProtocol = protocol.ID("/kadchain/host/1.0.0")
)

// discoveryInterval is how often the rendezvous is searched for new peers.
const discoveryInterval = time.Minute

// streamTimeout bounds the host exchange over a stream.
const streamTimeout = 10 * time.Second

// maxMessageSize is the largest compressed message the overlay relays.
const maxMessageSize = pubsub.DefaultMaxMessageSize * 10

// Config represents the settings of the overlay.
type Config struct {
	PrivateKey  *ecdsa.PrivateKey
	ListenAddr  string
	Rendezvous  string
	Bootstrap   []string
	PrivateHost string
	Metrics     *metrics.Metrics
	EvHandler   func(v string, args ...any)
}

// Handlers receive what other nodes send over the overlay. Peer is handed
// the private HTTP host of every node we exchange hosts with.
type Handlers struct {
	Block func(blockData database.BlockData) error
	Tx    func(tx database.BlockTx) error
	Peer  func(host string)
}

// hello is exchanged over the host protocol.
type hello struct {
	Host string `json:"host"`
}

// Node is a member of the overlay.
type Node struct {
	host     host.Host
	dht      *dht.IpfsDHT
	pubsub   *pubsub.PubSub
	topics   map[string]*pubsub.Topic
	cfg      Config
	handlers Handlers
	ev       func(v string, args ...any)
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New starts a libp2p host using the node key as identity, joins the block
// and transaction topics, connects to the bootstrap peers and starts
// advertising and discovering peers on the rendezvous.
func New(ctx context.Context, cfg Config, handlers Handlers) (*Node, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.PrivateKey == nil {
		return nil, errors.New("private key is required")
	}

	priv, err := crypto.UnmarshalSecp256k1PrivateKey(ethcrypto.FromECDSA(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("converting key: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	var kdht *dht.IpfsDHT
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.ListenAddr),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			var err error
			kdht, err = dht.New(ctx, h, dht.Mode(dht.ModeAutoServer))
			return kdht, err
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("starting host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithPeerOutboundQueueSize(128),
		pubsub.WithMaxMessageSize(maxMessageSize),
	)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("starting gossipsub: %w", err)
	}

	n := Node{
		host:     h,
		dht:      kdht,
		pubsub:   ps,
		topics:   make(map[string]*pubsub.Topic),
		cfg:      cfg,
		handlers: handlers,
		ev:       ev,
		cancel:   cancel,
	}

	h.SetStreamHandler(HostProtocol, n.handleHostStream)

	for _, name := range []string{BlockTopic, TxTopic} {
		topic, err := ps.Join(name)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("joining %s: %w", name, err)
		}
		n.topics[name] = topic

		sub, err := topic.Subscribe()
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("subscribing %s: %w", name, err)
		}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.read(ctx, sub)
		}()
	}

	n.bootstrap(ctx)

	if err := kdht.Bootstrap(ctx); err != nil {
		ev("gossip: New: dht bootstrap: WARNING: %s", err)
	}

	if cfg.Rendezvous != "" {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.discover(ctx)
		}()
	}

	ev("gossip: New: host[%s]: addrs%v", h.ID(), n.Addrs())

	return &n, nil
}

// Close leaves the overlay and shuts the host down.
func (n *Node) Close() error {
	n.cancel()
	n.wg.Wait()

	for _, topic := range n.topics {
		topic.Close()
	}

	var errs []error
	if n.dht != nil {
		errs = append(errs, n.dht.Close())
	}
	errs = append(errs, n.host.Close())

	return errors.Join(errs...)
}

// ID returns the libp2p id of this node.
func (n *Node) ID() peer.ID {
	return n.host.ID()
}

// Addrs returns the full multiaddrs other nodes can bootstrap from.
func (n *Node) Addrs() []string {
	info := peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}

	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}

	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = addr.String()
	}
	return out
}

// Peers returns the libp2p peers we are connected to.
func (n *Node) Peers() []peer.ID {
	return n.host.Network().Peers()
}

// PublishBlock broadcasts the block on the block topic.
func (n *Node) PublishBlock(ctx context.Context, blockData database.BlockData) error {
	return n.publish(ctx, BlockTopic, "block", blockData)
}

// PublishTx broadcasts the transaction on the transaction topic.
func (n *Node) PublishTx(ctx context.Context, tx database.BlockTx) error {
	return n.publish(ctx, TxTopic, "tx", tx)
}

// =============================================================================

func (n *Node) publish(ctx context.Context, name string, kind string, v any) error {
	topic, exists := n.topics[name]
	if !exists {
		return fmt.Errorf("topic %s not joined", name)
	}

	data, err := encode(v)
	if err != nil {
		return err
	}

	if err := topic.Publish(ctx, data); err != nil {
		return err
	}
	n.cfg.Metrics.GossipMessage(kind, metrics.DirectionOut)

	return nil
}

// read delivers the messages of the subscription to the handlers until the
// context is cancelled.
func (n *Node) read(ctx context.Context, sub *pubsub.Subscription) {
	defer sub.Cancel()

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				n.ev("gossip: read: %s: ERROR: %s", sub.Topic(), err)
			}
			return
		}

		// Our own messages are delivered to us as well.
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		if err := n.dispatch(sub.Topic(), msg.Data); err != nil {
			n.ev("gossip: read: %s: from[%s]: %s", sub.Topic(), msg.ReceivedFrom, err)
		}
	}
}

// dispatch decodes a message of the topic and hands it to its handler.
func (n *Node) dispatch(topic string, data []byte) error {
	switch topic {
	case BlockTopic:
		var blockData database.BlockData
		if err := decode(data, &blockData); err != nil {
			return err
		}
		n.cfg.Metrics.GossipMessage("block", metrics.DirectionIn)

		if n.handlers.Block != nil {
			return n.handlers.Block(blockData)
		}

	case TxTopic:
		var tx database.BlockTx
		if err := decode(data, &tx); err != nil {
			return err
		}
		n.cfg.Metrics.GossipMessage("tx", metrics.DirectionIn)

		if n.handlers.Tx != nil {
			return n.handlers.Tx(tx)
		}
	}

	return nil
}

// bootstrap connects to the configured peers and exchanges hosts with them.
func (n *Node) bootstrap(ctx context.Context) {
	for _, addr := range n.cfg.Bootstrap {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			n.ev("gossip: bootstrap: %s: ERROR: %s", addr, err)
			continue
		}

		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			n.ev("gossip: bootstrap: %s: ERROR: %s", addr, err)
			continue
		}

		if err := n.connect(ctx, *info); err != nil {
			n.ev("gossip: bootstrap: %s: ERROR: %s", addr, err)
			continue
		}

		n.ev("gossip: bootstrap: connected: %s", addr)
	}
}

// discover advertises this node on the rendezvous and connects to the
// peers advertising there.
func (n *Node) discover(ctx context.Context) {
	rd := drouting.NewRoutingDiscovery(n.dht)
	dutil.Advertise(ctx, rd, n.cfg.Rendezvous)

	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	for {
		n.findPeers(ctx, rd)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// findPeers connects to the peers currently advertising on the rendezvous.
func (n *Node) findPeers(ctx context.Context, rd *drouting.RoutingDiscovery) {
	peers, err := rd.FindPeers(ctx, n.cfg.Rendezvous)
	if err != nil {
		n.ev("gossip: discover: WARNING: %s", err)
		return
	}

	for info := range peers {
		if info.ID == n.host.ID() || len(info.Addrs) == 0 {
			continue
		}

		if n.host.Network().Connectedness(info.ID) == network.Connected {
			continue
		}

		if err := n.connect(ctx, info); err != nil {
			n.ev("gossip: discover: %s: WARNING: %s", info.ID, err)
		}
	}
}

// connect dials the peer and exchanges private hosts with it.
func (n *Node) connect(ctx context.Context, info peer.AddrInfo) error {
	n.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.AddressTTL)

	if err := n.host.Connect(ctx, info); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, streamTimeout)
	defer cancel()

	s, err := n.host.NewStream(ctx, info.ID, HostProtocol)
	if err != nil {
		return err
	}
	defer s.Close()

	s.SetDeadline(time.Now().Add(streamTimeout))

	if err := json.NewEncoder(s).Encode(hello{Host: n.cfg.PrivateHost}); err != nil {
		return err
	}

	var remote hello
	if err := json.NewDecoder(s).Decode(&remote); err != nil {
		return err
	}

	n.learnHost(remote.Host)

	return nil
}

// handleHostStream answers a host exchange started by another node.
func (n *Node) handleHostStream(s network.Stream) {
	defer s.Close()

	s.SetDeadline(time.Now().Add(streamTimeout))

	var remote hello
	if err := json.NewDecoder(s).Decode(&remote); err != nil {
		n.ev("gossip: handleHostStream: %s: ERROR: %s", s.Conn().RemotePeer(), err)
		s.Reset()
		return
	}

	if err := json.NewEncoder(s).Encode(hello{Host: n.cfg.PrivateHost}); err != nil {
		n.ev("gossip: handleHostStream: %s: ERROR: %s", s.Conn().RemotePeer(), err)
		return
	}

	n.learnHost(remote.Host)
}

// learnHost hands a private host learned from the overlay to the handler.
func (n *Node) learnHost(host string) {
	if host == "" || host == n.cfg.PrivateHost {
		return
	}

	n.ev("gossip: learned host[%s]", host)

	if n.handlers.Peer != nil {
		n.handlers.Peer(host)
	}
}
