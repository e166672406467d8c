package gossip

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func Test_Codec(t *testing.T) {
	tx := database.BlockTx{
		SignedTx: database.SignedTx{
			Tx: database.Tx{
				ChainID: 1,
				Nonce:   7,
				FromID:  "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4",
				ToID:    "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32",
				Value:   100,
				Data:    []byte("kadchain kadchain kadchain kadchain"),
			},
		},
		GasPrice: 15,
		GasUnits: 1,
	}

	data, err := encode(tx)
	require.NoError(t, err)

	var got database.BlockTx
	require.NoError(t, decode(data, &got))
	require.Equal(t, tx.Tx, got.Tx)
	require.Equal(t, tx.GasPrice, got.GasPrice)

	require.Error(t, decode([]byte("not lz4"), &got))

	// A small payload that inflates past the cap is rejected.
	bomb, err := encode(strings.Repeat("0", 64*1024))
	require.NoError(t, err)
	require.Less(t, len(bomb), 4*1024)

	var s string
	require.Error(t, decodeLimit(bomb, &s, 32*1024))
	require.NoError(t, decodeLimit(bomb, &s, 128*1024))
	require.Len(t, s, 64*1024)
}

func Test_Overlay(t *testing.T) {
	if testing.Short() {
		t.Skip("starts libp2p hosts")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	newKey := func() Config {
		pk, err := crypto.GenerateKey()
		require.NoError(t, err)
		return Config{PrivateKey: pk, ListenAddr: "/ip4/127.0.0.1/tcp/0"}
	}

	var mu sync.Mutex
	var hostsA []string
	var received []database.BlockData

	cfgA := newKey()
	cfgA.PrivateHost = "node-a:9080"
	cfgA.Metrics = metrics.New("a")
	a, err := New(ctx, cfgA, Handlers{
		Block: func(blockData database.BlockData) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, blockData)
			return nil
		},
		Peer: func(host string) {
			mu.Lock()
			defer mu.Unlock()
			hostsA = append(hostsA, host)
		},
	})
	require.NoError(t, err)
	defer a.Close()

	var hostsB []string

	cfgB := newKey()
	cfgB.PrivateHost = "node-b:9080"
	cfgB.Bootstrap = a.Addrs()
	b, err := New(ctx, cfgB, Handlers{
		Peer: func(host string) {
			mu.Lock()
			defer mu.Unlock()
			hostsB = append(hostsB, host)
		},
	})
	require.NoError(t, err)
	defer b.Close()

	require.Contains(t, b.Peers(), a.ID())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(hostsA) == 1 && len(hostsB) == 1
	}, 10*time.Second, 50*time.Millisecond)
	require.Equal(t, []string{"node-b:9080"}, hostsA)
	require.Equal(t, []string{"node-a:9080"}, hostsB)

	blockData := database.BlockData{
		Hash:   "0x01",
		Header: database.BlockHeader{Number: 1, Difficulty: 1},
	}

	// The mesh forms on the gossipsub heartbeat so publish until it lands.
	require.Eventually(t, func() bool {
		if err := b.PublishBlock(ctx, blockData); err != nil {
			return false
		}

		time.Sleep(100 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 30*time.Second, 200*time.Millisecond)

	mu.Lock()
	require.Equal(t, blockData.Hash, received[0].Hash)
	mu.Unlock()

	count, err := testutil.GatherAndCount(cfgA.Metrics.Registry(), "a_gossip_messages_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
