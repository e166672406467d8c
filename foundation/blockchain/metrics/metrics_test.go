package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kadchain/blockchain/foundation/blockchain/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := metrics.New("kadchain")

	m.ObserveBlock(1, 3, 250*time.Millisecond)
	m.ObserveBlock(2, 1, 0)
	m.SetMempool(7)
	m.SetPeers(4)
	m.GossipMessage("block", metrics.DirectionOut)
	m.GossipMessage("block", metrics.DirectionOut)
	m.GossipMessage("tx", metrics.DirectionIn)

	n, err := testutil.GatherAndCount(m.Registry(), "kadchain_blocks_total", "kadchain_gossip_messages_total")
	require.NoError(t, err)
	require.Equal(t, 3, n, "one blocks series and two gossip series")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, exp := range []string{
		"kadchain_blocks_total 2",
		"kadchain_mempool_transactions 7",
		"kadchain_known_peers 4",
		"kadchain_latest_block_number 2",
		`kadchain_gossip_messages_total{direction="out",kind="block"} 2`,
		"kadchain_block_production_seconds_count 1",
		"kadchain_block_transactions_count 2",
	} {
		require.True(t, strings.Contains(string(body), exp), "missing %q", exp)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics

	require.NotPanics(t, func() {
		m.ObserveBlock(1, 1, time.Second)
		m.SetMempool(1)
		m.SetPeers(1)
		m.GossipMessage("tx", metrics.DirectionIn)
	})
	require.Nil(t, m.Registry())
}
