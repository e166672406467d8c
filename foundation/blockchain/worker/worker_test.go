package worker_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
	"github.com/kadchain/blockchain/foundation/blockchain/state"
	"github.com/kadchain/blockchain/foundation/blockchain/storage/memory"
	"github.com/kadchain/blockchain/foundation/blockchain/worker"
	"github.com/stretchr/testify/require"
)

const (
	pavelKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	minerKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"

	pavel database.AccountID = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	bill  database.AccountID = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

func Test_MineOnSignal(t *testing.T) {
	minerPK, err := crypto.HexToECDSA(minerKey)
	require.NoError(t, err)

	strg, err := memory.New()
	require.NoError(t, err)

	gen := genesis.Genesis{
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    1,
		MiningReward:  100,
		GasPrice:      1,
		Consensus:     genesis.ConsensusPOW,
		Balances:      map[string]uint64{string(pavel): 1000},
	}

	self := peer.NewWithID("localhost:9080", peer.NodeIDFromPublicKey(minerPK.PublicKey))

	st, err := state.New(state.Config{
		BeneficiaryKey: minerPK,
		Host:           self.Host,
		Storage:        strg,
		Genesis:        gen,
		SelectStrategy: "tip",
		KnownPeers:     peer.NewTable(self, 0),
		EvHandler:      func(v string, args ...any) {},
	})
	require.NoError(t, err)

	worker.Run(st, func(v string, args ...any) {})
	defer st.Shutdown()

	pavelPK, err := crypto.HexToECDSA(pavelKey)
	require.NoError(t, err)

	for nonce := uint64(1); nonce <= 2; nonce++ {
		tx, err := database.NewTx(1, nonce, pavel, bill, 10, 0, nil)
		require.NoError(t, err)

		signedTx, err := tx.Sign(pavelPK)
		require.NoError(t, err)

		require.NoError(t, st.UpsertWalletTransaction(signedTx))
	}

	require.Eventually(t, func() bool {
		return st.QueryMempoolLength() == 0 && st.RetrieveLatestBlock().Header.Number >= 1
	}, 30*time.Second, 10*time.Millisecond)

	account, err := st.QueryAccount(bill)
	require.NoError(t, err)
	require.Equal(t, uint64(20), account.Balance)
}

func Test_SignalCancelMining(t *testing.T) {
	minerPK, err := crypto.HexToECDSA(minerKey)
	require.NoError(t, err)

	strg, err := memory.New()
	require.NoError(t, err)

	self := peer.NewWithID("localhost:9080", peer.NodeIDFromPublicKey(minerPK.PublicKey))

	st, err := state.New(state.Config{
		BeneficiaryKey: minerPK,
		Host:           self.Host,
		Storage:        strg,
		Genesis:        genesis.Genesis{ChainID: 1, TransPerBlock: 1, Consensus: genesis.ConsensusPOW},
		SelectStrategy: "tip",
		KnownPeers:     peer.NewTable(self, 0),
	})
	require.NoError(t, err)

	worker.Run(st, func(v string, args ...any) {})

	// Signals must never block when nothing is mining.
	for range 3 {
		done := st.RetrieveWorker().SignalCancelMining()
		done()
	}

	require.NoError(t, st.Shutdown())
}
