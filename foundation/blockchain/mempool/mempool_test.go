package mempool_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/mempool"
	"github.com/kadchain/blockchain/foundation/blockchain/mempool/selector"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const pavelKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

func sign(t *testing.T, nonce uint64, to database.AccountID, tip uint64) database.BlockTx {
	pk, err := crypto.HexToECDSA(pavelKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load key: %v", failed, err)
	}

	tx := database.Tx{ChainID: 1, Nonce: nonce, FromID: database.PublicKeyToAccountID(pk.PublicKey), ToID: to, Tip: tip}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign transaction: %v", failed, err)
	}

	return database.NewBlockTx(signedTx, 0, 0)
}

func Test_CRUD(t *testing.T) {
	type table struct {
		name string
		txs  []database.BlockTx
	}

	tt := []table{
		{
			name: "basic",
			txs: []database.BlockTx{
				sign(t, 2, "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", 10),
				sign(t, 3, "0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0", 50),
				sign(t, 4, "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", 100),
				sign(t, 1, "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", 10),
			},
		},
	}

	t.Log("Given the need to validate mempool api.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				for _, strategy := range selector.Strategies() {
					mp, err := mempool.NewWithStrategy(strategy)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to construct mempool: %v", failed, testID, err)
					}

					for _, tx := range tst.txs {
						if _, err := mp.Upsert(tx); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to add new transaction: %v", failed, testID, err)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould be able to add new transactions with %s.", success, testID, strategy)

					if mp.Count() != len(tst.txs) {
						t.Fatalf("\t%s\tTest %d:\tShould have %d transactions, got %d.", failed, testID, len(tst.txs), mp.Count())
					}

					best := mp.PickBest(2)
					if len(best) != 2 || best[0].Nonce != 1 || best[1].Nonce != 2 {
						t.Fatalf("\t%s\tTest %d:\tShould pick the lowest nonces first, got %v.", failed, testID, best)
					}
					t.Logf("\t%s\tTest %d:\tShould pick the lowest nonces first.", success, testID)

					if all := mp.PickBest(); len(all) != len(tst.txs) {
						t.Fatalf("\t%s\tTest %d:\tShould pick every transaction, got %d.", failed, testID, len(all))
					}

					mp.Delete(tst.txs[1])
					if mp.Count() != len(tst.txs)-1 || mp.Contains(tst.txs[1]) {
						t.Fatalf("\t%s\tTest %d:\tShould be able to remove a transaction.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to remove a transaction.", success, testID)

					mp.Truncate()
					if mp.Count() != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould be able to truncate mempool.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to truncate mempool.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Replace(t *testing.T) {
	const to = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"

	type table struct {
		name    string
		tip     uint64
		replace bool
	}

	tt := []table{
		{name: "lower", tip: 50},
		{name: "same", tip: 100},
		{name: "small-bump", tip: 109},
		{name: "ten-percent", tip: 110, replace: true},
	}

	t.Log("Given the need to replace pending transactions.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				mp, err := mempool.New()
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to construct mempool: %v", failed, testID, err)
				}

				orig := sign(t, 1, to, 100)
				mp.Upsert(orig)

				// Resubmitting the same transaction is accepted.
				if _, err := mp.Upsert(orig); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould accept a duplicate: %v", failed, testID, err)
				}

				repl := sign(t, 1, "0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0", tst.tip)
				_, err = mp.Upsert(repl)

				switch tst.replace {
				case true:
					if err != nil || !mp.Contains(repl) {
						t.Fatalf("\t%s\tTest %d:\tShould replace with tip %d: %v", failed, testID, tst.tip, err)
					}
				default:
					if !errors.Is(err, mempool.ErrUnderpriced) || !mp.Contains(orig) {
						t.Fatalf("\t%s\tTest %d:\tShould keep the original with tip %d: %v", failed, testID, tst.tip, err)
					}
				}
				t.Logf("\t%s\tTest %d:\tShould handle a replacement with tip %d.", success, testID, tst.tip)

				if mp.Count() != 1 {
					t.Fatalf("\t%s\tTest %d:\tShould hold one transaction, got %d.", failed, testID, mp.Count())
				}
			}

			t.Run(tst.name, f)
		}
	}
}
