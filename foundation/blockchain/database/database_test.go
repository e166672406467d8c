package database_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
	"github.com/kadchain/blockchain/foundation/blockchain/storage/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Keys and accounts used by the tests.
const (
	pavelKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	minerKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"

	pavel database.AccountID = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	bill  database.AccountID = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

func noop(v string, args ...any) {}

// =============================================================================

func Test_Transactions(t *testing.T) {
	type table struct {
		name        string
		beneficiary database.AccountID
		minerReward uint64
		gasPrice    uint64
		balances    map[string]uint64
		final       map[database.AccountID]uint64
		txs         []database.Tx
	}

	miner := minerAccount(t)

	tt := []table{
		{
			name:        "basic",
			minerReward: 100,
			gasPrice:    8,
			balances: map[string]uint64{
				string(pavel): 1000,
			},
			final: map[database.AccountID]uint64{
				pavel: 684,
				bill:  200,
				miner: 216,
			},
			txs: []database.Tx{
				{ChainID: 1, Nonce: 1, FromID: pavel, ToID: bill, Value: 100, Tip: 50},
				{ChainID: 1, Nonce: 2, FromID: pavel, ToID: bill, Value: 100, Tip: 50},
			},
		},
		{
			name:        "insufficient",
			minerReward: 0,
			gasPrice:    10,
			balances: map[string]uint64{
				string(pavel): 50,
			},
			final: map[database.AccountID]uint64{
				pavel: 40,
				miner: 10,
			},
			txs: []database.Tx{
				{ChainID: 1, Nonce: 1, FromID: pavel, ToID: bill, Value: 100},
			},
		},
		{
			name:        "self-mined",
			beneficiary: pavel,
			minerReward: 0,
			gasPrice:    5,
			balances: map[string]uint64{
				string(pavel): 1000,
			},
			final: map[database.AccountID]uint64{
				pavel: 900,
				bill:  100,
			},
			txs: []database.Tx{
				{ChainID: 1, Nonce: 1, FromID: pavel, ToID: bill, Value: 100},
				{ChainID: 1, Nonce: 2, FromID: pavel, ToID: bill, Value: 5000},
			},
		},
	}

	t.Log("Given the need to validate the transactions.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				gen := genesis.Genesis{ChainID: 1, Consensus: genesis.ConsensusPOW, TransPerBlock: 10, MiningReward: tst.minerReward, GasPrice: tst.gasPrice, Balances: tst.balances}

				db := newDatabase(t, gen)
				t.Logf("\t%s\tTest %d:\tShould be able to open database.", success, testID)

				beneficiary := tst.beneficiary
				if beneficiary == "" {
					beneficiary = miner
				}
				block := database.Block{Header: database.BlockHeader{Number: 1, BeneficiaryID: beneficiary, MiningReward: tst.minerReward}}

				for _, tx := range tst.txs {
					blockTx := sign(t, pavelKey, tx, tst.gasPrice, database.UnitsOfGas)

					// Failures are expected for some tables, the balances tell the story.
					db.ApplyTransaction(block, blockTx)
				}
				db.ApplyMiningReward(block)

				accounts := db.CopyAccounts()
				for account, exp := range tst.final {
					info, exists := accounts[account]
					if !exists {
						t.Fatalf("\t%s\tTest %d:\tShould have account %s in balances.", failed, testID, account)
					}

					if exp != info.Balance {
						t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, info.Balance)
						t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, exp)
						t.Fatalf("\t%s\tTest %d:\tShould have correct balances for %s.", failed, testID, account)
					}
					t.Logf("\t%s\tTest %d:\tShould have correct balances for %s.", success, testID, account)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_NonceValidation(t *testing.T) {
	gen := genesis.Genesis{ChainID: 1, Consensus: genesis.ConsensusPOW, TransPerBlock: 10, Balances: map[string]uint64{string(pavel): 1000}}
	miner := minerAccount(t)

	type table struct {
		nonce uint64
		valid bool
	}

	tt := []table{
		{nonce: 5, valid: true},
		{nonce: 3, valid: false},
		{nonce: 5, valid: false},
		{nonce: 6, valid: true},
	}

	t.Log("Given the need to validate new transactions use a proper nonce.")
	{
		db := newDatabase(t, gen)
		block := database.Block{Header: database.BlockHeader{Number: 1, BeneficiaryID: miner}}

		for testID, tst := range tt {
			blockTx := sign(t, pavelKey, database.Tx{ChainID: 1, Nonce: tst.nonce, FromID: pavel, ToID: bill, Value: 1}, 0, database.UnitsOfGas)

			err := db.ValidateNonce(blockTx.SignedTx)
			if tst.valid != (err == nil) {
				t.Fatalf("\t%s\tTest %d:\tShould validate nonce %d correctly: %v", failed, testID, tst.nonce, err)
			}
			t.Logf("\t%s\tTest %d:\tShould validate nonce %d correctly.", success, testID, tst.nonce)

			err = db.ApplyTransaction(block, blockTx)
			if tst.valid != (err == nil) {
				t.Fatalf("\t%s\tTest %d:\tShould apply nonce %d correctly: %v", failed, testID, tst.nonce, err)
			}
			t.Logf("\t%s\tTest %d:\tShould apply nonce %d correctly.", success, testID, tst.nonce)
		}
	}
}

func Test_ChainID(t *testing.T) {
	gen := genesis.Genesis{ChainID: 1, Consensus: genesis.ConsensusPOW, TransPerBlock: 10, GasPrice: 1, Balances: map[string]uint64{string(pavel): 1000}}
	db := newDatabase(t, gen)

	blockTx := sign(t, pavelKey, database.Tx{ChainID: 2, Nonce: 1, FromID: pavel, ToID: bill, Value: 1}, 1, 1)
	block := database.Block{Header: database.BlockHeader{Number: 1, BeneficiaryID: minerAccount(t)}}

	if err := db.ApplyTransaction(block, blockTx); err == nil {
		t.Fatalf("\t%s\tShould reject a transaction for another chain.", failed)
	}

	account, _ := db.Query(pavel)
	if account.Balance != 1000 {
		t.Fatalf("\t%s\tShould not charge gas for a transaction from another chain, bal %d.", failed, account.Balance)
	}
	t.Logf("\t%s\tShould reject a transaction for another chain.", success)
}

func Test_Gas(t *testing.T) {
	gen := genesis.Genesis{ChainID: 1, Consensus: genesis.ConsensusPOW, TransPerBlock: 10, GasPrice: 2, Balances: map[string]uint64{string(pavel): 1000}}
	block := database.Block{Header: database.BlockHeader{Number: 1, BeneficiaryID: minerAccount(t)}}

	tx := database.Tx{ChainID: 1, Nonce: 1, FromID: pavel, ToID: bill, Value: 10}

	tt := []struct {
		name     string
		gasPrice uint64
		gasUnits uint64
	}{
		{name: "raised-price", gasPrice: 1_000_000, gasUnits: 1},
		{name: "raised-units", gasPrice: 2, gasUnits: 1_000},
		{name: "no-gas", gasPrice: 0, gasUnits: 0},
		{name: "overflow", gasPrice: math.MaxUint64, gasUnits: 2},
	}

	t.Log("Given the need to charge only the chain gas price.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				db := newDatabase(t, gen)

				// The gas fields travel outside the signature.
				blockTx := sign(t, pavelKey, tx, tst.gasPrice, tst.gasUnits)
				if err := db.ApplyTransaction(block, blockTx); err == nil {
					t.Fatalf("\t%s\tTest %d:\tShould reject gas price %d units %d.", failed, testID, tst.gasPrice, tst.gasUnits)
				}
				t.Logf("\t%s\tTest %d:\tShould reject gas price %d units %d.", success, testID, tst.gasPrice, tst.gasUnits)

				account, _ := db.Query(pavel)
				if account.Balance != 1000 {
					t.Fatalf("\t%s\tTest %d:\tShould not charge the sender, bal %d.", failed, testID, account.Balance)
				}
				t.Logf("\t%s\tTest %d:\tShould not charge the sender.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}

	overflow := database.BlockTx{GasPrice: math.MaxUint64, GasUnits: 2}
	if _, err := overflow.GasFee(); err == nil {
		t.Fatalf("\t%s\tShould detect a gas fee overflow.", failed)
	}
	t.Logf("\t%s\tShould detect a gas fee overflow.", success)
}

func Test_Stake(t *testing.T) {
	gen := genesis.Genesis{ChainID: 1, Consensus: genesis.ConsensusPOW, TransPerBlock: 10, Balances: map[string]uint64{string(pavel): 1000}}
	miner := minerAccount(t)

	t.Log("Given the need to deposit a stake.")
	{
		db := newDatabase(t, gen)
		block := database.Block{Header: database.BlockHeader{Number: 1, BeneficiaryID: miner, TimeStamp: 5000}}

		blockTx := sign(t, pavelKey, database.Tx{ChainID: 1, Nonce: 1, FromID: pavel, ToID: database.StakeAccountID, Value: 300, Tip: 10}, 0, database.UnitsOfGas)
		if err := db.ApplyTransaction(block, blockTx); err != nil {
			t.Fatalf("\t%s\tShould be able to stake: %v", failed, err)
		}

		account, err := db.Query(pavel)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to query the account: %v", failed, err)
		}
		if account.Balance != 690 || account.Stake != 300 || account.StakedAt != 5000 {
			t.Fatalf("\t%s\tShould move the value into the stake, got %+v", failed, account)
		}
		t.Logf("\t%s\tShould move the value into the stake.", success)

		if _, err := db.Query(database.StakeAccountID); err == nil {
			t.Fatalf("\t%s\tShould not credit the stake address.", failed)
		}
		t.Logf("\t%s\tShould not credit the stake address.", success)

		blockTx = sign(t, pavelKey, database.Tx{ChainID: 1, Nonce: 2, FromID: pavel, ToID: database.StakeAccountID, Value: 0, Tip: 1}, 0, database.UnitsOfGas)
		if err := db.ApplyTransaction(block, blockTx); err == nil {
			t.Fatalf("\t%s\tShould reject an empty stake deposit.", failed)
		}
		t.Logf("\t%s\tShould reject an empty stake deposit.", success)
	}
}

func Test_SelectValidator(t *testing.T) {
	a := database.AccountID("0x0000000000000000000000000000000000000001")
	b := database.AccountID("0x0000000000000000000000000000000000000002")

	t.Log("Given the need to select a proof of stake validator.")
	{
		if _, err := database.SelectValidator(map[database.AccountID]database.Account{}, "seed", 0); !errors.Is(err, database.ErrNoStake) {
			t.Fatalf("\t%s\tShould get ErrNoStake with no stakers, got %v", failed, err)
		}
		t.Logf("\t%s\tShould get ErrNoStake with no stakers.", success)

		accounts := map[database.AccountID]database.Account{
			a: {AccountID: a, Stake: 1000},
			b: {AccountID: b, Stake: 3000},
		}

		first, _ := database.SelectValidator(accounts, "0xabc", 100)
		second, _ := database.SelectValidator(accounts, "0xabc", 100)
		if first != second {
			t.Fatalf("\t%s\tShould select the same validator for the same seed.", failed)
		}
		t.Logf("\t%s\tShould select the same validator for the same seed.", success)

		counts := make(map[database.AccountID]int)
		for i := range 2000 {
			v, err := database.SelectValidator(accounts, time.Duration(i).String(), 100)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to select: %v", failed, err)
			}
			counts[v]++
		}
		if counts[b] <= counts[a] || counts[a] == 0 {
			t.Fatalf("\t%s\tShould favor the larger stake, got %v", failed, counts)
		}
		t.Logf("\t%s\tShould favor the larger stake: %v", success, counts)
	}
}

func Test_WeightedStake(t *testing.T) {
	account := database.Account{Stake: 100, StakedAt: 1000}

	tt := []struct {
		at  uint64
		exp float64
	}{
		{at: 500, exp: 100},
		{at: 1000, exp: 100},
		{at: 1000 + 86400, exp: 200},
		{at: 1000 + 43200, exp: 150},
	}

	for testID, tst := range tt {
		if got := database.WeightedStake(account, tst.at); got != tst.exp {
			t.Fatalf("\t%s\tTest %d:\tShould get weight %v, got %v", failed, testID, tst.exp, got)
		}
		t.Logf("\t%s\tTest %d:\tShould get weight %v.", success, testID, tst.exp)
	}
}

func Test_POW(t *testing.T) {
	gen := genesis.Genesis{ChainID: 1, Consensus: genesis.ConsensusPOW, TransPerBlock: 10, Difficulty: 1, MiningReward: 10, GasPrice: 1, Balances: map[string]uint64{string(pavel): 1000}}
	db := newDatabase(t, gen)
	miner := minerAccount(t)

	tx := sign(t, pavelKey, database.Tx{ChainID: 1, Nonce: 1, FromID: pavel, ToID: bill, Value: 10}, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := database.POWArgs{
		BeneficiaryID: miner,
		Difficulty:    gen.Difficulty,
		MiningReward:  gen.MiningReward,
		PrevBlock:     db.LatestBlock(),
		StateRoot:     db.HashState(),
		Trans:         []database.BlockTx{tx},
		EvHandler:     noop,
	}

	block, err := database.POW(ctx, args)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
	}
	t.Logf("\t%s\tShould be able to mine a block.", success)

	rules, _ := db.Rules(db.LatestBlock(), block.Header.TimeStamp)
	if err := block.ValidateBlock(db.LatestBlock(), db.HashState(), rules, noop); err != nil {
		t.Fatalf("\t%s\tShould validate the mined block: %v", failed, err)
	}
	t.Logf("\t%s\tShould validate the mined block.", success)

	bad := block
	bad.Header.StateRoot = "0x00"
	if err := bad.ValidateBlock(db.LatestBlock(), db.HashState(), rules, noop); err == nil {
		t.Fatalf("\t%s\tShould reject a block with the wrong state root.", failed)
	}
	t.Logf("\t%s\tShould reject a block with the wrong state root.", success)

	ahead := block
	ahead.Header.Number = 3
	if err := ahead.ValidateBlock(db.LatestBlock(), db.HashState(), rules, noop); !errors.Is(err, database.ErrChainForked) {
		t.Fatalf("\t%s\tShould detect a fork, got %v", failed, err)
	}
	t.Logf("\t%s\tShould detect a fork.", success)

	unsolved := block
	for strings.HasPrefix(unsolved.Hash(), "0x0") {
		unsolved.Header.Nonce++
	}
	if err := unsolved.ValidateBlock(db.LatestBlock(), db.HashState(), rules, noop); err == nil {
		t.Fatalf("\t%s\tShould reject a block with an unsolved hash.", failed)
	}
	t.Logf("\t%s\tShould reject a block with an unsolved hash.", success)

	// A block at difficulty zero needs no work at all.
	easyArgs := args
	easyArgs.Difficulty = 0
	easy, err := database.POW(ctx, easyArgs)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine at difficulty zero: %v", failed, err)
	}
	if err := easy.ValidateBlock(db.LatestBlock(), db.HashState(), rules, noop); err == nil {
		t.Fatalf("\t%s\tShould reject a block below the chain difficulty.", failed)
	}
	t.Logf("\t%s\tShould reject a block below the chain difficulty.", success)

	relayed := sign(t, pavelKey, database.Tx{ChainID: 1, Nonce: 1, FromID: pavel, ToID: bill, Value: 10}, 1_000_000, 1)
	gasArgs := args
	gasArgs.Trans = []database.BlockTx{relayed}
	overcharged, err := database.POW(ctx, gasArgs)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine the overcharged block: %v", failed, err)
	}
	if err := overcharged.ValidateBlock(db.LatestBlock(), db.HashState(), rules, noop); err == nil {
		t.Fatalf("\t%s\tShould reject a block charging more than the chain gas price.", failed)
	}
	t.Logf("\t%s\tShould reject a block charging more than the chain gas price.", success)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	args.Difficulty = 64
	if _, err := database.POW(cancelled, args); err == nil {
		t.Fatalf("\t%s\tShould stop mining when cancelled.", failed)
	}
	t.Logf("\t%s\tShould stop mining when cancelled.", success)
}

func Test_POS(t *testing.T) {
	minerPK, err := crypto.HexToECDSA(minerKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load key: %v", failed, err)
	}
	miner := database.PublicKeyToAccountID(minerPK.PublicKey)

	gen := genesis.Genesis{
		Date:          time.Unix(1000, 0),
		ChainID:       2,
		Consensus:     genesis.ConsensusPOS,
		TransPerBlock: 10,
		MiningReward:  10,
		GasPrice:      1,
		Balances:      map[string]uint64{string(pavel): 1000},
		Stakes:        map[string]uint64{string(miner): 500},
	}

	t.Log("Given the need to propose and replay proof of stake blocks.")
	{
		strg, err := memory.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create storage: %v", failed, err)
		}

		db, err := database.New(gen, strg, noop)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
		}

		timeStamp := database.NextTimeStamp(db.LatestBlock(), time.Now())

		validator, err := db.SelectValidator(db.LatestBlock(), timeStamp)
		if err != nil || validator != miner {
			t.Fatalf("\t%s\tShould select the only staker, got %s: %v", failed, validator, err)
		}
		t.Logf("\t%s\tShould select the only staker.", success)

		tx := sign(t, pavelKey, database.Tx{ChainID: 2, Nonce: 1, FromID: pavel, ToID: bill, Value: 10}, 1, 1)

		block, err := database.POS(database.POSArgs{
			BeneficiaryKey: minerPK,
			MiningReward:   gen.MiningReward,
			PrevBlock:      db.LatestBlock(),
			TimeStamp:      timeStamp,
			StateRoot:      db.HashState(),
			Trans:          []database.BlockTx{tx},
			EvHandler:      noop,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to propose a block: %v", failed, err)
		}

		rules, err := db.Rules(db.LatestBlock(), block.Header.TimeStamp)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to get rules: %v", failed, err)
		}
		if err := block.ValidateBlock(db.LatestBlock(), db.HashState(), rules, noop); err != nil {
			t.Fatalf("\t%s\tShould validate the proposed block: %v", failed, err)
		}
		t.Logf("\t%s\tShould validate the proposed block.", success)

		other := rules
		other.Validator = pavel
		if err := block.ValidateBlock(db.LatestBlock(), db.HashState(), other, noop); err == nil {
			t.Fatalf("\t%s\tShould reject a block from a validator that was not selected.", failed)
		}
		t.Logf("\t%s\tShould reject a block from a validator that was not selected.", success)

		tampered := block
		tampered.Header.MiningReward = 1_000_000
		if err := tampered.ValidateBlock(db.LatestBlock(), db.HashState(), rules, noop); err == nil {
			t.Fatalf("\t%s\tShould reject a tampered header.", failed)
		}
		t.Logf("\t%s\tShould reject a tampered header.", success)

		if err := db.Write(block); err != nil {
			t.Fatalf("\t%s\tShould be able to write the block: %v", failed, err)
		}

		// Reopening the database replays and validates the stored chain.
		replayed, err := database.New(gen, strg, noop)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to replay the chain: %v", failed, err)
		}

		if replayed.LatestBlock().Hash() != block.Hash() {
			t.Fatalf("\t%s\tShould get the written block as latest.", failed)
		}

		account, _ := replayed.Query(bill)
		if account.Balance != 10 {
			t.Fatalf("\t%s\tShould replay the transfer, got %d", failed, account.Balance)
		}
		t.Logf("\t%s\tShould replay the chain.", success)

		byHash, err := replayed.GetBlockByHash(block.Hash())
		if err != nil || byHash.Header.Number != 1 {
			t.Fatalf("\t%s\tShould find the block by hash: %v", failed, err)
		}

		byNum, err := replayed.GetBlock(1)
		if err != nil || byNum.Hash() != block.Hash() {
			t.Fatalf("\t%s\tShould find the block by number: %v", failed, err)
		}
		t.Logf("\t%s\tShould find the block by hash and number.", success)
	}
}

func Test_POSRound(t *testing.T) {
	keys := map[database.AccountID]string{
		minerAccount(t): minerKey,
		pavel:           pavelKey,
	}

	gen := genesis.Genesis{
		Date:          time.Now().Add(-time.Hour),
		ChainID:       2,
		Consensus:     genesis.ConsensusPOS,
		TransPerBlock: 10,
		GasPrice:      1,
		Balances:      map[string]uint64{string(pavel): 1000},
		Stakes:        map[string]uint64{string(minerAccount(t)): 500, string(pavel): 500},
	}

	start := uint64(gen.Date.Unix())
	cycle := uint64(gen.Cycle() / time.Second)
	roundTime := func(round uint64) uint64 {
		return start + round*cycle + 1
	}

	t.Log("Given the need to move on when the selected validator never proposes.")
	{
		db := newDatabase(t, gen)
		parent := db.LatestBlock()

		absent, err := db.SelectValidator(parent, roundTime(0))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to select a validator: %v", failed, err)
		}

		var round uint64
		var next database.AccountID
		for r := uint64(1); r < 300; r++ {
			v, err := db.SelectValidator(parent, roundTime(r))
			if err != nil {
				t.Fatalf("\t%s\tShould be able to select a validator: %v", failed, err)
			}
			if v != absent {
				round, next = r, v
				break
			}
		}
		if next == "" {
			t.Fatalf("\t%s\tShould draw another validator in a later round.", failed)
		}
		t.Logf("\t%s\tShould draw another validator in round %d.", success, round)

		pk, err := crypto.HexToECDSA(keys[next])
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load key: %v", failed, err)
		}

		propose := func(timeStamp uint64) database.Block {
			tx := sign(t, pavelKey, database.Tx{ChainID: 2, Nonce: 1, FromID: pavel, ToID: bill, Value: 10}, 1, 1)

			block, err := database.POS(database.POSArgs{
				BeneficiaryKey: pk,
				PrevBlock:      parent,
				TimeStamp:      timeStamp,
				StateRoot:      db.HashState(),
				Trans:          []database.BlockTx{tx},
				EvHandler:      noop,
			})
			if err != nil {
				t.Fatalf("\t%s\tShould be able to propose a block: %v", failed, err)
			}
			return block
		}

		block := propose(roundTime(round))
		rules, err := db.Rules(parent, block.Header.TimeStamp)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to get rules: %v", failed, err)
		}
		if err := block.ValidateBlock(parent, db.HashState(), rules, noop); err != nil {
			t.Fatalf("\t%s\tShould accept the validator drawn for the block's round: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the validator drawn for the block's round.", success)

		early := propose(roundTime(0))
		rules, err = db.Rules(parent, early.Header.TimeStamp)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to get rules: %v", failed, err)
		}
		if err := early.ValidateBlock(parent, db.HashState(), rules, noop); err == nil {
			t.Fatalf("\t%s\tShould reject a validator outside its round.", failed)
		}
		t.Logf("\t%s\tShould reject a validator outside its round.", success)

		future := uint64(time.Now().Add(time.Hour).Unix())
		if _, err := db.Rules(parent, future); err == nil {
			t.Fatalf("\t%s\tShould reject a timestamp in a round that hasn't started.", failed)
		}
		t.Logf("\t%s\tShould reject a timestamp in a round that hasn't started.", success)
	}
}

// =============================================================================

func newDatabase(t *testing.T, gen genesis.Genesis) *database.Database {
	strg, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create storage: %v", failed, err)
	}

	db, err := database.New(gen, strg, noop)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}

	return db
}

func minerAccount(t *testing.T) database.AccountID {
	pk, err := crypto.HexToECDSA(minerKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load key: %v", failed, err)
	}
	return database.PublicKeyToAccountID(pk.PublicKey)
}

func sign(t *testing.T, hexKey string, tx database.Tx, gasPrice uint64, gasUnits uint64) database.BlockTx {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load key: %v", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign transaction: %v", failed, err)
	}

	return database.NewBlockTx(signedTx, gasPrice, gasUnits)
}
