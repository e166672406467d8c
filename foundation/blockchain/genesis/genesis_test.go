package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Load(t *testing.T) {
	t.Log("Given the need to load the genesis files shipped with the node.")
	{
		g, err := genesis.Load("../../../zblock/genesis.json")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the json genesis: %v", failed, err)
		}
		if g.Consensus != genesis.ConsensusPOW || g.ChainID != 1 || g.TransPerBlock != 10 {
			t.Fatalf("\t%s\tShould get the json values, got %+v", failed, g)
		}
		if len(g.Balances) != 2 {
			t.Fatalf("\t%s\tShould get 2 balances, got %d", failed, len(g.Balances))
		}
		t.Logf("\t%s\tShould be able to load the json genesis.", success)

		g, err = genesis.Load("../../../zblock/genesis-pos.toml")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the toml genesis: %v", failed, err)
		}
		if g.Consensus != genesis.ConsensusPOS || g.ChainID != 2 || g.Date.IsZero() {
			t.Fatalf("\t%s\tShould get the toml values, got %+v", failed, g)
		}
		if g.Stakes["0x7Da28E3D3f0C58ad55d44f4f8997a27833c58160"] != 2000 {
			t.Fatalf("\t%s\tShould get the stake for miner2, got %v", failed, g.Stakes)
		}
		t.Logf("\t%s\tShould be able to load the toml genesis.", success)
	}
}

func Test_LoadDefaultsConsensus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(`{"chain_id":9,"trans_per_block":5,"difficulty":2}`), 0600); err != nil {
		t.Fatalf("\t%s\tShould be able to write file: %v", failed, err)
	}

	g, err := genesis.Load(path)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load genesis: %v", failed, err)
	}

	if g.Consensus != genesis.ConsensusPOW {
		t.Fatalf("\t%s\tShould default to POW, got %q", failed, g.Consensus)
	}
	t.Logf("\t%s\tShould default to POW.", success)
}

func Test_Validate(t *testing.T) {
	type table struct {
		name    string
		genesis genesis.Genesis
		valid   bool
	}

	tt := []table{
		{name: "pow", genesis: genesis.Genesis{Consensus: genesis.ConsensusPOW, TransPerBlock: 1, Difficulty: 4}, valid: true},
		{name: "pos", genesis: genesis.Genesis{Consensus: genesis.ConsensusPOS, TransPerBlock: 1, Stakes: map[string]uint64{"0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8": 10}}, valid: true},
		{name: "unknown", genesis: genesis.Genesis{Consensus: "POA", TransPerBlock: 1}},
		{name: "notrans", genesis: genesis.Genesis{Consensus: genesis.ConsensusPOW}},
		{name: "difficulty", genesis: genesis.Genesis{Consensus: genesis.ConsensusPOW, TransPerBlock: 1, Difficulty: 65}},
		{name: "nostake", genesis: genesis.Genesis{Consensus: genesis.ConsensusPOS, TransPerBlock: 1}},
	}

	t.Log("Given the need to validate genesis values.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				err := tst.genesis.Validate()
				if tst.valid && err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be valid: %v", failed, testID, err)
				}
				if !tst.valid && err == nil {
					t.Fatalf("\t%s\tTest %d:\tShould be invalid.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected validation result.", success, testID)
			}
			t.Run(tst.name, f)
		}
	}
}
