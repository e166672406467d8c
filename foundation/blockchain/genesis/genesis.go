// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Set of consensus algorithms a chain can run.
const (
	ConsensusPOW = "POW"
	ConsensusPOS = "POS"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date" toml:"date"`
	ChainID       uint16            `json:"chain_id" toml:"chain_id"`               // The chain id represents an unique id for this running instance.
	TransPerBlock uint16            `json:"trans_per_block" toml:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16            `json:"difficulty" toml:"difficulty"`           // How difficult it needs to be to solve the work problem.
	MiningReward  uint64            `json:"mining_reward" toml:"mining_reward"`     // Reward for mining a block.
	GasPrice      uint64            `json:"gas_price" toml:"gas_price"`             // Fee paid for each transaction mined into a block.
	Consensus     string            `json:"consensus" toml:"consensus"`             // POW or POS.
	CycleSeconds  uint64            `json:"cycle_seconds" toml:"cycle_seconds"`     // Time between POS proposals.
	Balances      map[string]uint64 `json:"balances" toml:"balances"`
	Stakes        map[string]uint64 `json:"stakes" toml:"stakes"`
}

// =============================================================================

// Load opens and consumes the genesis file. Files ending in .toml are
// decoded as TOML, everything else as JSON.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(content, &genesis); err != nil {
			return Genesis{}, fmt.Errorf("decoding toml genesis: %w", err)
		}

	default:
		if err := json.Unmarshal(content, &genesis); err != nil {
			return Genesis{}, fmt.Errorf("decoding json genesis: %w", err)
		}
	}

	if genesis.Consensus == "" {
		genesis.Consensus = ConsensusPOW
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis values are usable for running a chain.
func (g Genesis) Validate() error {
	switch g.Consensus {
	case ConsensusPOW, ConsensusPOS:
	default:
		return fmt.Errorf("unknown consensus %q", g.Consensus)
	}

	if g.TransPerBlock == 0 {
		return errors.New("trans_per_block must be greater than zero")
	}

	// A hash is 64 hex digits.
	if g.Difficulty > 64 {
		return fmt.Errorf("difficulty %d is larger than the hash", g.Difficulty)
	}

	if g.Consensus == ConsensusPOS {
		var total uint64
		for _, stake := range g.Stakes {
			total += stake
		}
		if total == 0 {
			return errors.New("proof of stake requires at least one stake")
		}
	}

	return nil
}

// Cycle returns the time between proposals for a proof of stake chain.
func (g Genesis) Cycle() time.Duration {
	if g.CycleSeconds == 0 {
		return 12 * time.Second
	}
	return time.Duration(g.CycleSeconds) * time.Second
}
