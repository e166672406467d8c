package database

import (
	"crypto/sha256"
	"errors"
	"math/big"
	"sort"
)

// ErrNoStake is returned when a validator is requested but no account holds
// a stake.
var ErrNoStake = errors.New("no account holds a stake")

// secondsPerDay is the stake age at which an account's weight doubles.
const secondsPerDay = 86400

// WeightedStake returns the stake of the account weighted by how long it has
// been held at the specified unix time. Every day of age adds the full stake
// again to the weight.
func WeightedStake(account Account, at uint64) float64 {
	if account.Stake == 0 {
		return 0
	}

	return float64(account.Stake) * (1 + float64(stakeAge(account, at))/secondsPerDay)
}

// SelectValidator picks the account that has the right to propose the next
// block. The choice is a weighted random draw over WeightedStake where the
// randomness comes from the seed, so every node holding the same accounts and
// seed selects the same validator.
func SelectValidator(accounts map[AccountID]Account, seed string, at uint64) (AccountID, error) {
	stakers := make([]Account, 0, len(accounts))
	for _, account := range accounts {
		if account.Stake > 0 {
			stakers = append(stakers, account)
		}
	}

	if len(stakers) == 0 {
		return "", ErrNoStake
	}

	sort.Sort(byAccount(stakers))

	// Weights are kept as integers scaled by secondsPerDay so the draw
	// doesn't depend on floating point rounding between nodes.
	weights := make([]*big.Int, len(stakers))
	total := new(big.Int)
	for i, account := range stakers {
		w := new(big.Int).SetUint64(account.Stake)
		w.Mul(w, new(big.Int).SetUint64(secondsPerDay+stakeAge(account, at)))
		weights[i] = w
		total.Add(total, w)
	}

	sum := sha256.Sum256([]byte(seed))
	r := new(big.Int).SetBytes(sum[:])
	r.Mod(r, total)

	current := new(big.Int)
	for i, account := range stakers {
		current.Add(current, weights[i])
		if r.Cmp(current) < 0 {
			return account.AccountID, nil
		}
	}

	return stakers[len(stakers)-1].AccountID, nil
}

// stakeAge returns the number of seconds the stake has been held at the
// specified time.
func stakeAge(account Account, at uint64) uint64 {
	if at <= account.StakedAt {
		return 0
	}
	return at - account.StakedAt
}
