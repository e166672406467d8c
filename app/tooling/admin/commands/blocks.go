package commands

import (
	"fmt"
	"strconv"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
)

// Blocks lists the stored blocks starting with the specified number.
func Blocks(from string, db *database.Database) error {
	var start uint64
	if from != "" {
		var err error
		if start, err = strconv.ParseUint(from, 10, 64); err != nil {
			return fmt.Errorf("parsing block number: %w", err)
		}
	}

	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		if block.Header.Number < start {
			continue
		}

		fmt.Printf("Block: %d  Hash: %s  Beneficiary: %s  Txs: %d\n",
			block.Header.Number, block.Hash(), block.Header.BeneficiaryID, len(block.MerkleTree.Values()))
	}

	return nil
}
