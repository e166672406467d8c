package disk_test

import (
	"fmt"
	"testing"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/storage/disk"
	"github.com/stretchr/testify/require"
)

func blockData(num uint64) database.BlockData {
	return database.BlockData{
		Hash:   fmt.Sprintf("0x%064x", num),
		Header: database.BlockHeader{Number: num},
	}
}

func TestDisk(t *testing.T) {
	d, err := disk.New(t.TempDir())
	require.NoError(t, err)

	require.Error(t, d.Write(blockData(2)), "writing without a parent should fail")

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, d.Write(blockData(i)))
	}
	require.Error(t, d.Write(blockData(3)), "rewriting a block should fail")

	got, err := d.GetBlock(3)
	require.NoError(t, err)
	require.Equal(t, blockData(3).Hash, got.Hash)

	got, err = d.GetBlockByHash(blockData(2).Hash)
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.Header.Number)

	_, err = d.GetBlockByHash("0xdead")
	require.ErrorIs(t, err, database.ErrNotFound)

	var count int
	iter := d.ForEach()
	for _, err := iter.Next(); !iter.Done(); _, err = iter.Next() {
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 3, count)

	require.NoError(t, d.Reset())
	_, err = d.GetBlock(1)
	require.ErrorIs(t, err, database.ErrNotFound)
}
