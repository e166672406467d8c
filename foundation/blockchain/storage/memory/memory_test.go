package memory_test

import (
	"fmt"
	"testing"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/storage/memory"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	m, err := memory.New()
	require.NoError(t, err)

	for i := uint64(1); i <= 2; i++ {
		bd := database.BlockData{Hash: fmt.Sprintf("0x%x", i), Header: database.BlockHeader{Number: i}}
		require.NoError(t, m.Write(bd))
	}
	require.Error(t, m.Write(database.BlockData{Header: database.BlockHeader{Number: 4}}))

	got, err := m.GetBlock(1)
	require.NoError(t, err)
	require.Equal(t, "0x1", got.Hash)

	got, err = m.GetBlockByHash("0x2")
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.Header.Number)

	_, err = m.GetBlock(0)
	require.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, m.Reset())
	_, err = m.GetBlockByHash("0x1")
	require.ErrorIs(t, err, database.ErrNotFound)
}
