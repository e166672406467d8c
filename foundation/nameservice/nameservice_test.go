package nameservice_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/nameservice"
	"github.com/stretchr/testify/require"
)

func TestNameService(t *testing.T) {
	dir := t.TempDir()

	const key = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "miner1.ecdsa"), []byte(key), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))

	ns, err := nameservice.New(dir)
	require.NoError(t, err)

	miner := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
	require.Equal(t, "miner1", ns.Lookup(miner))
	require.Len(t, ns.Copy(), 1)

	unknown := database.AccountID("0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0")
	require.Equal(t, string(unknown), ns.Lookup(unknown))
}
