package cmd

import (
	"fmt"
	"log"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the account and node id of the wallet key",
	Run:   accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("account:", database.PublicKeyToAccountID(privateKey.PublicKey))
	fmt.Println("node id:", peer.NodeIDFromPublicKey(privateKey.PublicKey))
}
