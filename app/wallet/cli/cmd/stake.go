package cmd

import (
	"log"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Move value from your balance into your stake",
	Run:   stakeRun,
}

func init() {
	rootCmd.AddCommand(stakeCmd)
	addTxFlags(stakeCmd)
}

func stakeRun(cmd *cobra.Command, args []string) {
	if value == 0 {
		log.Fatal("a stake needs a value")
	}

	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	if err := submit(privateKey, database.StakeAccountID); err != nil {
		log.Fatal(err)
	}
}
