package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

type accountInfo struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
	Stake   uint64 `json:"stake"`
}

type accounts struct {
	LatestBlock string        `json:"latest_block"`
	Uncommitted int           `json:"uncommitted"`
	Accounts    []accountInfo `json:"accounts"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance, nonce and stake",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)
	fmt.Println("For Account:", accountID)

	act, err := queryAccount(accountID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("balance:", act.Balance)
	fmt.Println("nonce:  ", act.Nonce)
	fmt.Println("stake:  ", act.Stake)
}

// queryAccount asks the node for the current state of the account. An account
// the node has never seen is reported as empty.
func queryAccount(accountID database.AccountID) (accountInfo, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/list/%s", nodeURL, accountID))
	if err != nil {
		return accountInfo{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return accountInfo{Account: string(accountID)}, nil
	default:
		return accountInfo{}, fmt.Errorf("node responded with status %d", resp.StatusCode)
	}

	var acts accounts
	if err := json.NewDecoder(resp.Body).Decode(&acts); err != nil {
		return accountInfo{}, err
	}

	if len(acts.Accounts) == 0 {
		return accountInfo{Account: string(accountID)}, nil
	}

	return acts.Accounts[0], nil
}
