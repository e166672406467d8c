package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var (
	chainID uint16
	nonce   uint64
	to      string
	value   uint64
	tip     uint64
	data    []byte
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and submit a transaction",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	addTxFlags(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the value.")
	sendCmd.MarkFlagRequired("to")
}

// addTxFlags registers the flags shared by commands that submit transactions.
func addTxFlags(cmd *cobra.Command) {
	cmd.Flags().Uint16VarP(&chainID, "chain", "c", 1, "Chain id from the genesis file.")
	cmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction, the next account nonce when zero.")
	cmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	cmd.Flags().Uint64Var(&tip, "tip", 0, "Tip to send.")
	cmd.Flags().BytesHexVarP(&data, "data", "d", nil, "Data to send.")
}

func sendRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	if err := submit(privateKey, database.AccountID(to)); err != nil {
		log.Fatal(err)
	}
}

// submit signs a transaction to the specified account and posts it to the
// node's public api.
func submit(privateKey *ecdsa.PrivateKey, toID database.AccountID) error {
	fromID := database.PublicKeyToAccountID(privateKey.PublicKey)

	if nonce == 0 {
		act, err := queryAccount(fromID)
		if err != nil {
			return fmt.Errorf("query nonce: %w", err)
		}
		nonce = act.Nonce + 1
	}

	tx, err := database.NewTx(chainID, nonce, fromID, toID, value, tip, data)
	if err != nil {
		return err
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		return err
	}

	body, err := json.Marshal(signedTx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", nodeURL), "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	msg, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rejected transaction: %s", msg)
	}

	fmt.Printf("nonce %d: %s\n", nonce, msg)
	return nil
}
