// This program provides a wallet for signing and submitting transactions to
// a kadchain node.
package main

import "github.com/kadchain/blockchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
