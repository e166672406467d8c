// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/kadchain/blockchain/business/sys/validate"
	v1 "github.com/kadchain/blockchain/business/web/v1"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
	"github.com/kadchain/blockchain/foundation/blockchain/state"
	"github.com/kadchain/blockchain/foundation/events"
	"github.com/kadchain/blockchain/foundation/nameservice"
	"github.com/kadchain/blockchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Block waiting for events from the blockchain or ticker.
	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds new transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a signed transaction.
	var st submitTx
	if err := web.Decode(r, &st); err != nil {
		if validate.IsFieldErrors(err) {
			return err
		}
		return v1.NewRequestError(err, http.StatusBadRequest)
	}
	signedTx := st.toSignedTx()

	h.Log.Infow("add tran", "traceid", v.TraceID, "sig:nonce", signedTx, "from", signedTx.FromID, "to", signedTx.ToID, "value", signedTx.Value, "tip", signedTx.Tip)

	// Ask the state package to add this transaction to the mempool. Only the
	// checks are the transaction signature and the recipient account format.
	// It's up to the wallet to make sure the account has a proper balance and
	// nonce. Fees will be taken if this transaction is mined into a block.
	if err := h.State.UpsertWalletTransaction(signedTx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transactions added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SignalMining signals to start a mining operation.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	worker := h.State.RetrieveWorker()
	if worker == nil {
		return v1.NewRequestError(errors.New("worker not running"), http.StatusServiceUnavailable)
	}
	worker.SignalStartMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signalled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Accounts returns the current balances for all users.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountStr := web.Param(r, "account")

	var accounts map[database.AccountID]database.Account
	switch accountStr {
	case "":
		accounts = h.State.RetrieveAccounts()

	default:
		accountID, err := database.ToAccountID(accountStr)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		account, err := h.State.QueryAccount(accountID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return v1.NewRequestError(err, http.StatusNotFound)
			}
			return err
		}
		accounts = map[database.AccountID]database.Account{accountID: account}
	}

	resp := make([]info, 0, len(accounts))
	for accountID, account := range accounts {
		acc := info{
			Account: accountID,
			Name:    h.NS.Lookup(accountID),
			Balance: account.Balance,
			Nonce:   account.Nonce,
			Stake:   account.Stake,
		}
		resp = append(resp, acc)
	}

	ai := actInfo{
		LatestBlock: h.State.RetrieveLatestBlock().Hash(),
		Uncommitted: h.State.QueryMempoolLength(),
		Accounts:    resp,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// Stakes returns the accounts holding a stake and their current weight.
func (h Handlers) Stakes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	at := h.State.RetrieveLatestBlock().Header.TimeStamp

	stakes := h.State.QueryStakes()
	resp := make([]stakeInfo, len(stakes))
	for i, account := range stakes {
		resp[i] = stakeInfo{
			Account:  account.AccountID,
			Name:     h.NS.Lookup(account.AccountID),
			Stake:    account.Stake,
			StakedAt: account.StakedAt,
			Weight:   database.WeightedStake(account, at),
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// NextValidator returns the account selected to propose the next block.
func (h Handlers) NextValidator(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if h.State.Consensus() != genesis.ConsensusPOS {
		return v1.NewRequestError(errors.New("chain does not run proof of stake"), http.StatusBadRequest)
	}

	accountID, err := h.State.SelectedValidator()
	if err != nil {
		if errors.Is(err, database.ErrNoStake) {
			return v1.NewRequestError(err, http.StatusConflict)
		}
		return err
	}

	resp := validatorInfo{
		Account:     accountID,
		Name:        h.NS.Lookup(accountID),
		BlockNumber: h.State.RetrieveLatestBlock().Header.Number + 1,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var accountID database.AccountID
	if accountStr := web.Param(r, "account"); accountStr != "" {
		var err error
		accountID, err = database.ToAccountID(accountStr)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
	}

	mempool := h.State.QueryMempool(accountID)

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// BlocksByAccount returns all the blocks and their details.
func (h Handlers) BlocksByAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	dbBlocks, err := h.State.QueryBlocksByAccount(accountID)
	if err != nil {
		return err
	}

	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for j, blk := range dbBlocks {
		blocks[j] = h.toBlock(blk, accountID)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// BlockByHash returns the block with the specified hash along with the
// merkle proof of every transaction.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blk, err := h.State.QueryBlockByHash(web.Param(r, "hash"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, h.toBlock(blk, ""), http.StatusOK)
}

// =============================================================================

func (h Handlers) toTx(tran database.BlockTx) tx {
	return tx{
		FromAccount: tran.FromID,
		FromName:    h.NS.Lookup(tran.FromID),
		To:          tran.ToID,
		ToName:      h.NS.Lookup(tran.ToID),
		ChainID:     tran.ChainID,
		Nonce:       tran.Nonce,
		Value:       tran.Value,
		Tip:         tran.Tip,
		Data:        tran.Data,
		TimeStamp:   tran.TimeStamp,
		GasPrice:    tran.GasPrice,
		GasUnits:    tran.GasUnits,
		Sig:         tran.SignatureString(),
	}
}

// toBlock converts the block for the response. When an account is provided
// only the transactions of that account are listed, each with its merkle
// proof.
func (h Handlers) toBlock(blk database.Block, accountID database.AccountID) block {
	values := blk.MerkleTree.Values()

	trans := make([]tx, 0, len(values))
	for _, tran := range values {
		if accountID != "" && tran.FromID != accountID && tran.ToID != accountID {
			continue
		}

		t := h.toTx(tran)

		proof, order, err := blk.MerkleTree.Proof(tran)
		if err == nil {
			t.Proof = make([]string, len(proof))
			for i, p := range proof {
				t.Proof[i] = hexutil.Encode(p)
			}
			t.ProofOrder = order
		}

		trans = append(trans, t)
	}

	return block{
		Number:        blk.Header.Number,
		PrevBlockHash: blk.Header.PrevBlockHash,
		TimeStamp:     blk.Header.TimeStamp,
		BeneficiaryID: blk.Header.BeneficiaryID,
		Difficulty:    blk.Header.Difficulty,
		MiningReward:  blk.Header.MiningReward,
		StateRoot:     blk.Header.StateRoot,
		TransRoot:     blk.Header.TransRoot,
		Nonce:         blk.Header.Nonce,
		Sig:           blk.Sig,
		Hash:          blk.Hash(),
		Transactions:  trans,
	}
}
