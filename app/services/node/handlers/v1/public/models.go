package public

import (
	"math/big"

	"github.com/kadchain/blockchain/business/sys/validate"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
)

type info struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name"`
	Balance uint64             `json:"balance"`
	Nonce   uint64             `json:"nonce"`
	Stake   uint64             `json:"stake,omitempty"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

type stakeInfo struct {
	Account  database.AccountID `json:"account"`
	Name     string             `json:"name"`
	Stake    uint64             `json:"stake"`
	StakedAt uint64             `json:"staked_at"`
	Weight   float64            `json:"weight"`
}

type validatorInfo struct {
	Account     database.AccountID `json:"account"`
	Name        string             `json:"name"`
	BlockNumber uint64             `json:"block_number"`
}

type tx struct {
	FromAccount database.AccountID `json:"from"`
	FromName    string             `json:"from_name"`
	To          database.AccountID `json:"to"`
	ToName      string             `json:"to_name"`
	ChainID     uint16             `json:"chain_id"`
	Nonce       uint64             `json:"nonce"`
	Value       uint64             `json:"value"`
	Tip         uint64             `json:"tip"`
	Data        []byte             `json:"data"`
	TimeStamp   uint64             `json:"timestamp"`
	GasPrice    uint64             `json:"gas_price"`
	GasUnits    uint64             `json:"gas_units"`
	Sig         string             `json:"sig"`
	Proof       []string           `json:"proof,omitempty"`
	ProofOrder  []int64            `json:"proof_order,omitempty"`
}

type block struct {
	Number        uint64             `json:"number"`
	PrevBlockHash string             `json:"prev_block_hash"`
	TimeStamp     uint64             `json:"timestamp"`
	BeneficiaryID database.AccountID `json:"beneficiary"`
	Difficulty    uint16             `json:"difficulty"`
	MiningReward  uint64             `json:"mining_reward"`
	StateRoot     string             `json:"state_root"`
	TransRoot     string             `json:"trans_root"`
	Nonce         uint64             `json:"nonce"`
	Sig           string             `json:"sig,omitempty"`
	Hash          string             `json:"hash"`
	Transactions  []tx               `json:"txs"`
}

// submitTx is the payload of a wallet submitting a signed transaction.
type submitTx struct {
	ChainID uint16   `json:"chain_id" validate:"required"`
	Nonce   uint64   `json:"nonce" validate:"required"`
	FromID  string   `json:"from" validate:"required,account"`
	ToID    string   `json:"to" validate:"required,account,nefield=FromID"`
	Value   uint64   `json:"value"`
	Tip     uint64   `json:"tip"`
	Data    []byte   `json:"data"`
	V       *big.Int `json:"v" validate:"required"`
	R       *big.Int `json:"r" validate:"required"`
	S       *big.Int `json:"s" validate:"required"`
}

// Validate checks the data in the model is considered clean.
func (st submitTx) Validate() error {
	return validate.Check(st)
}

func (st submitTx) toSignedTx() database.SignedTx {
	return database.SignedTx{
		Tx: database.Tx{
			ChainID: st.ChainID,
			Nonce:   st.Nonce,
			FromID:  database.AccountID(st.FromID),
			ToID:    database.AccountID(st.ToID),
			Value:   st.Value,
			Tip:     st.Tip,
			Data:    st.Data,
		},
		V: st.V,
		R: st.R,
		S: st.S,
	}
}
