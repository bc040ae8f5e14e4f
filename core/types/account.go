package types

import "math/big"

// Account is the ledger record kept for every market identity.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}
