package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceCustodian is the external component of record for pool-share
// ownership. It is the only caller authorised to trigger supply, withdraw,
// borrow and repay on a user's behalf, which keeps internal bookkeeping
// aligned with external token custody.
type BalanceCustodian interface {
	// BalanceOf reports how much of a share token the user owns.
	BalanceOf(user, shareToken common.Address) (*big.Int, error)
	// ShareTokenFor resolves the share token minted against an asset.
	ShareTokenFor(asset common.Address) (common.Address, error)
	// MintShares issues share tokens against supplied principal. Called
	// under the engine's operation lock so ownership and pool accounting
	// move together.
	MintShares(user, asset common.Address, amount *big.Int) error
	// BurnShares retires share tokens on withdrawal, under the same lock.
	BurnShares(user, asset common.Address, amount *big.Int) error
	// SeizeCollateral removes collateral from a borrower during liquidation.
	// The engine never mutates supplied balances directly.
	SeizeCollateral(user, asset common.Address, amount *big.Int) error
}

// TokenTransfer moves the underlying asset in and out of the pool.
type TokenTransfer interface {
	// Transfer pays out from the pool to a recipient.
	Transfer(asset, to common.Address, amount *big.Int) error
	// TransferFrom pulls funds from a holder into the pool.
	TransferFrom(asset, from common.Address, amount *big.Int) error
}

// userSupply reads the user's supplied balance for an asset from the
// custodian's share-token ledger.
func (e *Engine) userSupply(user, asset common.Address) (*big.Int, error) {
	if e.custodian == nil {
		return big.NewInt(0), nil
	}
	shareToken, err := e.custodian.ShareTokenFor(asset)
	if err != nil {
		return nil, err
	}
	balance, err := e.custodian.BalanceOf(user, shareToken)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}
