package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: invalid amount")
)

// shareTokenSalt prefixes the share token address derivation so share
// balances can never collide with an underlying token address.
var shareTokenSalt = []byte("lending/share/")

// ShareTokenAddress derives the deterministic share token address for an
// underlying asset.
func ShareTokenAddress(asset common.Address) common.Address {
	hash := crypto.Keccak256(append(append([]byte(nil), shareTokenSalt...), asset.Bytes()...))
	return common.BytesToAddress(hash[12:])
}

// Store is the session-buffered key-value surface the ledger persists
// through. Writes land on the store's next Commit and vanish on Discard,
// together with the engine records written in the same operation.
type Store interface {
	GetRaw(key []byte) ([]byte, error)
	PutRaw(key, value []byte) error
}

// Keyspace for persisted balances, versioned alongside the engine records.
const balanceKeyPrefix = "lending/v1/bank/"

func balanceKey(token, holder common.Address) []byte {
	return []byte(balanceKeyPrefix + token.Hex() + "/" + holder.Hex())
}

// Ledger is the token ledger doubling as the lending custodian. It tracks
// underlying token balances per holder and mints pool share tokens
// one-to-one against supplied principal. The vault address holds the pooled
// underlying tokens. With a store attached, balances persist through the
// same versioned keyspace and commit batch as the engine's records; without
// one the ledger keeps balances in memory, which suits tests and tooling.
type Ledger struct {
	mu       sync.Mutex
	vault    common.Address
	store    Store
	balances map[common.Address]map[common.Address]*big.Int
}

// NewLedger constructs an in-memory ledger whose pooled funds sit under
// vault. Balances do not survive a restart.
func NewLedger(vault common.Address) *Ledger {
	return &Ledger{
		vault:    vault,
		balances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// NewStoredLedger constructs a ledger persisting balances through store.
// Ledger writes are buffered in the store's session and reach the database
// in the same batch as the engine state written around them.
func NewStoredLedger(vault common.Address, store Store) *Ledger {
	return &Ledger{vault: vault, store: store}
}

// Vault returns the address holding pooled underlying tokens.
func (l *Ledger) Vault() common.Address {
	return l.vault
}

func (l *Ledger) getBalance(token, holder common.Address) (*big.Int, error) {
	if l.store != nil {
		raw, err := l.store.GetRaw(balanceKey(token, holder))
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			return big.NewInt(0), nil
		}
		balance, ok := new(big.Int).SetString(string(raw), 10)
		if !ok {
			return nil, fmt.Errorf("bank: corrupt balance record %s/%s", token.Hex(), holder.Hex())
		}
		return balance, nil
	}
	holders := l.balances[token]
	if holders == nil || holders[holder] == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(holders[holder]), nil
}

func (l *Ledger) setBalance(token, holder common.Address, balance *big.Int) error {
	if l.store != nil {
		return l.store.PutRaw(balanceKey(token, holder), []byte(balance.String()))
	}
	holders := l.balances[token]
	if holders == nil {
		holders = make(map[common.Address]*big.Int)
		l.balances[token] = holders
	}
	holders[holder] = balance
	return nil
}

func (l *Ledger) move(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	source, err := l.getBalance(token, from)
	if err != nil {
		return err
	}
	if source.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	dest, err := l.getBalance(token, to)
	if err != nil {
		return err
	}
	if err := l.setBalance(token, from, source.Sub(source, amount)); err != nil {
		return err
	}
	return l.setBalance(token, to, dest.Add(dest, amount))
}

// Credit mints amount of token to holder. Used for genesis funding and test
// fixtures.
func (l *Ledger) Credit(token, holder common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.getBalance(token, holder)
	if err != nil {
		return err
	}
	return l.setBalance(token, holder, balance.Add(balance, amount))
}

// Balance reports holder's balance of token. A holder with no record, or a
// read failure, reports zero.
func (l *Ledger) Balance(token, holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.getBalance(token, holder)
	if err != nil {
		return big.NewInt(0)
	}
	return balance
}

// Transfer moves amount of asset out of the vault to a recipient. It is the
// engine's outbound leg for withdrawals, borrows and reserve payouts.
func (l *Ledger) Transfer(asset, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(asset, l.vault, to, amount)
}

// TransferFrom moves amount of asset from a holder into the vault. It is the
// engine's inbound leg for supplies and repayments.
func (l *Ledger) TransferFrom(asset, from common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(asset, from, l.vault, amount)
}

// ShareTokenFor returns the share token address minted against supplies of
// the asset.
func (l *Ledger) ShareTokenFor(asset common.Address) (common.Address, error) {
	return ShareTokenAddress(asset), nil
}

// BalanceOf reports the user's share token balance. Supply ownership lives
// here and only here.
func (l *Ledger) BalanceOf(user, shareToken common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getBalance(shareToken, user)
}

// MintShares issues share tokens one-to-one against supplied principal.
func (l *Ledger) MintShares(user, asset common.Address, amount *big.Int) error {
	return l.Credit(ShareTokenAddress(asset), user, amount)
}

// BurnShares retires share tokens after a withdrawal.
func (l *Ledger) BurnShares(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	share := ShareTokenAddress(asset)
	balance, err := l.getBalance(share, user)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return l.setBalance(share, user, balance.Sub(balance, amount))
}

// SeizeCollateral burns a borrower's share tokens during liquidation. The
// matching underlying tokens leave the vault through Transfer.
func (l *Ledger) SeizeCollateral(user, asset common.Address, amount *big.Int) error {
	return l.BurnShares(user, asset, amount)
}
