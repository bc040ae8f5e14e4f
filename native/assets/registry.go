package assets

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"nhbmarket/core/events"
	"nhbmarket/storage"
)

const MaxRoyaltyBps = 1_000

var (
	errNilStore = errors.New("assets registry: store not configured")
	errNoVault  = errors.New("assets registry: vault not configured")

	ErrCollectionNotFound  = errors.New("assets: collection not found")
	ErrCollectionExists    = errors.New("assets: collection already registered")
	ErrUnitExists          = errors.New("assets: unit already minted")
	ErrNotOwner            = errors.New("assets: caller does not own the unit")
	ErrNotApproved         = errors.New("assets: operator not approved")
	ErrInsufficientBalance = errors.New("assets: insufficient unit balance")
	ErrStandardMismatch    = errors.New("assets: reference standard does not match collection")
	ErrInvalidQuantity     = errors.New("assets: invalid quantity")
)

var (
	collectionPrefix = "assets/collection/"
	ownerPrefix      = "assets/owner/"
	balancePrefix    = "assets/balance/"
	approvalPrefix   = "assets/approval/"
)

// Registry is the custody layer for tokenized units. It tracks single-owner
// and fractional balances per collection, operator approvals and royalty
// terms, and moves units in and out of the configured vault.
type Registry struct {
	store   *storage.Journal
	emitter events.Emitter
	vault   [20]byte
}

// NewRegistry binds a registry to the journal.
func NewRegistry(store *storage.Journal) *Registry {
	return &Registry{store: store, emitter: events.NoopEmitter{}}
}

// SetVault configures the account that holds escrowed units.
func (r *Registry) SetVault(addr [20]byte) { r.vault = addr }

// Vault returns the configured escrow account.
func (r *Registry) Vault() [20]byte { return r.vault }

// SetEmitter configures the event emitter used by the registry. Passing nil
// resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func hexKey(parts ...[]byte) string {
	encoded := make([]string, len(parts))
	for i, part := range parts {
		encoded[i] = hex.EncodeToString(part)
	}
	return strings.Join(encoded, "/")
}

func unitBytes(id *big.Int) []byte {
	if id == nil {
		return []byte{0}
	}
	return id.Bytes()
}

func collectionKey(addr [20]byte) []byte {
	return []byte(collectionPrefix + hexKey(addr[:]))
}

func ownerKey(coll [20]byte, unit *big.Int) []byte {
	return []byte(ownerPrefix + hexKey(coll[:], unitBytes(unit)))
}

func balanceKey(coll [20]byte, unit *big.Int, holder [20]byte) []byte {
	return []byte(balancePrefix + hexKey(coll[:], unitBytes(unit), holder[:]))
}

func approvalKey(coll [20]byte, owner, operator [20]byte) []byte {
	return []byte(approvalPrefix + hexKey(coll[:], owner[:], operator[:]))
}

// RegisterCollection stores a new custody collection.
func (r *Registry) RegisterCollection(c *Collection) error {
	if r == nil || r.store == nil {
		return errNilStore
	}
	if c == nil || c.Address == ([20]byte{}) {
		return fmt.Errorf("assets: collection address required")
	}
	if !c.Standard.Valid() {
		return fmt.Errorf("assets: invalid standard %d", c.Standard)
	}
	if c.RoyaltyBps > MaxRoyaltyBps {
		return fmt.Errorf("assets: royalty bps %d exceeds %d", c.RoyaltyBps, MaxRoyaltyBps)
	}
	if _, ok, err := r.Collection(c.Address); err != nil {
		return err
	} else if ok {
		return ErrCollectionExists
	}
	return r.store.PutRLP(collectionKey(c.Address), c.Clone())
}

// Collection loads a registered collection.
func (r *Registry) Collection(addr [20]byte) (*Collection, bool, error) {
	if r == nil || r.store == nil {
		return nil, false, errNilStore
	}
	var c Collection
	ok, err := r.store.GetRLP(collectionKey(addr), &c)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &c, true, nil
}

func (r *Registry) mustCollection(ref AssetRef) (*Collection, error) {
	c, ok, err := r.Collection(ref.Collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCollectionNotFound
	}
	if ref.Standard != StandardNone && ref.Standard != c.Standard {
		return nil, ErrStandardMismatch
	}
	return c, nil
}

// Mint creates quantity units of unit id for to. Single-unit collections
// reject a second mint of the same id.
func (r *Registry) Mint(coll [20]byte, unit *big.Int, to [20]byte, quantity uint64) error {
	c, err := r.mustCollection(AssetRef{Collection: coll})
	if err != nil {
		return err
	}
	switch c.Standard {
	case StandardSingle:
		if quantity != 1 {
			return ErrInvalidQuantity
		}
		var owner [20]byte
		ok, err := r.store.GetRLP(ownerKey(coll, unit), &owner)
		if err != nil {
			return err
		}
		if ok && owner != ([20]byte{}) {
			return ErrUnitExists
		}
		return r.store.PutRLP(ownerKey(coll, unit), to)
	default:
		if quantity == 0 {
			return ErrInvalidQuantity
		}
		balance, err := r.balance(coll, unit, to)
		if err != nil {
			return err
		}
		return r.store.PutRLP(balanceKey(coll, unit, to), balance+quantity)
	}
}

// SetApprovalForAll lets operator move any unit of the collection owned by
// owner.
func (r *Registry) SetApprovalForAll(coll [20]byte, owner, operator [20]byte, approved bool) error {
	if _, err := r.mustCollection(AssetRef{Collection: coll}); err != nil {
		return err
	}
	return r.store.PutRLP(approvalKey(coll, owner, operator), approved)
}

func (r *Registry) balance(coll [20]byte, unit *big.Int, holder [20]byte) (uint64, error) {
	var balance uint64
	if _, err := r.store.GetRLP(balanceKey(coll, unit, holder), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// OwnerOf returns the owner of a single-unit reference.
func (r *Registry) OwnerOf(ref AssetRef) ([20]byte, error) {
	var owner [20]byte
	c, err := r.mustCollection(ref)
	if err != nil {
		return owner, err
	}
	if c.Standard != StandardSingle {
		return owner, ErrStandardMismatch
	}
	if _, err := r.store.GetRLP(ownerKey(ref.Collection, ref.UnitID), &owner); err != nil {
		return owner, err
	}
	return owner, nil
}

// BalanceOf returns how many units holder controls. For single-unit
// collections the result is 1 for the owner and 0 otherwise.
func (r *Registry) BalanceOf(ref AssetRef, holder [20]byte) (uint64, error) {
	c, err := r.mustCollection(ref)
	if err != nil {
		return 0, err
	}
	if c.Standard == StandardSingle {
		owner, err := r.OwnerOf(ref)
		if err != nil {
			return 0, err
		}
		if owner == holder && owner != ([20]byte{}) {
			return 1, nil
		}
		return 0, nil
	}
	return r.balance(ref.Collection, ref.UnitID, holder)
}

// IsApproved reports whether operator may move owner's units.
func (r *Registry) IsApproved(ref AssetRef, owner, operator [20]byte) bool {
	if owner == operator {
		return true
	}
	var approved bool
	ok, err := r.store.GetRLP(approvalKey(ref.Collection, owner, operator), &approved)
	return err == nil && ok && approved
}

// Transfer moves ref.Quantity units from one holder to another on behalf of
// operator.
func (r *Registry) Transfer(ref AssetRef, from, to, operator [20]byte) error {
	c, err := r.mustCollection(ref)
	if err != nil {
		return err
	}
	if !r.IsApproved(ref, from, operator) {
		return ErrNotApproved
	}
	switch c.Standard {
	case StandardSingle:
		if ref.Quantity != 1 {
			return ErrInvalidQuantity
		}
		owner, err := r.OwnerOf(ref)
		if err != nil {
			return err
		}
		if owner != from {
			return ErrNotOwner
		}
		if err := r.store.PutRLP(ownerKey(ref.Collection, ref.UnitID), to); err != nil {
			return err
		}
	default:
		if ref.Quantity == 0 {
			return ErrInvalidQuantity
		}
		fromBal, err := r.balance(ref.Collection, ref.UnitID, from)
		if err != nil {
			return err
		}
		if fromBal < ref.Quantity {
			return ErrInsufficientBalance
		}
		toBal, err := r.balance(ref.Collection, ref.UnitID, to)
		if err != nil {
			return err
		}
		if err := r.store.PutRLP(balanceKey(ref.Collection, ref.UnitID, from), fromBal-ref.Quantity); err != nil {
			return err
		}
		if err := r.store.PutRLP(balanceKey(ref.Collection, ref.UnitID, to), toBal+ref.Quantity); err != nil {
			return err
		}
	}
	r.emitter.Emit(TransferEvent{Ref: ref.Clone(), From: from, To: to})
	return nil
}

// Escrow pulls the referenced units from owner into the vault. The vault must
// have been approved as an operator by the owner.
func (r *Registry) Escrow(ref AssetRef, from [20]byte) error {
	if r.vault == ([20]byte{}) {
		return errNoVault
	}
	return r.Transfer(ref, from, r.vault, r.vault)
}

// Release returns the referenced units from the vault to the recipient.
func (r *Registry) Release(ref AssetRef, to [20]byte) error {
	if r.vault == ([20]byte{}) {
		return errNoVault
	}
	return r.Transfer(ref, r.vault, to, r.vault)
}

// RoyaltyInfo returns the royalty receiver and amount owed on a sale of ref
// at salePrice.
func (r *Registry) RoyaltyInfo(ref AssetRef, salePrice *big.Int) ([20]byte, *big.Int, error) {
	var receiver [20]byte
	c, err := r.mustCollection(ref)
	if err != nil {
		return receiver, nil, err
	}
	if salePrice == nil || salePrice.Sign() <= 0 || c.RoyaltyBps == 0 || c.RoyaltyReceiver == ([20]byte{}) {
		return receiver, big.NewInt(0), nil
	}
	amount := new(big.Int).Mul(salePrice, new(big.Int).SetUint64(uint64(c.RoyaltyBps)))
	amount.Div(amount, big.NewInt(10_000))
	return c.RoyaltyReceiver, amount, nil
}
