package auction

import (
	"math/big"
	"time"

	"nhbmarket/core/events"
	"nhbmarket/core/types"
	"nhbmarket/native/assets"
	"nhbmarket/native/common"
	"nhbmarket/native/fees"
)

// ModuleName is the pause-registry key of the auction module.
const ModuleName = "auction"

const bpsDenominator = fees.BasisPoints

type engineState interface {
	Snapshot() int
	RevertToSnapshot(id int)
	AuctionNextID() (uint64, error)
	AuctionGet(id uint64) (*Auction, bool, error)
	AuctionPut(a *Auction) error
	AuctionRefundGet(addr [20]byte) (*big.Int, error)
	AuctionRefundPut(addr [20]byte, amount *big.Int) error
	AuctionSellerIndex(addr [20]byte) ([]uint64, error)
	AuctionSellerIndexAppend(addr [20]byte, id uint64) error
	AuctionBidderIndex(addr [20]byte) ([]uint64, error)
	AuctionBidderIndexAppend(addr [20]byte, id uint64) error
}

// Custody holds tokenized units in the engine vault for the life of an
// auction.
type Custody interface {
	Collection(addr [20]byte) (*assets.Collection, bool, error)
	OwnerOf(ref assets.AssetRef) ([20]byte, error)
	BalanceOf(ref assets.AssetRef, holder [20]byte) (uint64, error)
	IsApproved(ref assets.AssetRef, owner, operator [20]byte) bool
	Escrow(ref assets.AssetRef, from [20]byte) error
	Release(ref assets.AssetRef, to [20]byte) error
}

// Payments computes and disburses the platform fee, royalty and seller net of
// a sale out of the engine vault.
type Payments interface {
	Quote(gross *big.Int, ref assets.AssetRef, seller [20]byte) (fees.Distribution, error)
	Settle(gross *big.Int, ref assets.AssetRef, seller [20]byte) (fees.Distribution, error)
}

// Bank moves currency. Transfers to an address whose receive step fails return
// an error and leave balances untouched.
type Bank interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// EscrowInitiator opens a holding record for an off-chain asset sale.
type EscrowInitiator interface {
	Open(auctionID uint64, buyer, seller [20]byte, ref assets.AssetRef, amount *big.Int) ([32]byte, error)
}

// PauseController reads and toggles module pause flags.
type PauseController interface {
	common.PauseView
	SetPaused(module string, paused bool) error
}

// Engine runs the auction lifecycle: creation, bidding with refund push or
// queue, settlement, cancellation and emergency recovery.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	nowFn    func() int64
	params   Params
	vault    [20]byte
	bank     Bank
	custody  Custody
	payments Payments
	escrow   EscrowInitiator
	pauses   PauseController
	auth     common.Authorizer
	guard    common.ReentrancyGuard
}

// NewEngine constructs an auction engine with default parameters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		params:  DefaultParams(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetParams replaces the policy constants after validating them.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = p
	return nil
}

// Params returns the active policy constants.
func (e *Engine) Params() Params { return e.params }

// SetVault configures the account that holds bid deposits and escrowed units.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// Vault returns the configured vault account.
func (e *Engine) Vault() [20]byte { return e.vault }

// SetBank configures the currency ledger.
func (e *Engine) SetBank(bank Bank) { e.bank = bank }

// SetCustody configures the custody adapter for tokenized assets.
func (e *Engine) SetCustody(custody Custody) { e.custody = custody }

// SetPayments configures the payment settlement adapter.
func (e *Engine) SetPayments(payments Payments) { e.payments = payments }

// SetEscrow configures the off-chain escrow initiator.
func (e *Engine) SetEscrow(escrow EscrowInitiator) { e.escrow = escrow }

// SetPauses configures the module pause registry.
func (e *Engine) SetPauses(pauses PauseController) { e.pauses = pauses }

// SetAuthorizer configures the role service consulted by admin operations.
func (e *Engine) SetAuthorizer(auth common.Authorizer) { e.auth = auth }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

// guarded runs fn under the re-entrancy guard inside a journal snapshot. Any
// error reverts every write fn made, including writes by adapters sharing the
// journal.
func (e *Engine) guarded(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	return nil
}

func (e *Engine) paused() bool {
	return common.Guard(e.pauses, ModuleName) != nil
}

func (e *Engine) load(id uint64) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	a, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// CreateAuction escrows the referenced asset and opens a new auction owned by
// seller. It returns the new auction identifier.
func (e *Engine) CreateAuction(seller [20]byte, req CreateRequest) (uint64, error) {
	var id uint64
	err := e.guarded(func() error {
		if e.paused() {
			return ErrPaused
		}
		if isZeroAddress(seller) {
			return ErrNotAuthorized
		}
		if e.bank == nil {
			return errNilBank
		}
		if isZeroAddress(e.vault) {
			return errVaultNotSet
		}
		if req.Duration < e.params.MinDuration || req.Duration > e.params.MaxDuration {
			return ErrInvalidDuration
		}
		reserve := newBigInt(req.ReservePrice)
		if reserve.Sign() < 0 {
			return ErrInvalidReserve
		}
		increment := req.BidIncrementBps
		if increment == 0 {
			increment = e.params.DefaultBidIncrementBps
		}
		if increment > e.params.MaxBidIncrementBps {
			return ErrInvalidIncrement
		}
		ref, err := e.normalizeAsset(seller, req.Asset)
		if err != nil {
			return err
		}
		next, err := e.state.AuctionNextID()
		if err != nil {
			return err
		}
		now := e.now()
		a := &Auction{
			ID:              next,
			Seller:          seller,
			Asset:           ref,
			ReservePrice:    reserve,
			StartTime:       now,
			EndTime:         now + req.Duration,
			BidIncrementBps: increment,
			HighestBid:      big.NewInt(0),
			Active:          true,
			Status:          StatusActive,
		}
		if err := e.state.AuctionPut(a); err != nil {
			return err
		}
		if err := e.state.AuctionSellerIndexAppend(seller, a.ID); err != nil {
			return err
		}
		if ref.Tokenized() {
			if err := e.custody.Escrow(ref, seller); err != nil {
				return err
			}
		}
		e.emit(AuctionCreatedEvent(a))
		if ref.Tokenized() {
			e.emit(AssetEscrowedEvent(a))
		}
		id = a.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// normalizeAsset enforces that exactly one asset shape is populated and, for
// tokenized assets, that seller controls the requested quantity and has
// approved the vault.
func (e *Engine) normalizeAsset(seller [20]byte, ref assets.AssetRef) (assets.AssetRef, error) {
	ref = ref.Clone()
	if !ref.Tokenized() {
		if ref.Standard != assets.StandardNone || ref.UnitID.Sign() != 0 {
			return ref, ErrInvalidAsset
		}
		if !ref.Category.OffChain() {
			return ref, ErrInvalidAsset
		}
		if ref.ContentHash == ([32]byte{}) || ref.MetadataURI == "" {
			return ref, ErrMissingAssetProof
		}
		if ref.Quantity == 0 {
			ref.Quantity = 1
		}
		return ref, nil
	}
	if ref.ContentHash != ([32]byte{}) || ref.MetadataURI != "" {
		return ref, ErrInvalidAsset
	}
	switch ref.Category {
	case assets.CategoryUnknown:
		ref.Category = assets.CategoryDigital
	case assets.CategoryDigital:
	default:
		return ref, ErrInvalidAsset
	}
	if e.custody == nil {
		return ref, errNilCustody
	}
	coll, ok, err := e.custody.Collection(ref.Collection)
	if err != nil {
		return ref, err
	}
	if !ok {
		return ref, assets.ErrCollectionNotFound
	}
	if ref.Standard == assets.StandardNone {
		ref.Standard = coll.Standard
	} else if ref.Standard != coll.Standard {
		return ref, assets.ErrStandardMismatch
	}
	switch ref.Standard {
	case assets.StandardSingle:
		if ref.Quantity != 1 {
			return ref, ErrInvalidQuantity
		}
		owner, err := e.custody.OwnerOf(ref)
		if err != nil {
			return ref, err
		}
		if owner != seller {
			return ref, assets.ErrNotOwner
		}
	case assets.StandardFractional:
		if ref.Quantity == 0 {
			return ref, ErrInvalidQuantity
		}
		balance, err := e.custody.BalanceOf(ref, seller)
		if err != nil {
			return ref, err
		}
		if ref.Quantity > balance {
			return ref, ErrInvalidQuantity
		}
	default:
		return ref, assets.ErrStandardMismatch
	}
	if !e.custody.IsApproved(ref, seller, e.vault) {
		return ref, assets.ErrNotApproved
	}
	return ref, nil
}

// GetAuction returns a copy of the auction.
func (e *Engine) GetAuction(id uint64) (*Auction, error) {
	a, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// IsActive reports whether the auction is open and its end time has not
// passed.
func (e *Engine) IsActive(id uint64) (bool, error) {
	a, err := e.load(id)
	if err != nil {
		return false, err
	}
	return a.Active && e.now() < a.EndTime, nil
}

// HasEnded reports whether the end time has passed.
func (e *Engine) HasEnded(id uint64) (bool, error) {
	a, err := e.load(id)
	if err != nil {
		return false, err
	}
	return e.now() >= a.EndTime, nil
}

// Pause blocks auction creation and bidding. The caller must hold
// common.RolePauser.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// Unpause lifts a previous Pause. The caller must hold common.RolePauser.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused(caller, false)
}

// Paused reports whether the module is paused.
func (e *Engine) Paused() bool { return e.paused() }

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	return e.guarded(func() error {
		if e.auth == nil || !e.auth.IsAuthorized(caller, common.RolePauser) {
			return ErrNotAuthorized
		}
		if e.pauses == nil {
			return errNilPauseCtrl
		}
		if err := e.pauses.SetPaused(ModuleName, paused); err != nil {
			return err
		}
		e.emit(PauseToggledEvent(caller, paused))
		return nil
	})
}
