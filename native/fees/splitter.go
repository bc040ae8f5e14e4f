package fees

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"nhbmarket/core/events"
	"nhbmarket/core/types"
	"nhbmarket/native/assets"
	"nhbmarket/native/common"
	"nhbmarket/storage"
)

const (
	// MaxPlatformFeeBps caps the platform fee at 10%.
	MaxPlatformFeeBps = 1_000

	EventTypeDistributed = "fees.distributed"
	EventTypeFeeUpdated  = "fees.platform_fee_updated"
)

var (
	errNilBank       = errors.New("fees splitter: bank not configured")
	errNoTreasury    = errors.New("fees splitter: treasury not configured")
	ErrFeeOutOfRange = errors.New("fees: platform fee bps out of range")
	ErrNotFeeManager = errors.New("fees: caller lacks fee manager role")
	ErrInvalidGross  = errors.New("fees: gross amount must be positive")
	ErrRoyaltyLookup = errors.New("fees: royalty lookup failed")
	ErrDisbursement  = errors.New("fees: disbursement failed")
)

var platformFeeKey = []byte("fees/platform_bps")

// Transferer moves currency between accounts.
type Transferer interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// RoyaltySource resolves royalty terms for tokenized assets.
type RoyaltySource interface {
	RoyaltyInfo(ref assets.AssetRef, salePrice *big.Int) ([20]byte, *big.Int, error)
}

// Splitter computes and disburses platform fee, royalty and seller proceeds
// out of a source account holding the gross sale amount.
type Splitter struct {
	bank        Transferer
	royalties   RoyaltySource
	auth        common.Authorizer
	emitter     events.Emitter
	store       *storage.Journal
	source      [20]byte
	treasury    [20]byte
	platformBps uint32
}

// NewSplitter constructs a splitter paying out of source.
func NewSplitter(bank Transferer, royalties RoyaltySource, source, treasury [20]byte, platformBps uint32) (*Splitter, error) {
	if platformBps > MaxPlatformFeeBps {
		return nil, ErrFeeOutOfRange
	}
	return &Splitter{
		bank:        bank,
		royalties:   royalties,
		emitter:     events.NoopEmitter{},
		source:      source,
		treasury:    treasury,
		platformBps: platformBps,
	}, nil
}

// SetStore persists fee updates in the journal. Until a fee has been stored
// the constructor value applies.
func (s *Splitter) SetStore(store *storage.Journal) { s.store = store }

// SetAuthorizer configures the role service consulted for fee updates.
func (s *Splitter) SetAuthorizer(auth common.Authorizer) { s.auth = auth }

// SetEmitter configures the event emitter used by the splitter.
func (s *Splitter) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

// PlatformFeeBps returns the active platform fee. Read failures fall back to
// the constructor value.
func (s *Splitter) PlatformFeeBps() uint32 {
	bps, err := s.feeBps()
	if err != nil {
		return s.platformBps
	}
	return bps
}

func (s *Splitter) feeBps() (uint32, error) {
	if s.store == nil {
		return s.platformBps, nil
	}
	var stored uint32
	ok, err := s.store.GetRLP(platformFeeKey, &stored)
	if err != nil {
		return 0, fmt.Errorf("fees: load platform fee: %w", err)
	}
	if !ok {
		return s.platformBps, nil
	}
	return stored, nil
}

// SetPlatformFeeBps updates the platform fee. The caller must hold
// common.RoleFeeManager.
func (s *Splitter) SetPlatformFeeBps(caller [20]byte, bps uint32) error {
	if s.auth == nil || !s.auth.IsAuthorized(caller, common.RoleFeeManager) {
		return ErrNotFeeManager
	}
	if bps > MaxPlatformFeeBps {
		return ErrFeeOutOfRange
	}
	previous, err := s.feeBps()
	if err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.PutRLP(platformFeeKey, bps); err != nil {
			return err
		}
	} else {
		s.platformBps = bps
	}
	s.emitter.Emit(FeeUpdatedEvent{Previous: previous, Current: bps, Caller: caller})
	return nil
}

// Quote returns the distribution a sale of ref at gross would produce.
// Off-chain assets carry no royalty.
func (s *Splitter) Quote(gross *big.Int, ref assets.AssetRef, seller [20]byte) (Distribution, error) {
	if gross == nil || gross.Sign() <= 0 {
		return Distribution{}, ErrInvalidGross
	}
	royalty := big.NewInt(0)
	var receiver [20]byte
	if ref.Tokenized() && s.royalties != nil {
		recv, amount, err := s.royalties.RoyaltyInfo(ref, gross)
		if err != nil {
			return Distribution{}, fmt.Errorf("%w: %v", ErrRoyaltyLookup, err)
		}
		if amount != nil && recv != ([20]byte{}) {
			royalty = amount
			receiver = recv
		}
	}
	bps, err := s.feeBps()
	if err != nil {
		return Distribution{}, err
	}
	out := Split(gross, bps, royalty)
	out.Treasury = s.treasury
	out.RoyaltyRecipient = receiver
	return out, nil
}

// Settle disburses gross out of the source account. Any failed leg is
// returned to the caller, who is expected to roll the sale back.
func (s *Splitter) Settle(gross *big.Int, ref assets.AssetRef, seller [20]byte) (Distribution, error) {
	if s.bank == nil {
		return Distribution{}, errNilBank
	}
	dist, err := s.Quote(gross, ref, seller)
	if err != nil {
		return Distribution{}, err
	}
	if dist.PlatformFee.Sign() > 0 {
		if s.treasury == ([20]byte{}) {
			return Distribution{}, errNoTreasury
		}
		if err := s.bank.Transfer(s.source, s.treasury, dist.PlatformFee); err != nil {
			return Distribution{}, fmt.Errorf("%w: platform fee: %v", ErrDisbursement, err)
		}
	}
	if dist.RoyaltyFee.Sign() > 0 {
		if err := s.bank.Transfer(s.source, dist.RoyaltyRecipient, dist.RoyaltyFee); err != nil {
			return Distribution{}, fmt.Errorf("%w: royalty: %v", ErrDisbursement, err)
		}
	}
	if dist.SellerNet.Sign() > 0 {
		if err := s.bank.Transfer(s.source, seller, dist.SellerNet); err != nil {
			return Distribution{}, fmt.Errorf("%w: seller proceeds: %v", ErrDisbursement, err)
		}
	}
	s.emitter.Emit(DistributedEvent{Seller: seller, Distribution: dist.Clone()})
	return dist, nil
}

// DistributedEvent records a completed sale disbursement.
type DistributedEvent struct {
	Seller       [20]byte
	Distribution Distribution
}

func (DistributedEvent) EventType() string { return EventTypeDistributed }

func (e DistributedEvent) Event() *types.Event {
	d := e.Distribution.Clone()
	attrs := map[string]string{
		"seller":      hex.EncodeToString(e.Seller[:]),
		"gross":       d.Gross.String(),
		"platformFee": d.PlatformFee.String(),
		"royaltyFee":  d.RoyaltyFee.String(),
		"sellerNet":   d.SellerNet.String(),
	}
	if d.RoyaltyRecipient != ([20]byte{}) {
		attrs["royaltyRecipient"] = hex.EncodeToString(d.RoyaltyRecipient[:])
	}
	return &types.Event{Type: EventTypeDistributed, Attributes: attrs}
}

// FeeUpdatedEvent records a platform fee change.
type FeeUpdatedEvent struct {
	Previous uint32
	Current  uint32
	Caller   [20]byte
}

func (FeeUpdatedEvent) EventType() string { return EventTypeFeeUpdated }

func (e FeeUpdatedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeFeeUpdated,
		Attributes: map[string]string{
			"previousBps": strconv.FormatUint(uint64(e.Previous), 10),
			"currentBps":  strconv.FormatUint(uint64(e.Current), 10),
			"caller":      hex.EncodeToString(e.Caller[:]),
		},
	}
}
