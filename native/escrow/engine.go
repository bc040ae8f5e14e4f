package escrow

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nhbmarket/core/events"
	"nhbmarket/native/assets"
	"nhbmarket/storage"
)

var (
	errNilState        = errors.New("escrow engine: state not configured")
	ErrHoldingNotFound = errors.New("escrow engine: holding not found")
	ErrHoldingExists   = errors.New("escrow engine: holding already exists")
	ErrNotOffChain     = errors.New("escrow engine: asset is not an off-chain claim")
	ErrUnauthorized    = errors.New("escrow engine: unauthorized caller")
)

var holdingPrefix = "escrow/holding/"

// Engine opens holding records for off-chain assets sold at auction. The
// dispute process that follows is handled elsewhere; this engine only opens
// records and tracks buyer-confirmed delivery.
type Engine struct {
	store   *storage.Journal
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine(store *storage.Journal) *Engine {
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(e.nowFn())
}

func holdingKey(id [32]byte) []byte {
	return []byte(holdingPrefix + hex.EncodeToString(id[:]))
}

// HoldingID derives the deterministic identifier for an auction sale.
func HoldingID(auctionID uint64, buyer, seller [20]byte, contentHash [32]byte) [32]byte {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], auctionID)
	return ethcrypto.Keccak256Hash(idBytes[:], buyer[:], seller[:], contentHash[:])
}

func (e *Engine) loadHolding(id [32]byte) (*Holding, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	var h Holding
	ok, err := e.store.GetRLP(holdingKey(id), &h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHoldingNotFound
	}
	return &h, nil
}

func (e *Engine) storeHolding(h *Holding) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	sanitized, err := SanitizeHolding(h)
	if err != nil {
		return err
	}
	return e.store.PutRLP(holdingKey(sanitized.ID), sanitized)
}

// Open records the sale of an off-chain asset and returns the holding id.
func (e *Engine) Open(auctionID uint64, buyer, seller [20]byte, ref assets.AssetRef, amount *big.Int) ([32]byte, error) {
	var zero [32]byte
	if ref.Tokenized() || ref.ContentHash == ([32]byte{}) {
		return zero, ErrNotOffChain
	}
	if amount == nil || amount.Sign() <= 0 {
		return zero, fmt.Errorf("escrow: amount must be positive")
	}
	id := HoldingID(auctionID, buyer, seller, ref.ContentHash)
	if _, err := e.loadHolding(id); err == nil {
		return zero, ErrHoldingExists
	} else if !errors.Is(err, ErrHoldingNotFound) {
		return zero, err
	}
	h := &Holding{
		ID:          id,
		AuctionID:   auctionID,
		Buyer:       buyer,
		Seller:      seller,
		ContentHash: ref.ContentHash,
		MetadataURI: ref.MetadataURI,
		Amount:      new(big.Int).Set(amount),
		CreatedAt:   e.now(),
		Status:      HoldingOpen,
	}
	if err := e.storeHolding(h); err != nil {
		return zero, err
	}
	e.emit(NewHoldingOpenedEvent(h))
	return id, nil
}

// Get returns a copy of the holding.
func (e *Engine) Get(id [32]byte) (*Holding, error) {
	h, err := e.loadHolding(id)
	if err != nil {
		return nil, err
	}
	return h.Clone(), nil
}

// ConfirmDelivery marks the holding delivered. Only the buyer may confirm. The
// operation is idempotent.
func (e *Engine) ConfirmDelivery(id [32]byte, caller [20]byte) error {
	h, err := e.loadHolding(id)
	if err != nil {
		return err
	}
	if h.Status == HoldingDelivered {
		return nil
	}
	if caller != h.Buyer {
		return ErrUnauthorized
	}
	h.Status = HoldingDelivered
	h.DeliveredAt = e.now()
	if err := e.storeHolding(h); err != nil {
		return err
	}
	e.emit(NewHoldingDeliveredEvent(h))
	return nil
}
