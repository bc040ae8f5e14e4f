package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// HoldingStatus represents the lifecycle states of an off-chain sale holding.
type HoldingStatus uint8

const (
	HoldingOpen HoldingStatus = iota + 1
	HoldingDelivered
)

// Valid reports whether the status value is within the supported range.
func (s HoldingStatus) Valid() bool {
	return s == HoldingOpen || s == HoldingDelivered
}

func (s HoldingStatus) String() string {
	switch s {
	case HoldingOpen:
		return "open"
	case HoldingDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// Holding records an off-chain asset sold at auction while delivery is
// pending. The identifier is the keccak256 hash of the auction id, buyer,
// seller and content hash.
type Holding struct {
	ID          [32]byte
	AuctionID   uint64
	Buyer       [20]byte
	Seller      [20]byte
	ContentHash [32]byte
	MetadataURI string
	Amount      *big.Int
	CreatedAt   uint64
	DeliveredAt uint64
	Status      HoldingStatus
}

// Clone returns a deep copy of the holding so callers can safely mutate the
// copy without affecting the stored instance.
func (h *Holding) Clone() *Holding {
	if h == nil {
		return nil
	}
	clone := *h
	if h.Amount != nil {
		clone.Amount = new(big.Int).Set(h.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeHolding validates the supplied holding and returns a normalised
// clone. The function does not mutate the original value.
func SanitizeHolding(h *Holding) (*Holding, error) {
	if h == nil {
		return nil, fmt.Errorf("nil holding")
	}
	clone := h.Clone()
	clone.MetadataURI = strings.TrimSpace(clone.MetadataURI)
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("holding amount must be non-negative")
	}
	if clone.ContentHash == ([32]byte{}) {
		return nil, fmt.Errorf("holding content hash required")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid holding status: %d", clone.Status)
	}
	return clone, nil
}
