package auction

import (
	"math/big"

	"nhbmarket/native/assets"
)

// Status enumerates the lifecycle states of an auction. StatusActive is the
// only non-terminal state.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusSold
	StatusReturnedNoBids
	StatusReturnedReserveNotMet
	StatusCancelled
	StatusEmergencyClosed
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s >= StatusSold && s <= StatusEmergencyClosed
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSold:
		return "sold"
	case StatusReturnedNoBids:
		return "returned_no_bids"
	case StatusReturnedReserveNotMet:
		return "returned_reserve_not_met"
	case StatusCancelled:
		return "cancelled"
	case StatusEmergencyClosed:
		return "emergency_closed"
	default:
		return "unknown"
	}
}

// Auction is the authoritative record of a single sale.
type Auction struct {
	ID              uint64
	Seller          [20]byte
	Asset           assets.AssetRef
	ReservePrice    *big.Int
	StartTime       int64
	EndTime         int64
	BidIncrementBps uint32
	HighestBid      *big.Int
	HighestBidder   [20]byte
	Active          bool
	Settled         bool
	Status          Status
	// HoldingID references the escrow holding opened when an off-chain asset
	// sells. Zero otherwise.
	HoldingID [32]byte
}

// HasBid reports whether a bid has been accepted.
func (a *Auction) HasBid() bool {
	return a != nil && a.HighestBidder != ([20]byte{})
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Asset = a.Asset.Clone()
	clone.ReservePrice = newBigInt(a.ReservePrice)
	clone.HighestBid = newBigInt(a.HighestBid)
	return &clone
}

// CreateRequest carries the seller-supplied terms of a new auction.
type CreateRequest struct {
	Asset        assets.AssetRef
	ReservePrice *big.Int
	// Duration in seconds, bounded by Params.MinDuration and
	// Params.MaxDuration.
	Duration int64
	// BidIncrementBps of zero selects Params.DefaultBidIncrementBps.
	BidIncrementBps uint32
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
