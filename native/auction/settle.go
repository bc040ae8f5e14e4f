package auction

import (
	"math/big"

	"nhbmarket/native/fees"
)

// Reasons attached to auction.cancelled events.
const (
	ReasonNoBids = "no_bids"
	ReasonSeller = "seller"
)

// finalize marks the auction terminal and persists it before any asset or
// currency leaves the vault, so a re-entrant call observes the settled flag.
func (e *Engine) finalize(a *Auction, status Status) error {
	a.Active = false
	a.Settled = true
	a.Status = status
	return e.state.AuctionPut(a)
}

func (e *Engine) releaseToSeller(a *Auction) error {
	if !a.Asset.Tokenized() {
		return nil
	}
	if e.custody == nil {
		return errNilCustody
	}
	return e.custody.Release(a.Asset, a.Seller)
}

// EndAuction resolves an auction whose end time has passed. Anyone may call
// it. The outcome is exactly one of sold, returned with no bids or returned
// with the reserve not met.
func (e *Engine) EndAuction(id uint64) (Status, error) {
	var outcome Status
	err := e.guarded(func() error {
		a, err := e.load(id)
		if err != nil {
			return err
		}
		if a.Settled {
			return ErrAlreadySettled
		}
		if !a.Active {
			return ErrNotActive
		}
		if e.now() < a.EndTime {
			return ErrNotEnded
		}
		switch {
		case !a.HasBid():
			if err := e.finalize(a, StatusReturnedNoBids); err != nil {
				return err
			}
			if err := e.releaseToSeller(a); err != nil {
				return err
			}
			e.emit(AuctionCancelledEvent(a, ReasonNoBids))
		case a.HighestBid.Cmp(a.ReservePrice) < 0:
			if err := e.finalize(a, StatusReturnedReserveNotMet); err != nil {
				return err
			}
			if err := e.releaseToSeller(a); err != nil {
				return err
			}
			if e.bank == nil {
				return errNilBank
			}
			if err := e.refund(a.ID, a.HighestBidder, a.HighestBid); err != nil {
				return err
			}
			e.emit(ReserveNotMetEvent(a))
		default:
			dist, err := e.sell(a)
			if err != nil {
				return err
			}
			e.emit(AuctionSettledEvent(a, dist))
		}
		outcome = a.Status
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// sell delivers the asset to the winner and disburses the winning bid through
// the payments adapter.
func (e *Engine) sell(a *Auction) (fees.Distribution, error) {
	if e.payments == nil {
		return fees.Distribution{}, errNilPayments
	}
	if err := e.finalize(a, StatusSold); err != nil {
		return fees.Distribution{}, err
	}
	if a.Asset.Tokenized() {
		if e.custody == nil {
			return fees.Distribution{}, errNilCustody
		}
		if err := e.custody.Release(a.Asset, a.HighestBidder); err != nil {
			return fees.Distribution{}, err
		}
	} else {
		if e.escrow == nil {
			return fees.Distribution{}, errNilEscrow
		}
		holding, err := e.escrow.Open(a.ID, a.HighestBidder, a.Seller, a.Asset, a.HighestBid)
		if err != nil {
			return fees.Distribution{}, err
		}
		a.HoldingID = holding
		if err := e.state.AuctionPut(a); err != nil {
			return fees.Distribution{}, err
		}
	}
	return e.payments.Settle(new(big.Int).Set(a.HighestBid), a.Asset, a.Seller)
}

// CancelAuction lets the seller withdraw an auction that has not received a
// bid. The escrowed asset returns to the seller.
func (e *Engine) CancelAuction(caller [20]byte, id uint64) error {
	return e.guarded(func() error {
		a, err := e.load(id)
		if err != nil {
			return err
		}
		if a.Settled {
			return ErrAlreadySettled
		}
		if !a.Active {
			return ErrNotActive
		}
		if caller != a.Seller {
			return ErrNotSeller
		}
		if a.HasBid() {
			return ErrHasBids
		}
		if err := e.finalize(a, StatusCancelled); err != nil {
			return err
		}
		if err := e.releaseToSeller(a); err != nil {
			return err
		}
		e.emit(AuctionCancelledEvent(a, ReasonSeller))
		return nil
	})
}

// EmergencyWithdraw unwinds an auction nobody settled. The seller or the
// highest bidder may call it once EndTime plus the emergency delay has passed.
// The highest bid is refunded through the push-or-queue rule and the asset
// returns to the seller.
func (e *Engine) EmergencyWithdraw(caller [20]byte, id uint64) error {
	return e.guarded(func() error {
		a, err := e.load(id)
		if err != nil {
			return err
		}
		if a.Settled {
			return ErrAlreadySettled
		}
		if !a.Active {
			return ErrNotActive
		}
		if isZeroAddress(caller) || (caller != a.Seller && caller != a.HighestBidder) {
			return ErrNotAuthorized
		}
		if e.now() < a.EndTime+e.params.EmergencyDelay {
			return ErrTooEarly
		}
		if err := e.finalize(a, StatusEmergencyClosed); err != nil {
			return err
		}
		if a.HasBid() {
			if e.bank == nil {
				return errNilBank
			}
			if err := e.refund(a.ID, a.HighestBidder, a.HighestBid); err != nil {
				return err
			}
		}
		if err := e.releaseToSeller(a); err != nil {
			return err
		}
		e.emit(EmergencyClosedEvent(a, caller))
		return nil
	})
}
