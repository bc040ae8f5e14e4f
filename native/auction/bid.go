package auction

import (
	"math/big"
)

// PlaceBid deposits amount from bidder into the vault and makes it the highest
// bid. The previous highest bidder is refunded immediately when their receive
// step accepts the payment; otherwise the amount is credited to the refund
// ledger for a later Withdraw. A failed refund never fails the bid.
func (e *Engine) PlaceBid(bidder [20]byte, id uint64, amount *big.Int) error {
	return e.guarded(func() error {
		if e.paused() {
			return ErrPaused
		}
		if e.bank == nil {
			return errNilBank
		}
		if isZeroAddress(e.vault) {
			return errVaultNotSet
		}
		a, err := e.load(id)
		if err != nil {
			return err
		}
		if !a.Active || a.Settled {
			return ErrNotActive
		}
		now := e.now()
		if now >= a.EndTime {
			return ErrEnded
		}
		if isZeroAddress(bidder) {
			return ErrNotAuthorized
		}
		if bidder == a.Seller {
			return ErrSellerCannotBid
		}
		if amount == nil || amount.Cmp(minimumBid(a)) < 0 {
			return ErrBidTooLow
		}
		bid := new(big.Int).Set(amount)
		if err := e.bank.Transfer(bidder, e.vault, bid); err != nil {
			return err
		}

		previousBidder := a.HighestBidder
		previousBid := newBigInt(a.HighestBid)
		previousEnd := a.EndTime

		a.HighestBid = bid
		a.HighestBidder = bidder
		if a.EndTime-now < e.params.ExtensionThreshold {
			if extended := now + e.params.ExtensionWindow; extended > a.EndTime {
				a.EndTime = extended
			}
		}
		if err := e.state.AuctionPut(a); err != nil {
			return err
		}
		if err := e.state.AuctionBidderIndexAppend(bidder, a.ID); err != nil {
			return err
		}
		e.emit(BidAcceptedEvent(a, previousEnd))

		if !isZeroAddress(previousBidder) {
			return e.refund(a.ID, previousBidder, previousBid)
		}
		return nil
	})
}

// refund pushes amount from the vault to recipient and falls back to the
// refund ledger when the push fails. Only ledger write failures are returned.
func (e *Engine) refund(id uint64, recipient [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 || isZeroAddress(recipient) {
		return nil
	}
	if err := e.bank.Transfer(e.vault, recipient, amount); err == nil {
		e.emit(RefundDeliveredEvent(id, recipient, amount))
		return nil
	}
	owed, err := e.state.AuctionRefundGet(recipient)
	if err != nil {
		return err
	}
	owed = new(big.Int).Add(owed, amount)
	if err := e.state.AuctionRefundPut(recipient, owed); err != nil {
		return err
	}
	e.emit(RefundQueuedEvent(id, recipient, amount, owed))
	return nil
}

// Withdraw pays out the caller's whole refund ledger balance. The balance is
// cleared before the push and restored if the push fails.
func (e *Engine) Withdraw(caller [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := e.guarded(func() error {
		if e.bank == nil {
			return errNilBank
		}
		owed, err := e.state.AuctionRefundGet(caller)
		if err != nil {
			return err
		}
		if owed.Sign() <= 0 {
			return ErrNoBalance
		}
		if err := e.state.AuctionRefundPut(caller, big.NewInt(0)); err != nil {
			return err
		}
		if err := e.bank.Transfer(e.vault, caller, owed); err != nil {
			if restoreErr := e.state.AuctionRefundPut(caller, owed); restoreErr != nil {
				return restoreErr
			}
			return ErrTransferFailed
		}
		e.emit(FundsWithdrawnEvent(caller, owed))
		paid = owed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// PendingRefund returns the refund ledger balance owed to addr.
func (e *Engine) PendingRefund(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AuctionRefundGet(addr)
}
