package auction

import (
	"math/big"

	"nhbmarket/native/fees"
)

// minimumBid is the reserve (at least one unit) before the first bid and the
// highest bid plus the ceiling of its increment afterwards.
func minimumBid(a *Auction) *big.Int {
	if !a.HasBid() {
		if a.ReservePrice == nil || a.ReservePrice.Sign() <= 0 {
			return big.NewInt(1)
		}
		return new(big.Int).Set(a.ReservePrice)
	}
	step := new(big.Int).Mul(a.HighestBid, new(big.Int).SetUint64(uint64(a.BidIncrementBps)))
	step.Add(step, big.NewInt(bpsDenominator-1))
	step.Quo(step, big.NewInt(bpsDenominator))
	if step.Sign() == 0 {
		step.SetInt64(1)
	}
	return step.Add(step, a.HighestBid)
}

// MinimumBid returns the smallest amount PlaceBid would currently accept.
func (e *Engine) MinimumBid(id uint64) (*big.Int, error) {
	a, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return minimumBid(a), nil
}

// SellerAuctions lists the auctions created by seller.
func (e *Engine) SellerAuctions(seller [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AuctionSellerIndex(seller)
}

// BidderAuctions lists the auctions bidder has bid on.
func (e *Engine) BidderAuctions(bidder [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AuctionBidderIndex(bidder)
}

// CalculatePaymentDistribution projects how the current highest bid would be
// split at settlement. Auctions without a bid project an all-zero split.
func (e *Engine) CalculatePaymentDistribution(id uint64) (fees.Distribution, error) {
	a, err := e.load(id)
	if err != nil {
		return fees.Distribution{}, err
	}
	if !a.HasBid() || a.HighestBid.Sign() <= 0 {
		return fees.Split(big.NewInt(0), 0, nil), nil
	}
	if e.payments == nil {
		return fees.Distribution{}, errNilPayments
	}
	return e.payments.Quote(new(big.Int).Set(a.HighestBid), a.Asset, a.Seller)
}
