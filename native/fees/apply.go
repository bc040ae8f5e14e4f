package fees

import "math/big"

// BasisPoints is the denominator for every bps ratio in the fee engine.
const BasisPoints = 10_000

// ApplyResult summarises the fee withheld from a gross amount and the
// remainder.
type ApplyResult struct {
	Fee *big.Int
	Net *big.Int
}

// Apply withholds bps basis points of gross. The fee is floored and never
// exceeds the gross amount; non-positive gross values yield zero fee.
func Apply(gross *big.Int, bps uint32) ApplyResult {
	result := ApplyResult{Fee: big.NewInt(0)}
	if gross != nil {
		result.Net = new(big.Int).Set(gross)
	} else {
		result.Net = big.NewInt(0)
	}
	if result.Net.Sign() <= 0 || bps == 0 {
		return result
	}
	fee := new(big.Int).Mul(result.Net, big.NewInt(int64(bps)))
	fee = fee.Div(fee, big.NewInt(BasisPoints))
	if fee.Sign() <= 0 {
		return result
	}
	if fee.Cmp(result.Net) >= 0 {
		result.Fee = new(big.Int).Set(result.Net)
		result.Net = big.NewInt(0)
		return result
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(result.Net, fee)
	return result
}

// Distribution is the split of a sale's gross proceeds.
type Distribution struct {
	Gross            *big.Int
	PlatformFee      *big.Int
	RoyaltyFee       *big.Int
	SellerNet        *big.Int
	Treasury         [20]byte
	RoyaltyRecipient [20]byte
}

// Clone returns a copy of the distribution with duplicated big.Int values.
func (d Distribution) Clone() Distribution {
	clone := Distribution{Treasury: d.Treasury, RoyaltyRecipient: d.RoyaltyRecipient}
	clone.Gross = cloneOrZero(d.Gross)
	clone.PlatformFee = cloneOrZero(d.PlatformFee)
	clone.RoyaltyFee = cloneOrZero(d.RoyaltyFee)
	clone.SellerNet = cloneOrZero(d.SellerNet)
	return clone
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Split computes the platform fee first, then the royalty (capped by what
// remains), and assigns the rest to the seller.
func Split(gross *big.Int, platformBps uint32, royalty *big.Int) Distribution {
	platform := Apply(gross, platformBps)
	out := Distribution{
		Gross:       cloneOrZero(gross),
		PlatformFee: platform.Fee,
		RoyaltyFee:  big.NewInt(0),
		SellerNet:   platform.Net,
	}
	if royalty == nil || royalty.Sign() <= 0 {
		return out
	}
	if royalty.Cmp(out.SellerNet) >= 0 {
		out.RoyaltyFee = new(big.Int).Set(out.SellerNet)
		out.SellerNet = big.NewInt(0)
		return out
	}
	out.RoyaltyFee = new(big.Int).Set(royalty)
	out.SellerNet = new(big.Int).Sub(out.SellerNet, royalty)
	return out
}
