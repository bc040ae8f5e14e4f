package auctiond

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"nhbmarket/crypto"
	"nhbmarket/native/assets"
	"nhbmarket/native/auction"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
)

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequestError(msg) }

// parseAmount accepts a non-negative decimal string bounded to 256 bits.
func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errBadRequest("amount is required")
	}
	value, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, errBadRequest(fmt.Sprintf("invalid amount %q", raw))
	}
	return value.ToBig(), nil
}

func parseHash(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(out) {
		return out, errBadRequest(fmt.Sprintf("invalid 32-byte hash %q", raw))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseAccount(raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return addr, errBadRequest(err.Error())
	}
	return addr, nil
}

func hashString(h [32]byte) string {
	if h == ([32]byte{}) {
		return ""
	}
	return "0x" + hex.EncodeToString(h[:])
}

func accountString(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.FormatAddress(addr)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// assetRequest describes the asset offered in a create request. Off-chain
// assets carry either a content hash or the proof document it is derived
// from.
type assetRequest struct {
	Category    string `json:"category"`
	Collection  string `json:"collection"`
	UnitID      string `json:"unitId"`
	Quantity    uint64 `json:"quantity"`
	Standard    string `json:"standard"`
	ContentHash string `json:"contentHash"`
	MetadataURI string `json:"metadataUri"`
	Proof       string `json:"proof"`
}

func (a assetRequest) toRef() (assets.AssetRef, error) {
	ref := assets.AssetRef{Quantity: a.Quantity, MetadataURI: strings.TrimSpace(a.MetadataURI)}
	if strings.TrimSpace(a.Category) != "" {
		category, err := assets.ParseCategory(a.Category)
		if err != nil {
			return ref, errBadRequest(err.Error())
		}
		ref.Category = category
	}
	standard, err := assets.ParseStandard(a.Standard)
	if err != nil {
		return ref, errBadRequest(err.Error())
	}
	ref.Standard = standard
	if strings.TrimSpace(a.Collection) != "" {
		if ref.Collection, err = parseAccount(a.Collection); err != nil {
			return ref, err
		}
	}
	ref.UnitID = big.NewInt(0)
	if strings.TrimSpace(a.UnitID) != "" {
		if ref.UnitID, err = parseAmount(a.UnitID); err != nil {
			return ref, err
		}
	}
	switch {
	case a.Proof != "":
		offChain, err := assets.OffChainRef(ref.Category, []byte(a.Proof), a.MetadataURI)
		if err != nil {
			return ref, errBadRequest(err.Error())
		}
		if a.ContentHash != "" {
			claimed, err := parseHash(a.ContentHash)
			if err != nil {
				return ref, err
			}
			if claimed != offChain.ContentHash {
				return ref, errBadRequest("content hash does not match proof document")
			}
		}
		offChain.Quantity = ref.Quantity
		return offChain, nil
	case a.ContentHash != "":
		if ref.ContentHash, err = parseHash(a.ContentHash); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

type createAuctionRequest struct {
	Asset           assetRequest `json:"asset"`
	ReservePrice    string       `json:"reservePrice"`
	DurationSeconds int64        `json:"durationSeconds"`
	BidIncrementBps uint32       `json:"bidIncrementBps"`
}

func (r createAuctionRequest) toEngine() (auction.CreateRequest, error) {
	ref, err := r.Asset.toRef()
	if err != nil {
		return auction.CreateRequest{}, err
	}
	reserve := big.NewInt(0)
	if strings.TrimSpace(r.ReservePrice) != "" {
		if reserve, err = parseAmount(r.ReservePrice); err != nil {
			return auction.CreateRequest{}, err
		}
	}
	return auction.CreateRequest{
		Asset:           ref,
		ReservePrice:    reserve,
		Duration:        r.DurationSeconds,
		BidIncrementBps: r.BidIncrementBps,
	}, nil
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type feeRequest struct {
	PlatformBps uint32 `json:"platformBps"`
}

type mintRequest struct {
	Collection string `json:"collection"`
	UnitID     string `json:"unitId"`
	To         string `json:"to"`
	Quantity   uint64 `json:"quantity"`
}

type approvalRequest struct {
	Collection string `json:"collection"`
	Approved   bool   `json:"approved"`
}

type assetView struct {
	Category    string `json:"category"`
	Collection  string `json:"collection,omitempty"`
	UnitID      string `json:"unitId,omitempty"`
	Quantity    uint64 `json:"quantity"`
	Standard    string `json:"standard,omitempty"`
	ContentHash string `json:"contentHash,omitempty"`
	MetadataURI string `json:"metadataUri,omitempty"`
}

func newAssetView(ref assets.AssetRef) assetView {
	view := assetView{
		Category:    ref.Category.String(),
		Quantity:    ref.Quantity,
		ContentHash: hashString(ref.ContentHash),
		MetadataURI: ref.MetadataURI,
	}
	if ref.Tokenized() {
		view.Collection = crypto.FormatAddress(ref.Collection)
		view.UnitID = amountString(ref.UnitID)
		view.Standard = ref.Standard.String()
	}
	return view
}

type auctionView struct {
	ID              uint64    `json:"id"`
	Seller          string    `json:"seller"`
	Asset           assetView `json:"asset"`
	ReservePrice    string    `json:"reservePrice"`
	StartTime       int64     `json:"startTime"`
	EndTime         int64     `json:"endTime"`
	BidIncrementBps uint32    `json:"bidIncrementBps"`
	HighestBid      string    `json:"highestBid"`
	HighestBidder   string    `json:"highestBidder,omitempty"`
	Active          bool      `json:"active"`
	Settled         bool      `json:"settled"`
	Status          string    `json:"status"`
	HoldingID       string    `json:"holdingId,omitempty"`
	IsActive        bool      `json:"isActive"`
	HasEnded        bool      `json:"hasEnded"`
	MinimumBid      string    `json:"minimumBid,omitempty"`
}

func loadAuctionView(engine *auction.Engine, id uint64) (auctionView, error) {
	a, err := engine.GetAuction(id)
	if err != nil {
		return auctionView{}, err
	}
	view := auctionView{
		ID:              a.ID,
		Seller:          crypto.FormatAddress(a.Seller),
		Asset:           newAssetView(a.Asset),
		ReservePrice:    amountString(a.ReservePrice),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		BidIncrementBps: a.BidIncrementBps,
		HighestBid:      amountString(a.HighestBid),
		HighestBidder:   accountString(a.HighestBidder),
		Active:          a.Active,
		Settled:         a.Settled,
		Status:          a.Status.String(),
		HoldingID:       hashString(a.HoldingID),
	}
	if view.IsActive, err = engine.IsActive(id); err != nil {
		return auctionView{}, err
	}
	if view.HasEnded, err = engine.HasEnded(id); err != nil {
		return auctionView{}, err
	}
	if view.IsActive {
		minimum, err := engine.MinimumBid(id)
		if err != nil {
			return auctionView{}, err
		}
		view.MinimumBid = minimum.String()
	}
	return view, nil
}

type distributionView struct {
	AuctionID        uint64 `json:"auctionId"`
	Gross            string `json:"gross"`
	PlatformFee      string `json:"platformFee"`
	RoyaltyFee       string `json:"royaltyFee"`
	SellerNet        string `json:"sellerNet"`
	Treasury         string `json:"treasury,omitempty"`
	RoyaltyRecipient string `json:"royaltyRecipient,omitempty"`
}

func newDistributionView(id uint64, d fees.Distribution) distributionView {
	return distributionView{
		AuctionID:        id,
		Gross:            amountString(d.Gross),
		PlatformFee:      amountString(d.PlatformFee),
		RoyaltyFee:       amountString(d.RoyaltyFee),
		SellerNet:        amountString(d.SellerNet),
		Treasury:         accountString(d.Treasury),
		RoyaltyRecipient: accountString(d.RoyaltyRecipient),
	}
}

type holdingView struct {
	ID          string `json:"id"`
	AuctionID   uint64 `json:"auctionId"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	ContentHash string `json:"contentHash"`
	MetadataURI string `json:"metadataUri"`
	Amount      string `json:"amount"`
	CreatedAt   uint64 `json:"createdAt"`
	DeliveredAt uint64 `json:"deliveredAt,omitempty"`
	Status      string `json:"status"`
}

func newHoldingView(h *escrow.Holding) holdingView {
	return holdingView{
		ID:          hashString(h.ID),
		AuctionID:   h.AuctionID,
		Buyer:       crypto.FormatAddress(h.Buyer),
		Seller:      crypto.FormatAddress(h.Seller),
		ContentHash: hashString(h.ContentHash),
		MetadataURI: h.MetadataURI,
		Amount:      amountString(h.Amount),
		CreatedAt:   h.CreatedAt,
		DeliveredAt: h.DeliveredAt,
		Status:      h.Status.String(),
	}
}
