package auction

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nhbmarket/core/events"
	"nhbmarket/core/types"
	"nhbmarket/native/fees"
)

const (
	// EventTypeAuctionCreated is emitted when a seller opens an auction.
	EventTypeAuctionCreated = "auction.created"
	// EventTypeAssetEscrowed is emitted when a tokenized unit moves into the vault.
	EventTypeAssetEscrowed = "auction.asset_escrowed"
	// EventTypeBidAccepted is emitted for every accepted bid.
	EventTypeBidAccepted = "auction.bid_accepted"
	// EventTypeRefundDelivered is emitted when an outbid deposit was pushed back.
	EventTypeRefundDelivered = "auction.refund_delivered"
	// EventTypeRefundQueued is emitted when a refund push failed and the amount
	// was credited to the refund ledger.
	EventTypeRefundQueued = "auction.refund_queued"
	// EventTypeAuctionSettled is emitted when an auction sells.
	EventTypeAuctionSettled = "auction.settled"
	// EventTypeAuctionCancelled is emitted on seller cancellation and when an
	// auction ends without bids.
	EventTypeAuctionCancelled = "auction.cancelled"
	// EventTypeReserveNotMet is emitted when the highest bid missed the reserve.
	EventTypeReserveNotMet = "auction.reserve_not_met"
	// EventTypeEmergencyClosed is emitted when an unsettled auction is unwound.
	EventTypeEmergencyClosed = "auction.emergency_closed"
	// EventTypeFundsWithdrawn is emitted when a refund ledger balance is paid out.
	EventTypeFundsWithdrawn = "auction.funds_withdrawn"
	EventTypePaused         = "auction.paused"
	EventTypeUnpaused       = "auction.unpaused"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func idString(id uint64) string { return strconv.FormatUint(id, 10) }

func timeString(ts int64) string { return strconv.FormatInt(ts, 10) }

// AuctionCreatedEvent returns the payload announcing a new auction.
func AuctionCreatedEvent(a *Auction) *types.Event {
	attrs := map[string]string{
		"auctionId":       idString(a.ID),
		"seller":          hexAddr(a.Seller),
		"category":        a.Asset.Category.String(),
		"reservePrice":    amountString(a.ReservePrice),
		"startTime":       timeString(a.StartTime),
		"endTime":         timeString(a.EndTime),
		"bidIncrementBps": strconv.FormatUint(uint64(a.BidIncrementBps), 10),
	}
	if a.Asset.Tokenized() {
		attrs["collection"] = hexAddr(a.Asset.Collection)
		attrs["unitId"] = amountString(a.Asset.UnitID)
		attrs["quantity"] = strconv.FormatUint(a.Asset.Quantity, 10)
	} else {
		attrs["contentHash"] = "0x" + hex.EncodeToString(a.Asset.ContentHash[:])
		attrs["metadataUri"] = a.Asset.MetadataURI
	}
	return &types.Event{Type: EventTypeAuctionCreated, Attributes: attrs}
}

// AssetEscrowedEvent returns the payload recording custody of the unit.
func AssetEscrowedEvent(a *Auction) *types.Event {
	return &types.Event{
		Type: EventTypeAssetEscrowed,
		Attributes: map[string]string{
			"auctionId":  idString(a.ID),
			"from":       hexAddr(a.Seller),
			"collection": hexAddr(a.Asset.Collection),
			"unitId":     amountString(a.Asset.UnitID),
			"quantity":   strconv.FormatUint(a.Asset.Quantity, 10),
		},
	}
}

// BidAcceptedEvent returns the payload for an accepted bid. extended is set
// when the bid moved the end time.
func BidAcceptedEvent(a *Auction, previousEnd int64) *types.Event {
	attrs := map[string]string{
		"auctionId": idString(a.ID),
		"bidder":    hexAddr(a.HighestBidder),
		"amount":    amountString(a.HighestBid),
		"endTime":   timeString(a.EndTime),
	}
	if a.EndTime > previousEnd {
		attrs["extended"] = "true"
	}
	return &types.Event{Type: EventTypeBidAccepted, Attributes: attrs}
}

// RefundDeliveredEvent returns the payload for a successful refund push.
func RefundDeliveredEvent(id uint64, to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRefundDelivered,
		Attributes: map[string]string{
			"auctionId": idString(id),
			"recipient": hexAddr(to),
			"amount":    amountString(amount),
		},
	}
}

// RefundQueuedEvent returns the payload for a refund credited to the ledger.
func RefundQueuedEvent(id uint64, to [20]byte, amount, balance *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRefundQueued,
		Attributes: map[string]string{
			"auctionId": idString(id),
			"recipient": hexAddr(to),
			"amount":    amountString(amount),
			"balance":   amountString(balance),
		},
	}
}

// AuctionSettledEvent returns the payload for a completed sale.
func AuctionSettledEvent(a *Auction, dist fees.Distribution) *types.Event {
	attrs := map[string]string{
		"auctionId":   idString(a.ID),
		"seller":      hexAddr(a.Seller),
		"winner":      hexAddr(a.HighestBidder),
		"amount":      amountString(a.HighestBid),
		"platformFee": amountString(dist.PlatformFee),
		"royaltyFee":  amountString(dist.RoyaltyFee),
		"sellerNet":   amountString(dist.SellerNet),
	}
	if a.HoldingID != ([32]byte{}) {
		attrs["holdingId"] = "0x" + hex.EncodeToString(a.HoldingID[:])
	}
	return &types.Event{Type: EventTypeAuctionSettled, Attributes: attrs}
}

// AuctionCancelledEvent returns the payload for an auction returned to its
// seller without a sale.
func AuctionCancelledEvent(a *Auction, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeAuctionCancelled,
		Attributes: map[string]string{
			"auctionId": idString(a.ID),
			"seller":    hexAddr(a.Seller),
			"reason":    reason,
			"status":    a.Status.String(),
		},
	}
}

// ReserveNotMetEvent returns the payload for an auction whose highest bid
// missed the reserve.
func ReserveNotMetEvent(a *Auction) *types.Event {
	return &types.Event{
		Type: EventTypeReserveNotMet,
		Attributes: map[string]string{
			"auctionId":    idString(a.ID),
			"seller":       hexAddr(a.Seller),
			"bidder":       hexAddr(a.HighestBidder),
			"highestBid":   amountString(a.HighestBid),
			"reservePrice": amountString(a.ReservePrice),
		},
	}
}

// EmergencyClosedEvent returns the payload for an emergency unwind.
func EmergencyClosedEvent(a *Auction, caller [20]byte) *types.Event {
	attrs := map[string]string{
		"auctionId": idString(a.ID),
		"seller":    hexAddr(a.Seller),
		"caller":    hexAddr(caller),
	}
	if a.HasBid() {
		attrs["bidder"] = hexAddr(a.HighestBidder)
		attrs["refund"] = amountString(a.HighestBid)
	}
	return &types.Event{Type: EventTypeEmergencyClosed, Attributes: attrs}
}

// FundsWithdrawnEvent returns the payload for a refund ledger payout.
func FundsWithdrawnEvent(to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeFundsWithdrawn,
		Attributes: map[string]string{
			"recipient": hexAddr(to),
			"amount":    amountString(amount),
		},
	}
}

// PauseToggledEvent returns the payload for a pause or unpause.
func PauseToggledEvent(caller [20]byte, paused bool) *types.Event {
	eventType := EventTypeUnpaused
	if paused {
		eventType = EventTypePaused
	}
	return &types.Event{
		Type:       eventType,
		Attributes: map[string]string{"module": ModuleName, "caller": hexAddr(caller)},
	}
}
