package escrow

import (
	"encoding/hex"
	"strconv"

	"nhbmarket/core/types"
)

const (
	EventTypeHoldingOpened    = "escrow.holding_opened"
	EventTypeHoldingDelivered = "escrow.holding_delivered"
)

type holdingEvent struct {
	evt *types.Event
}

func (e holdingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e holdingEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(holdingEvent{evt: event})
}

// NewHoldingOpenedEvent returns the canonical payload for a new holding.
func NewHoldingOpenedEvent(h *Holding) *types.Event {
	return newHoldingEvent(EventTypeHoldingOpened, h)
}

// NewHoldingDeliveredEvent returns the canonical payload emitted when the buyer
// confirms delivery.
func NewHoldingDeliveredEvent(h *Holding) *types.Event {
	return newHoldingEvent(EventTypeHoldingDelivered, h)
}

func newHoldingEvent(eventType string, h *Holding) *types.Event {
	attrs := make(map[string]string)
	if h == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeHolding(h)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["auctionId"] = strconv.FormatUint(sanitized.AuctionID, 10)
	attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["contentHash"] = hex.EncodeToString(sanitized.ContentHash[:])
	attrs["amount"] = sanitized.Amount.String()
	attrs["status"] = sanitized.Status.String()
	if sanitized.MetadataURI != "" {
		attrs["metadataUri"] = sanitized.MetadataURI
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
