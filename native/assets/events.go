package assets

import (
	"encoding/hex"
	"strconv"

	"nhbmarket/core/types"
)

const EventTypeAssetTransfer = "assets.transfer"

// TransferEvent records a custody movement of tokenized units.
type TransferEvent struct {
	Ref  AssetRef
	From [20]byte
	To   [20]byte
}

func (TransferEvent) EventType() string { return EventTypeAssetTransfer }

func (e TransferEvent) Event() *types.Event {
	unit := "0"
	if e.Ref.UnitID != nil {
		unit = e.Ref.UnitID.String()
	}
	return &types.Event{
		Type: EventTypeAssetTransfer,
		Attributes: map[string]string{
			"collection": hex.EncodeToString(e.Ref.Collection[:]),
			"unitId":     unit,
			"quantity":   strconv.FormatUint(e.Ref.Quantity, 10),
			"from":       hex.EncodeToString(e.From[:]),
			"to":         hex.EncodeToString(e.To[:]),
		},
	}
}
