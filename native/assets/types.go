package assets

import (
	"fmt"
	"math/big"
	"strings"
)

// Category classifies what is being sold.
type Category uint8

const (
	CategoryUnknown Category = iota
	// CategoryDigital is a tokenized unit held by a custody collection.
	CategoryDigital
	// CategoryPhysical is an off-chain good backed by a content proof.
	CategoryPhysical
	// CategoryRealWorld is an off-chain claim on a real-world asset.
	CategoryRealWorld
)

// Valid reports whether the category value is within the supported range.
func (c Category) Valid() bool {
	switch c {
	case CategoryDigital, CategoryPhysical, CategoryRealWorld:
		return true
	default:
		return false
	}
}

// OffChain reports whether the category is settled outside custody.
func (c Category) OffChain() bool {
	return c == CategoryPhysical || c == CategoryRealWorld
}

func (c Category) String() string {
	switch c {
	case CategoryDigital:
		return "digital"
	case CategoryPhysical:
		return "physical"
	case CategoryRealWorld:
		return "real_world"
	default:
		return "unknown"
	}
}

// ParseCategory maps the canonical string form back to a Category.
func ParseCategory(value string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "digital":
		return CategoryDigital, nil
	case "physical":
		return CategoryPhysical, nil
	case "real_world", "rwa":
		return CategoryRealWorld, nil
	default:
		return CategoryUnknown, fmt.Errorf("assets: unknown category %q", value)
	}
}

// Standard describes how a custody collection tracks ownership.
type Standard uint8

const (
	StandardNone Standard = iota
	// StandardSingle tracks exactly one owner per unit id.
	StandardSingle
	// StandardFractional tracks a quantity balance per holder per unit id.
	StandardFractional
)

func (s Standard) Valid() bool {
	return s == StandardSingle || s == StandardFractional
}

func (s Standard) String() string {
	switch s {
	case StandardSingle:
		return "single"
	case StandardFractional:
		return "fractional"
	default:
		return "none"
	}
}

// ParseStandard maps the canonical string form back to a Standard.
func ParseStandard(value string) (Standard, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return StandardNone, nil
	case "single", "erc721":
		return StandardSingle, nil
	case "fractional", "erc1155":
		return StandardFractional, nil
	default:
		return StandardNone, fmt.Errorf("assets: unknown standard %q", value)
	}
}

// AssetRef identifies the thing under auction. Tokenized references populate
// Collection, UnitID, Quantity and Standard; off-chain references populate
// ContentHash and MetadataURI and leave Collection zero.
type AssetRef struct {
	Category    Category
	Collection  [20]byte
	UnitID      *big.Int
	Quantity    uint64
	Standard    Standard
	ContentHash [32]byte
	MetadataURI string
}

// Tokenized reports whether the reference points at a custody collection.
func (r AssetRef) Tokenized() bool {
	return r.Collection != ([20]byte{})
}

// Clone returns a deep copy of the reference.
func (r AssetRef) Clone() AssetRef {
	clone := r
	if r.UnitID != nil {
		clone.UnitID = new(big.Int).Set(r.UnitID)
	} else {
		clone.UnitID = big.NewInt(0)
	}
	return clone
}

// Collection is a custody contract registered with the registry.
type Collection struct {
	Address         [20]byte
	Name            string
	Standard        Standard
	Creator         [20]byte
	RoyaltyReceiver [20]byte
	RoyaltyBps      uint32
}

// Clone returns a copy of the collection.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
