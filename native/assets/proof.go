package assets

import (
	"errors"
	"strings"

	"lukechampine.com/blake3"
)

// Errors returned while building off-chain references.
var (
	ErrEmptyProof      = errors.New("assets: empty proof document")
	ErrInvalidCategory = errors.New("assets: category is not off-chain")
)

// HashProof derives the content hash recorded for an off-chain asset from its
// proof document.
func HashProof(doc []byte) [32]byte {
	return blake3.Sum256(doc)
}

// OffChainRef builds the reference for a physical or real-world asset backed
// by doc.
func OffChainRef(category Category, doc []byte, metadataURI string) (AssetRef, error) {
	if !category.OffChain() {
		return AssetRef{}, ErrInvalidCategory
	}
	if len(doc) == 0 {
		return AssetRef{}, ErrEmptyProof
	}
	return AssetRef{
		Category:    category,
		ContentHash: HashProof(doc),
		MetadataURI: strings.TrimSpace(metadataURI),
	}, nil
}
