package auction

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"

	"nhbmarket/native/assets"
	"nhbmarket/storage"
)

var (
	keySequence     = []byte("auction/seq")
	prefixRecord    = "auction/record/"
	prefixRefund    = "auction/refund/"
	prefixSeller    = "auction/seller/"
	prefixBidder    = "auction/bidder/"
	prefixBidMarker = "auction/bid-marker/"
)

// storedAuction is the RLP layout of an Auction. RLP has no signed integers
// so timestamps are persisted as uint64.
type storedAuction struct {
	ID              uint64
	Seller          [20]byte
	Asset           assets.AssetRef
	ReservePrice    *big.Int
	StartTime       uint64
	EndTime         uint64
	BidIncrementBps uint32
	HighestBid      *big.Int
	HighestBidder   [20]byte
	Active          bool
	Settled         bool
	Status          uint8
	HoldingID       [32]byte
}

func newStoredAuction(a *Auction) *storedAuction {
	return &storedAuction{
		ID:              a.ID,
		Seller:          a.Seller,
		Asset:           a.Asset.Clone(),
		ReservePrice:    newBigInt(a.ReservePrice),
		StartTime:       uint64(a.StartTime),
		EndTime:         uint64(a.EndTime),
		BidIncrementBps: a.BidIncrementBps,
		HighestBid:      newBigInt(a.HighestBid),
		HighestBidder:   a.HighestBidder,
		Active:          a.Active,
		Settled:         a.Settled,
		Status:          uint8(a.Status),
		HoldingID:       a.HoldingID,
	}
}

func (s *storedAuction) toAuction() *Auction {
	return &Auction{
		ID:              s.ID,
		Seller:          s.Seller,
		Asset:           s.Asset.Clone(),
		ReservePrice:    newBigInt(s.ReservePrice),
		StartTime:       int64(s.StartTime),
		EndTime:         int64(s.EndTime),
		BidIncrementBps: s.BidIncrementBps,
		HighestBid:      newBigInt(s.HighestBid),
		HighestBidder:   s.HighestBidder,
		Active:          s.Active,
		Settled:         s.Settled,
		Status:          Status(s.Status),
		HoldingID:       s.HoldingID,
	}
}

// Store persists auction records, the refund ledger and the seller/bidder
// indices in the journal. It is the engine's only writer of that state.
type Store struct {
	journal *storage.Journal
}

// NewStore binds a store to the journal.
func NewStore(journal *storage.Journal) *Store {
	return &Store{journal: journal}
}

func addrKey(prefix string, addr [20]byte) []byte {
	return []byte(prefix + hex.EncodeToString(addr[:]))
}

func recordKey(id uint64) []byte {
	return []byte(prefixRecord + strconv.FormatUint(id, 10))
}

func bidMarkerKey(id uint64, addr [20]byte) []byte {
	return []byte(prefixBidMarker + strconv.FormatUint(id, 10) + "/" + hex.EncodeToString(addr[:]))
}

func (s *Store) ready() error {
	if s == nil || s.journal == nil {
		return errNilState
	}
	return nil
}

// Snapshot implements engineState.
func (s *Store) Snapshot() int { return s.journal.Snapshot() }

// RevertToSnapshot implements engineState.
func (s *Store) RevertToSnapshot(id int) { s.journal.RevertToSnapshot(id) }

// AuctionNextID reserves and returns the next identifier. Identifiers start at
// one and are never reused.
func (s *Store) AuctionNextID() (uint64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var seq uint64
	if _, err := s.journal.GetRLP(keySequence, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := s.journal.PutRLP(keySequence, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// AuctionGet loads a record.
func (s *Store) AuctionGet(id uint64) (*Auction, bool, error) {
	if err := s.ready(); err != nil {
		return nil, false, err
	}
	var stored storedAuction
	ok, err := s.journal.GetRLP(recordKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toAuction(), true, nil
}

// AuctionPut writes a record.
func (s *Store) AuctionPut(a *Auction) error {
	if err := s.ready(); err != nil {
		return err
	}
	if a == nil {
		return errors.New("auction store: nil record")
	}
	return s.journal.PutRLP(recordKey(a.ID), newStoredAuction(a))
}

// AuctionRefundGet returns the undelivered balance owed to addr.
func (s *Store) AuctionRefundGet(addr [20]byte) (*big.Int, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	amount := new(big.Int)
	ok, err := s.journal.GetRLP(addrKey(prefixRefund, addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// AuctionRefundPut stores the balance owed to addr. A zero balance removes the
// entry.
func (s *Store) AuctionRefundPut(addr [20]byte, amount *big.Int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return s.journal.Delete(addrKey(prefixRefund, addr))
	}
	if amount.Sign() < 0 {
		return errors.New("auction store: negative refund balance")
	}
	return s.journal.PutRLP(addrKey(prefixRefund, addr), amount)
}

func (s *Store) index(prefix string, addr [20]byte) ([]uint64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var ids []uint64
	if _, err := s.journal.GetRLP(addrKey(prefix, addr), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) appendIndex(prefix string, addr [20]byte, id uint64) error {
	ids, err := s.index(prefix, addr)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	return s.journal.PutRLP(addrKey(prefix, addr), ids)
}

// AuctionSellerIndex lists the auctions created by addr in creation order.
func (s *Store) AuctionSellerIndex(addr [20]byte) ([]uint64, error) {
	return s.index(prefixSeller, addr)
}

// AuctionSellerIndexAppend records a new auction for addr.
func (s *Store) AuctionSellerIndexAppend(addr [20]byte, id uint64) error {
	return s.appendIndex(prefixSeller, addr, id)
}

// AuctionBidderIndex lists the auctions addr has bid on in first-bid order.
func (s *Store) AuctionBidderIndex(addr [20]byte) ([]uint64, error) {
	return s.index(prefixBidder, addr)
}

// AuctionBidderIndexAppend records that addr bid on id. Repeat bids on the same
// auction leave the index unchanged.
func (s *Store) AuctionBidderIndexAppend(addr [20]byte, id uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	var seen bool
	if _, err := s.journal.GetRLP(bidMarkerKey(id, addr), &seen); err != nil {
		return err
	}
	if seen {
		return nil
	}
	if err := s.journal.PutRLP(bidMarkerKey(id, addr), true); err != nil {
		return err
	}
	return s.appendIndex(prefixBidder, addr, id)
}
