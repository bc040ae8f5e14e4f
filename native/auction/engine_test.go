package auction

import (
	"errors"
	"math/big"
	"testing"

	"nhbmarket/core/events"
	"nhbmarket/crypto"
	"nhbmarket/native/assets"
	"nhbmarket/native/bank"
	"nhbmarket/native/common"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
	"nhbmarket/storage"
)

const (
	unit      = int64(1_000_000)
	startTime = int64(1_700_000_000)
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

var (
	sellerAddr     = addr(0x11)
	aliceAddr      = addr(0xA1)
	bobAddr        = addr(0xB0)
	carolAddr      = addr(0xC1)
	treasuryAddr   = addr(0xFE)
	royaltyAddr    = addr(0x77)
	adminAddr      = addr(0xAD)
	singleColl     = addr(0x10)
	fractionalColl = addr(0x20)
)

type fatalf interface {
	Fatalf(format string, args ...interface{})
}

type harness struct {
	t        fatalf
	journal  *storage.Journal
	store    *Store
	engine   *Engine
	bank     *bank.Ledger
	registry *assets.Registry
	splitter *fees.Splitter
	holdings *escrow.Engine
	roles    *common.RoleRegistry
	rec      *events.Recorder
	vault    [20]byte
	now      int64
}

func newHarness(t fatalf) *harness {
	journal := storage.NewJournal(storage.NewMemDB())
	h := &harness{
		t:       t,
		journal: journal,
		store:   NewStore(journal),
		rec:     &events.Recorder{},
		vault:   crypto.ModuleAddress(ModuleName),
		now:     startTime,
	}
	h.bank = bank.NewLedger(journal)
	h.registry = assets.NewRegistry(journal)
	h.registry.SetVault(h.vault)
	if err := h.registry.RegisterCollection(&assets.Collection{Address: singleColl, Name: "art", Standard: assets.StandardSingle, RoyaltyReceiver: royaltyAddr, RoyaltyBps: 500}); err != nil {
		t.Fatalf("register single: %v", err)
	}
	if err := h.registry.RegisterCollection(&assets.Collection{Address: fractionalColl, Name: "shares", Standard: assets.StandardFractional}); err != nil {
		t.Fatalf("register fractional: %v", err)
	}
	splitter, err := fees.NewSplitter(h.bank, h.registry, h.vault, treasuryAddr, 250)
	if err != nil {
		t.Fatalf("splitter: %v", err)
	}
	h.splitter = splitter
	h.holdings = escrow.NewEngine(journal)
	h.holdings.SetNowFunc(func() int64 { return h.now })
	h.roles = common.NewRoleRegistry(journal)

	h.engine = NewEngine()
	h.engine.SetState(h.store)
	h.engine.SetNowFunc(func() int64 { return h.now })
	h.engine.SetVault(h.vault)
	h.engine.SetBank(h.bank)
	h.engine.SetCustody(h.registry)
	h.engine.SetPayments(h.splitter)
	h.engine.SetEscrow(h.holdings)
	h.engine.SetPauses(common.NewPauseRegistry(journal))
	h.engine.SetAuthorizer(h.roles)
	h.engine.SetEmitter(h.rec)

	for _, who := range [][20]byte{aliceAddr, bobAddr, carolAddr} {
		if err := h.bank.Credit(who, big.NewInt(1_000_000*unit)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	return h
}

func (h *harness) balance(who [20]byte) *big.Int {
	bal, err := h.bank.Balance(who)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (h *harness) mintSingle(unitID int64) assets.AssetRef {
	ref := assets.AssetRef{Collection: singleColl, UnitID: big.NewInt(unitID), Quantity: 1}
	if err := h.registry.Mint(singleColl, ref.UnitID, sellerAddr, 1); err != nil {
		h.t.Fatalf("mint: %v", err)
	}
	if err := h.registry.SetApprovalForAll(singleColl, sellerAddr, h.vault, true); err != nil {
		h.t.Fatalf("approve: %v", err)
	}
	return ref
}

func (h *harness) createSingle(unitID int64, reserve int64, duration int64) uint64 {
	id, err := h.engine.CreateAuction(sellerAddr, CreateRequest{
		Asset:        h.mintSingle(unitID),
		ReservePrice: big.NewInt(reserve),
		Duration:     duration,
	})
	if err != nil {
		h.t.Fatalf("create auction: %v", err)
	}
	return id
}

func (h *harness) owner(ref assets.AssetRef) [20]byte {
	owner, err := h.registry.OwnerOf(ref)
	if err != nil {
		h.t.Fatalf("owner: %v", err)
	}
	return owner
}

func (h *harness) mustBid(bidder [20]byte, id uint64, amount int64) {
	if err := h.engine.PlaceBid(bidder, id, big.NewInt(amount)); err != nil {
		h.t.Fatalf("bid %d: %v", amount, err)
	}
}

func (h *harness) pending(who [20]byte) *big.Int {
	owed, err := h.engine.PendingRefund(who)
	if err != nil {
		h.t.Fatalf("pending refund: %v", err)
	}
	return owed
}

func (h *harness) hasEvent(eventType string) bool {
	for _, got := range h.rec.Types() {
		if got == eventType {
			return true
		}
	}
	return false
}

func TestCreateAuctionEscrowsAsset(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, unit, 7*day)
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}
	a, err := h.engine.GetAuction(id)
	if err != nil {
		t.Fatalf("get auction: %v", err)
	}
	if !a.Active || a.Settled || a.Status != StatusActive || a.HasBid() || a.HighestBid.Sign() != 0 {
		t.Fatalf("unexpected initial state %+v", a)
	}
	if a.StartTime != startTime || a.EndTime != startTime+7*day {
		t.Fatalf("unexpected schedule %d-%d", a.StartTime, a.EndTime)
	}
	if a.BidIncrementBps != DefaultParams().DefaultBidIncrementBps {
		t.Fatalf("expected default increment, got %d", a.BidIncrementBps)
	}
	if a.Asset.Category != assets.CategoryDigital || a.Asset.Standard != assets.StandardSingle {
		t.Fatalf("asset not normalised: %+v", a.Asset)
	}
	if h.owner(a.Asset) != h.vault {
		t.Fatalf("expected vault custody")
	}
	ids, _ := h.engine.SellerAuctions(sellerAddr)
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected seller index %v", ids)
	}
	if second := h.createSingle(2, 0, day); second != 2 {
		t.Fatalf("expected sequential id 2, got %d", second)
	}
	if !h.hasEvent(EventTypeAuctionCreated) || !h.hasEvent(EventTypeAssetEscrowed) {
		t.Fatalf("missing creation events %v", h.rec.Types())
	}
}

func TestCreateAuctionValidation(t *testing.T) {
	h := newHarness(t)
	ref := h.mintSingle(1)
	offChain := assets.AssetRef{Category: assets.CategoryPhysical, ContentHash: [32]byte{1}, MetadataURI: "ipfs://watch"}
	cases := []struct {
		name string
		from [20]byte
		req  CreateRequest
		want error
	}{
		{"too short", sellerAddr, CreateRequest{Asset: ref, Duration: 60}, ErrInvalidDuration},
		{"too long", sellerAddr, CreateRequest{Asset: ref, Duration: 31 * day}, ErrInvalidDuration},
		{"increment", sellerAddr, CreateRequest{Asset: ref, Duration: day, BidIncrementBps: 10_001}, ErrInvalidIncrement},
		{"negative reserve", sellerAddr, CreateRequest{Asset: ref, Duration: day, ReservePrice: big.NewInt(-1)}, ErrInvalidReserve},
		{"single quantity", sellerAddr, CreateRequest{Asset: assets.AssetRef{Collection: singleColl, UnitID: big.NewInt(1), Quantity: 2}, Duration: day}, ErrInvalidQuantity},
		{"not owner", aliceAddr, CreateRequest{Asset: ref, Duration: day}, assets.ErrNotOwner},
		{"missing proof", sellerAddr, CreateRequest{Asset: assets.AssetRef{Category: assets.CategoryPhysical, ContentHash: [32]byte{1}}, Duration: day}, ErrMissingAssetProof},
		{"mixed shape", sellerAddr, CreateRequest{Asset: assets.AssetRef{Collection: singleColl, UnitID: big.NewInt(1), Quantity: 1, ContentHash: [32]byte{1}}, Duration: day}, ErrInvalidAsset},
		{"off-chain digital", sellerAddr, CreateRequest{Asset: assets.AssetRef{Category: assets.CategoryDigital, ContentHash: [32]byte{1}, MetadataURI: "x"}, Duration: day}, ErrInvalidAsset},
		{"unknown collection", sellerAddr, CreateRequest{Asset: assets.AssetRef{Collection: addr(0x99), UnitID: big.NewInt(1), Quantity: 1}, Duration: day}, assets.ErrCollectionNotFound},
		{"standard mismatch", sellerAddr, CreateRequest{Asset: assets.AssetRef{Collection: singleColl, UnitID: big.NewInt(1), Quantity: 1, Standard: assets.StandardFractional}, Duration: day}, assets.ErrStandardMismatch},
	}
	for _, tc := range cases {
		if _, err := h.engine.CreateAuction(tc.from, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if ids, _ := h.engine.SellerAuctions(sellerAddr); len(ids) != 0 {
		t.Fatalf("failed creations must not be indexed: %v", ids)
	}
	if h.owner(ref) != sellerAddr {
		t.Fatalf("failed creations must not move the asset")
	}
	if _, err := h.engine.CreateAuction(sellerAddr, CreateRequest{Asset: offChain, Duration: day}); err != nil {
		t.Fatalf("off-chain create: %v", err)
	}
}

func TestCreateAuctionRequiresVaultApproval(t *testing.T) {
	h := newHarness(t)
	ref := assets.AssetRef{Collection: singleColl, UnitID: big.NewInt(9), Quantity: 1}
	if err := h.registry.Mint(singleColl, ref.UnitID, sellerAddr, 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := h.engine.CreateAuction(sellerAddr, CreateRequest{Asset: ref, Duration: day}); !errors.Is(err, assets.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestCreateAuctionFractionalQuantity(t *testing.T) {
	h := newHarness(t)
	unitID := big.NewInt(3)
	if err := h.registry.Mint(fractionalColl, unitID, sellerAddr, 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.registry.SetApprovalForAll(fractionalColl, sellerAddr, h.vault, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	over := assets.AssetRef{Collection: fractionalColl, UnitID: unitID, Quantity: 11}
	if _, err := h.engine.CreateAuction(sellerAddr, CreateRequest{Asset: over, Duration: day}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	zero := assets.AssetRef{Collection: fractionalColl, UnitID: unitID}
	if _, err := h.engine.CreateAuction(sellerAddr, CreateRequest{Asset: zero, Duration: day}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity for zero, got %v", err)
	}
	ref := assets.AssetRef{Collection: fractionalColl, UnitID: unitID, Quantity: 4}
	id, err := h.engine.CreateAuction(sellerAddr, CreateRequest{Asset: ref, Duration: day})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if bal, _ := h.registry.BalanceOf(ref, h.vault); bal != 4 {
		t.Fatalf("expected 4 units escrowed, got %d", bal)
	}
	if err := h.engine.CancelAuction(sellerAddr, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if bal, _ := h.registry.BalanceOf(ref, sellerAddr); bal != 10 {
		t.Fatalf("expected all units back, got %d", bal)
	}
}

func TestBidIncrementScenario(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, unit, 7*day)
	aliceStart := h.balance(aliceAddr)

	h.mustBid(aliceAddr, id, unit)
	if err := h.engine.PlaceBid(bobAddr, id, big.NewInt(1_020_000)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow, got %v", err)
	}
	if min, _ := h.engine.MinimumBid(id); min.Cmp(big.NewInt(1_050_000)) != 0 {
		t.Fatalf("expected minimum 1.05, got %s", min)
	}
	h.mustBid(bobAddr, id, 1_100_000)
	if h.balance(aliceAddr).Cmp(aliceStart) != 0 {
		t.Fatalf("alice should be refunded immediately")
	}
	if h.pending(aliceAddr).Sign() != 0 {
		t.Fatalf("no refund should be queued")
	}
	if !h.hasEvent(EventTypeRefundDelivered) {
		t.Fatalf("missing refund delivered event")
	}

	if _, err := h.engine.EndAuction(id); !errors.Is(err, ErrNotEnded) {
		t.Fatalf("expected ErrNotEnded, got %v", err)
	}
	h.now += 7 * day
	status, err := h.engine.EndAuction(id)
	if err != nil {
		t.Fatalf("end auction: %v", err)
	}
	if status != StatusSold {
		t.Fatalf("expected sold, got %s", status)
	}
	a, _ := h.engine.GetAuction(id)
	if h.owner(a.Asset) != bobAddr {
		t.Fatalf("asset should belong to the winner")
	}
	if got := h.balance(treasuryAddr); got.Cmp(big.NewInt(27_500)) != 0 {
		t.Fatalf("unexpected platform fee %s", got)
	}
	if got := h.balance(royaltyAddr); got.Cmp(big.NewInt(55_000)) != 0 {
		t.Fatalf("unexpected royalty %s", got)
	}
	if got := h.balance(sellerAddr); got.Cmp(big.NewInt(1_017_500)) != 0 {
		t.Fatalf("unexpected seller net %s", got)
	}
	if h.balance(h.vault).Sign() != 0 {
		t.Fatalf("vault should be empty after settlement")
	}
	if _, err := h.engine.EndAuction(id); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	if err := h.engine.PlaceBid(carolAddr, id, big.NewInt(10*unit)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestPlaceBidValidation(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	if err := h.engine.PlaceBid(aliceAddr, 42, big.NewInt(unit)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := h.engine.PlaceBid(sellerAddr, id, big.NewInt(unit)); !errors.Is(err, ErrSellerCannotBid) {
		t.Fatalf("expected ErrSellerCannotBid, got %v", err)
	}
	if err := h.engine.PlaceBid(aliceAddr, id, big.NewInt(0)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow for zero bid, got %v", err)
	}
	poor := addr(0x05)
	if err := h.engine.PlaceBid(poor, id, big.NewInt(unit)); !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if a, _ := h.engine.GetAuction(id); a.HasBid() {
		t.Fatalf("failed bid must not change state")
	}
	h.mustBid(aliceAddr, id, 1)
	h.mustBid(aliceAddr, id, 2)
	if ids, _ := h.engine.BidderAuctions(aliceAddr); len(ids) != 1 || ids[0] != id {
		t.Fatalf("repeat bids must not duplicate the bidder index: %v", ids)
	}
	h.now += day
	if err := h.engine.PlaceBid(bobAddr, id, big.NewInt(unit)); !errors.Is(err, ErrEnded) {
		t.Fatalf("expected ErrEnded, got %v", err)
	}
}

func TestAntiSnipeExtension(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, hour)
	params := h.engine.Params()

	h.now += hour - params.ExtensionThreshold - 1
	h.mustBid(aliceAddr, id, unit)
	a, _ := h.engine.GetAuction(id)
	if a.EndTime != startTime+hour {
		t.Fatalf("bid before the threshold must not extend, got %d", a.EndTime)
	}

	h.now += 100
	h.mustBid(bobAddr, id, 2*unit)
	a, _ = h.engine.GetAuction(id)
	if a.EndTime != h.now+params.ExtensionWindow {
		t.Fatalf("expected extension to %d, got %d", h.now+params.ExtensionWindow, a.EndTime)
	}
	if ended, _ := h.engine.HasEnded(id); ended {
		t.Fatalf("auction should not have ended")
	}
	if active, _ := h.engine.IsActive(id); !active {
		t.Fatalf("auction should be active")
	}
	h.now = a.EndTime
	if active, _ := h.engine.IsActive(id); active {
		t.Fatalf("auction past end time must not report active")
	}
}

func TestRejectingBidderRefundQueuedThenWithdrawn(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	aliceStart := h.balance(aliceAddr)
	rejecting := true
	h.bank.SetReceiver(aliceAddr, func([20]byte, *big.Int) error {
		if rejecting {
			return errors.New("no thanks")
		}
		return nil
	})

	h.mustBid(aliceAddr, id, 3*unit)
	h.mustBid(bobAddr, id, 4*unit)
	if got := h.pending(aliceAddr); got.Cmp(big.NewInt(3*unit)) != 0 {
		t.Fatalf("expected queued refund of 3, got %s", got)
	}
	if !h.hasEvent(EventTypeRefundQueued) {
		t.Fatalf("missing refund queued event")
	}

	if _, err := h.engine.Withdraw(aliceAddr); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if got := h.pending(aliceAddr); got.Cmp(big.NewInt(3*unit)) != 0 {
		t.Fatalf("failed withdraw must restore the ledger, got %s", got)
	}

	rejecting = false
	paid, err := h.engine.Withdraw(aliceAddr)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid.Cmp(big.NewInt(3*unit)) != 0 {
		t.Fatalf("unexpected payout %s", paid)
	}
	if h.pending(aliceAddr).Sign() != 0 || h.balance(aliceAddr).Cmp(aliceStart) != 0 {
		t.Fatalf("withdraw should zero the ledger and restore the balance")
	}
	if _, err := h.engine.Withdraw(aliceAddr); !errors.Is(err, ErrNoBalance) {
		t.Fatalf("expected ErrNoBalance, got %v", err)
	}
}

func TestReentrantBidDuringRefundIsRejected(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	var reentryErr error
	h.bank.SetReceiver(aliceAddr, func([20]byte, *big.Int) error {
		reentryErr = h.engine.PlaceBid(aliceAddr, id, big.NewInt(100*unit))
		return reentryErr
	})

	h.mustBid(aliceAddr, id, unit)
	h.mustBid(bobAddr, id, 2*unit)
	if !errors.Is(reentryErr, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall from the receive step, got %v", reentryErr)
	}
	a, _ := h.engine.GetAuction(id)
	if a.HighestBidder != bobAddr || a.HighestBid.Cmp(big.NewInt(2*unit)) != 0 {
		t.Fatalf("re-entrant bid must not change state: %+v", a)
	}
	if got := h.pending(aliceAddr); got.Cmp(big.NewInt(unit)) != 0 {
		t.Fatalf("expected queued refund, got %s", got)
	}
}

func TestReentrantWithdrawDuringPayout(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	rejecting := true
	var reentryErr error
	h.bank.SetReceiver(aliceAddr, func([20]byte, *big.Int) error {
		if rejecting {
			return errors.New("offline")
		}
		_, reentryErr = h.engine.Withdraw(aliceAddr)
		return nil
	})
	h.mustBid(aliceAddr, id, unit)
	h.mustBid(bobAddr, id, 2*unit)
	rejecting = false
	before := h.balance(aliceAddr)
	if _, err := h.engine.Withdraw(aliceAddr); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !errors.Is(reentryErr, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", reentryErr)
	}
	if got := new(big.Int).Sub(h.balance(aliceAddr), before); got.Cmp(big.NewInt(unit)) != 0 {
		t.Fatalf("refund must be paid exactly once, got %s", got)
	}
}

func TestEndAuctionWithoutBids(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, unit, day)
	h.now += day
	status, err := h.engine.EndAuction(id)
	if err != nil || status != StatusReturnedNoBids {
		t.Fatalf("expected returned no bids, got %s (%v)", status, err)
	}
	a, _ := h.engine.GetAuction(id)
	if a.Active || !a.Settled || h.owner(a.Asset) != sellerAddr {
		t.Fatalf("unexpected terminal state %+v", a)
	}
	if !h.hasEvent(EventTypeAuctionCancelled) {
		t.Fatalf("missing cancellation event")
	}
}

func TestEndAuctionReserveNotMet(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	aliceStart := h.balance(aliceAddr)
	h.mustBid(aliceAddr, id, 3*unit)

	// Raise the reserve above the standing bid to reach the unmet branch.
	a, _ := h.engine.GetAuction(id)
	a.ReservePrice = big.NewInt(5 * unit)
	if err := h.store.AuctionPut(a); err != nil {
		t.Fatalf("put: %v", err)
	}

	h.now += day
	status, err := h.engine.EndAuction(id)
	if err != nil {
		t.Fatalf("end auction: %v", err)
	}
	if status != StatusReturnedReserveNotMet {
		t.Fatalf("expected reserve not met, got %s", status)
	}
	a, _ = h.engine.GetAuction(id)
	if h.owner(a.Asset) != sellerAddr {
		t.Fatalf("asset must return to seller")
	}
	if h.balance(aliceAddr).Cmp(aliceStart) != 0 {
		t.Fatalf("bidder must be refunded")
	}
	if h.balance(sellerAddr).Sign() != 0 || h.balance(treasuryAddr).Sign() != 0 {
		t.Fatalf("no proceeds may be disbursed")
	}
	if !h.hasEvent(EventTypeReserveNotMet) {
		t.Fatalf("missing reserve not met event")
	}
}

func TestEndAuctionAdapterFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	h.mustBid(aliceAddr, id, unit)
	h.bank.SetReceiver(sellerAddr, func([20]byte, *big.Int) error { return errors.New("seller offline") })
	h.now += day
	if _, err := h.engine.EndAuction(id); !errors.Is(err, fees.ErrDisbursement) {
		t.Fatalf("expected ErrDisbursement, got %v", err)
	}
	a, _ := h.engine.GetAuction(id)
	if a.Settled || !a.Active || h.owner(a.Asset) != h.vault {
		t.Fatalf("failed settlement must leave the auction untouched: %+v", a)
	}
	if h.balance(treasuryAddr).Sign() != 0 {
		t.Fatalf("partial disbursement must be reverted")
	}
	h.bank.SetReceiver(sellerAddr, nil)
	if status, err := h.engine.EndAuction(id); err != nil || status != StatusSold {
		t.Fatalf("retry should settle, got %s (%v)", status, err)
	}
}

func TestOffChainSaleOpensHolding(t *testing.T) {
	h := newHarness(t)
	ref := assets.AssetRef{Category: assets.CategoryRealWorld, ContentHash: [32]byte{0xAB}, MetadataURI: "ipfs://deed"}
	id, err := h.engine.CreateAuction(sellerAddr, CreateRequest{Asset: ref, ReservePrice: big.NewInt(unit), Duration: day})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.mustBid(aliceAddr, id, 2*unit)
	h.now += day
	if status, err := h.engine.EndAuction(id); err != nil || status != StatusSold {
		t.Fatalf("expected sold, got %s (%v)", status, err)
	}
	a, _ := h.engine.GetAuction(id)
	if a.HoldingID == ([32]byte{}) {
		t.Fatalf("expected holding id")
	}
	holding, err := h.holdings.Get(a.HoldingID)
	if err != nil {
		t.Fatalf("holding: %v", err)
	}
	if holding.Buyer != aliceAddr || holding.Seller != sellerAddr || holding.Amount.Cmp(big.NewInt(2*unit)) != 0 {
		t.Fatalf("unexpected holding %+v", holding)
	}
	if got := h.balance(sellerAddr); got.Cmp(big.NewInt(1_950_000)) != 0 {
		t.Fatalf("off-chain sale pays no royalty, got seller net %s", got)
	}
}

func TestCancelAuction(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	if err := h.engine.CancelAuction(aliceAddr, id); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}
	if err := h.engine.CancelAuction(sellerAddr, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	a, _ := h.engine.GetAuction(id)
	if a.Status != StatusCancelled || h.owner(a.Asset) != sellerAddr {
		t.Fatalf("unexpected cancelled state %+v", a)
	}
	if err := h.engine.CancelAuction(sellerAddr, id); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	h.now += day
	if _, err := h.engine.EndAuction(id); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled after cancel, got %v", err)
	}

	withBid := h.createSingle(2, 0, day)
	h.mustBid(aliceAddr, withBid, unit)
	if err := h.engine.CancelAuction(sellerAddr, withBid); !errors.Is(err, ErrHasBids) {
		t.Fatalf("expected ErrHasBids, got %v", err)
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	aliceStart := h.balance(aliceAddr)
	h.mustBid(aliceAddr, id, unit)
	delay := h.engine.Params().EmergencyDelay

	h.now += day + delay - 1
	if err := h.engine.EmergencyWithdraw(aliceAddr, id); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly, got %v", err)
	}
	h.now++
	if err := h.engine.EmergencyWithdraw(carolAddr, id); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := h.engine.EmergencyWithdraw(aliceAddr, id); err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	a, _ := h.engine.GetAuction(id)
	if a.Status != StatusEmergencyClosed || a.Active || !a.Settled {
		t.Fatalf("unexpected state %+v", a)
	}
	if h.owner(a.Asset) != sellerAddr || h.balance(aliceAddr).Cmp(aliceStart) != 0 {
		t.Fatalf("asset and deposit must be returned")
	}
	if _, err := h.engine.EndAuction(id); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	if err := h.engine.EmergencyWithdraw(sellerAddr, id); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	if !h.hasEvent(EventTypeEmergencyClosed) {
		t.Fatalf("missing emergency event")
	}
}

func TestPausePolicy(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 0, day)
	h.mustBid(aliceAddr, id, unit)
	if err := h.engine.Pause(adminAddr); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := h.roles.Grant(common.RolePauser, adminAddr); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := h.engine.Pause(adminAddr); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !h.engine.Paused() {
		t.Fatalf("expected paused module")
	}
	_, err := h.engine.CreateAuction(sellerAddr, CreateRequest{Asset: h.mintSingle(2), Duration: day})
	if !errors.Is(err, ErrPaused) || !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if err := h.engine.PlaceBid(bobAddr, id, big.NewInt(2*unit)); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused for bids, got %v", err)
	}
	h.now += day
	if status, err := h.engine.EndAuction(id); err != nil || status != StatusSold {
		t.Fatalf("settlement must stay available while paused, got %s (%v)", status, err)
	}
	if err := h.engine.Unpause(adminAddr); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if !h.hasEvent(EventTypePaused) || !h.hasEvent(EventTypeUnpaused) {
		t.Fatalf("missing pause events %v", h.rec.Types())
	}
}

func TestQuerySurface(t *testing.T) {
	h := newHarness(t)
	id := h.createSingle(1, 2*unit, day)
	if _, err := h.engine.GetAuction(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.engine.MinimumBid(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.engine.CalculatePaymentDistribution(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if min, _ := h.engine.MinimumBid(id); min.Cmp(big.NewInt(2*unit)) != 0 {
		t.Fatalf("expected reserve as minimum, got %s", min)
	}
	dist, err := h.engine.CalculatePaymentDistribution(id)
	if err != nil || dist.Gross.Sign() != 0 || dist.SellerNet.Sign() != 0 {
		t.Fatalf("expected zero projection, got %+v (%v)", dist, err)
	}
	h.mustBid(aliceAddr, id, 2*unit)
	dist, err = h.engine.CalculatePaymentDistribution(id)
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if dist.PlatformFee.Cmp(big.NewInt(50_000)) != 0 || dist.RoyaltyFee.Cmp(big.NewInt(100_000)) != 0 || dist.SellerNet.Cmp(big.NewInt(1_850_000)) != 0 {
		t.Fatalf("unexpected projection %+v", dist)
	}
	if dist.RoyaltyRecipient != royaltyAddr || dist.Treasury != treasuryAddr {
		t.Fatalf("unexpected recipients %+v", dist)
	}
	if bids, _ := h.engine.BidderAuctions(aliceAddr); len(bids) != 1 {
		t.Fatalf("unexpected bidder index %v", bids)
	}
	if none, _ := h.engine.BidderAuctions(bobAddr); len(none) != 0 {
		t.Fatalf("unexpected bidder index for bob %v", none)
	}
}

func TestSetParamsValidates(t *testing.T) {
	e := NewEngine()
	bad := DefaultParams()
	bad.MaxDuration = bad.MinDuration - 1
	if err := e.SetParams(bad); err == nil {
		t.Fatalf("expected validation error")
	}
	good := DefaultParams()
	good.ExtensionWindow = 20 * 60
	if err := e.SetParams(good); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if e.Params().ExtensionWindow != 20*60 {
		t.Fatalf("params not applied")
	}
	if _, err := e.GetAuction(1); err == nil {
		t.Fatalf("expected error without state")
	}
}
