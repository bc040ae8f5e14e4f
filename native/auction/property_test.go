package auction

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAuctionProperties(t *testing.T) {
	rapid.Check(t, rapid.Run(&auctionModel{}))
}

// auctionModel drives one auction with three bidders whose receive step can
// be toggled between accepting and rejecting payments.
type auctionModel struct {
	h       *harness
	id      uint64
	bidders [][20]byte
	reject  map[[20]byte]bool
	owed    map[[20]byte]*big.Int
	highest *big.Int
	lastEnd int64
	outcome Status
}

func (m *auctionModel) Init(t *rapid.T) {
	m.h = newHarness(t)
	m.bidders = [][20]byte{aliceAddr, bobAddr, carolAddr}
	m.reject = make(map[[20]byte]bool)
	m.owed = make(map[[20]byte]*big.Int)
	for _, b := range m.bidders {
		bidder := b
		m.owed[bidder] = big.NewInt(0)
		m.h.bank.SetReceiver(bidder, func([20]byte, *big.Int) error {
			if m.reject[bidder] {
				return errors.New("rejected")
			}
			return nil
		})
	}
	reserve := rapid.Int64Range(0, 10*unit).Draw(t, "reserve").(int64)
	m.id = m.h.createSingle(1, reserve, day)
	m.highest = big.NewInt(0)
	a, err := m.h.engine.GetAuction(m.id)
	require.NoError(t, err)
	m.lastEnd = a.EndTime
}

func (m *auctionModel) pick(t *rapid.T, label string) [20]byte {
	return m.bidders[rapid.IntRange(0, len(m.bidders)-1).Draw(t, label).(int)]
}

func (m *auctionModel) ended() bool {
	a, _ := m.h.engine.GetAuction(m.id)
	return m.h.now >= a.EndTime
}

func (m *auctionModel) Bid(t *rapid.T) {
	bidder := m.pick(t, "bidder")
	extra := rapid.Int64Range(0, unit).Draw(t, "extra").(int64)
	before, err := m.h.engine.GetAuction(m.id)
	require.NoError(t, err)
	min, err := m.h.engine.MinimumBid(m.id)
	require.NoError(t, err)
	amount := new(big.Int).Add(min, big.NewInt(extra))

	err = m.h.engine.PlaceBid(bidder, m.id, amount)
	switch {
	case m.outcome != 0:
		require.ErrorIs(t, err, ErrNotActive)
		return
	case m.ended():
		require.ErrorIs(t, err, ErrEnded)
		return
	}
	require.NoError(t, err)
	if before.HasBid() && m.reject[before.HighestBidder] {
		m.owed[before.HighestBidder].Add(m.owed[before.HighestBidder], before.HighestBid)
	}
	m.highest = amount
}

func (m *auctionModel) LowBid(t *rapid.T) {
	if m.outcome != 0 || m.ended() {
		return
	}
	bidder := m.pick(t, "bidder")
	min, err := m.h.engine.MinimumBid(m.id)
	require.NoError(t, err)
	err = m.h.engine.PlaceBid(bidder, m.id, new(big.Int).Sub(min, big.NewInt(1)))
	require.ErrorIs(t, err, ErrBidTooLow)
}

func (m *auctionModel) ToggleReject(t *rapid.T) {
	bidder := m.pick(t, "bidder")
	m.reject[bidder] = !m.reject[bidder]
}

func (m *auctionModel) Withdraw(t *rapid.T) {
	bidder := m.pick(t, "bidder")
	paid, err := m.h.engine.Withdraw(bidder)
	switch {
	case m.owed[bidder].Sign() == 0:
		require.ErrorIs(t, err, ErrNoBalance)
	case m.reject[bidder]:
		require.ErrorIs(t, err, ErrTransferFailed)
	default:
		require.NoError(t, err)
		require.Zero(t, paid.Cmp(m.owed[bidder]))
		m.owed[bidder] = big.NewInt(0)
	}
}

func (m *auctionModel) Advance(t *rapid.T) {
	m.h.now += rapid.Int64Range(0, 10*day).Draw(t, "advance").(int64)
}

func (m *auctionModel) Terminate(t *rapid.T) {
	before, err := m.h.engine.GetAuction(m.id)
	require.NoError(t, err)
	caller := sellerAddr
	if rapid.Bool().Draw(t, "bidderCalls").(bool) && before.HasBid() {
		caller = before.HighestBidder
	}
	var status Status
	switch rapid.IntRange(0, 2).Draw(t, "op").(int) {
	case 0:
		status, err = m.h.engine.EndAuction(m.id)
	case 1:
		err = m.h.engine.CancelAuction(caller, m.id)
		status = StatusCancelled
	default:
		err = m.h.engine.EmergencyWithdraw(caller, m.id)
		status = StatusEmergencyClosed
	}
	if m.outcome != 0 {
		require.ErrorIs(t, err, ErrAlreadySettled)
		return
	}
	if err != nil {
		after, getErr := m.h.engine.GetAuction(m.id)
		require.NoError(t, getErr)
		require.Equal(t, StatusActive, after.Status)
		return
	}
	m.outcome = status
	switch status {
	case StatusEmergencyClosed, StatusReturnedReserveNotMet:
		if before.HasBid() && m.reject[before.HighestBidder] {
			m.owed[before.HighestBidder].Add(m.owed[before.HighestBidder], before.HighestBid)
		}
	}
	m.highest = big.NewInt(0)
}

func (m *auctionModel) Check(t *rapid.T) {
	a, err := m.h.engine.GetAuction(m.id)
	require.NoError(t, err)
	require.GreaterOrEqual(t, a.EndTime, m.lastEnd)
	m.lastEnd = a.EndTime

	if m.outcome != 0 {
		require.Equal(t, m.outcome, a.Status)
		require.True(t, a.Settled)
		require.False(t, a.Active)
	} else {
		require.Equal(t, StatusActive, a.Status)
	}

	vaultExpected := new(big.Int).Set(m.highest)
	for _, b := range m.bidders {
		owed, err := m.h.engine.PendingRefund(b)
		require.NoError(t, err)
		require.Zero(t, owed.Cmp(m.owed[b]), "ledger mismatch for %x", b)
		vaultExpected.Add(vaultExpected, owed)
	}
	require.Zero(t, m.h.balance(m.h.vault).Cmp(vaultExpected))
}
