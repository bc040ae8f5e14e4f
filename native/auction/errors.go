package auction

import (
	"errors"
	"fmt"

	"nhbmarket/native/common"
)

var (
	errNilState     = errors.New("auction engine: state not configured")
	errNilBank      = errors.New("auction engine: bank not configured")
	errNilCustody   = errors.New("auction engine: custody not configured")
	errNilPayments  = errors.New("auction engine: payments not configured")
	errNilEscrow    = errors.New("auction engine: escrow initiator not configured")
	errVaultNotSet  = errors.New("auction engine: vault not configured")
	errNilPauseCtrl = errors.New("auction engine: pause registry not configured")
)

// Validation errors.
var (
	ErrInvalidDuration   = errors.New("auction: duration out of range")
	ErrInvalidQuantity   = errors.New("auction: invalid quantity")
	ErrMissingAssetProof = errors.New("auction: off-chain asset requires content hash and metadata uri")
	ErrInvalidAsset      = errors.New("auction: malformed asset reference")
	ErrInvalidIncrement  = errors.New("auction: bid increment out of range")
	ErrInvalidReserve    = errors.New("auction: reserve price must not be negative")
	ErrBidTooLow         = errors.New("auction: bid below minimum")
	ErrNoBalance         = errors.New("auction: no refund balance")
)

// Authorization errors.
var (
	ErrSellerCannotBid = errors.New("auction: seller cannot bid")
	ErrNotSeller       = errors.New("auction: caller is not the seller")
	ErrNotAuthorized   = errors.New("auction: caller not authorized")
)

// State-conflict errors.
var (
	ErrNotFound       = errors.New("auction: not found")
	ErrNotActive      = errors.New("auction: not active")
	ErrEnded          = errors.New("auction: bidding has ended")
	ErrNotEnded       = errors.New("auction: end time not reached")
	ErrAlreadySettled = errors.New("auction: already settled")
	ErrHasBids        = errors.New("auction: auction has bids")
	ErrTooEarly       = errors.New("auction: emergency delay not elapsed")
)

// ErrTransferFailed is returned by Withdraw when the payout push fails. The
// ledger balance is left untouched.
var ErrTransferFailed = errors.New("auction: transfer failed")

// ErrPaused is returned by operations blocked while the module is paused.
var ErrPaused = fmt.Errorf("auction: %w", common.ErrModulePaused)

// ErrReentrantCall is returned when a mutating entry point is invoked while
// another one is still running.
var ErrReentrantCall = common.ErrReentrantCall
