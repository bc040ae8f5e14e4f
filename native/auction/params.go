package auction

import (
	"errors"
	"fmt"
)

// Params captures the policy constants applied by the auction engine. All
// durations are expressed in seconds.
type Params struct {
	// MinDuration is the shortest auction a seller may open.
	MinDuration int64
	// MaxDuration is the longest auction a seller may open.
	MaxDuration int64
	// ExtensionThreshold triggers the anti-snipe rule when a bid lands within
	// this many seconds of the scheduled end.
	ExtensionThreshold int64
	// ExtensionWindow is the new distance from the bid time to the end once the
	// anti-snipe rule fires.
	ExtensionWindow int64
	// EmergencyDelay is the grace period after EndTime before the seller or
	// highest bidder may force an emergency close.
	EmergencyDelay int64
	// DefaultBidIncrementBps applies when a seller does not choose an increment.
	DefaultBidIncrementBps uint32
	// MaxBidIncrementBps bounds the increment a seller may choose.
	MaxBidIncrementBps uint32
}

const (
	hour = int64(60 * 60)
	day  = 24 * hour
)

// DefaultParams returns the production policy.
func DefaultParams() Params {
	return Params{
		MinDuration:            hour,
		MaxDuration:            30 * day,
		ExtensionThreshold:     5 * 60,
		ExtensionWindow:        10 * 60,
		EmergencyDelay:         7 * day,
		DefaultBidIncrementBps: 500,
		MaxBidIncrementBps:     bpsDenominator,
	}
}

// Validate ensures the parameters describe a usable policy.
func (p Params) Validate() error {
	if p.MinDuration <= 0 {
		return errors.New("auction params: min duration must be positive")
	}
	if p.MaxDuration < p.MinDuration {
		return fmt.Errorf("auction params: max duration %d below min duration %d", p.MaxDuration, p.MinDuration)
	}
	if p.ExtensionThreshold < 0 {
		return errors.New("auction params: extension threshold must not be negative")
	}
	if p.ExtensionWindow < p.ExtensionThreshold {
		return errors.New("auction params: extension window must cover the threshold")
	}
	if p.EmergencyDelay <= 0 {
		return errors.New("auction params: emergency delay must be positive")
	}
	if p.MaxBidIncrementBps == 0 || p.MaxBidIncrementBps > bpsDenominator {
		return fmt.Errorf("auction params: max bid increment must be within (0, %d]", bpsDenominator)
	}
	if p.DefaultBidIncrementBps == 0 || p.DefaultBidIncrementBps > p.MaxBidIncrementBps {
		return errors.New("auction params: default bid increment out of range")
	}
	return nil
}
