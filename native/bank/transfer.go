package bank

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"nhbmarket/core/events"
	"nhbmarket/core/types"
	"nhbmarket/storage"
)

const EventTypeTransfer = "bank.transfer"

var (
	errNilStore = errors.New("bank: store not configured")

	// ErrInsufficientBalance is returned when the sender cannot cover the amount.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrTransferRejected is returned when the recipient's receive hook refused
	// the payment. The transfer is rolled back.
	ErrTransferRejected = errors.New("bank: transfer rejected by recipient")
)

var accountPrefix = []byte("bank/account/")

// Receiver is invoked after a credit lands on an address that registered
// one. Returning an error rejects the payment and rolls the transfer back.
// A receiver may call back into other modules before returning.
type Receiver func(from [20]byte, amount *big.Int) error

// Ledger keeps currency balances in the journal and delivers push payments.
type Ledger struct {
	store   *storage.Journal
	emitter events.Emitter

	mu        sync.RWMutex
	receivers map[[20]byte]Receiver
}

// NewLedger binds a ledger to the journal.
func NewLedger(store *storage.Journal) *Ledger {
	return &Ledger{
		store:     store,
		emitter:   events.NoopEmitter{},
		receivers: make(map[[20]byte]Receiver),
	}
}

// SetEmitter configures the event emitter used by the ledger.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetReceiver registers (or clears with nil) the receive hook for addr.
func (l *Ledger) SetReceiver(addr [20]byte, fn Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fn == nil {
		delete(l.receivers, addr)
		return
	}
	l.receivers[addr] = fn
}

func (l *Ledger) receiver(addr [20]byte) Receiver {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.receivers[addr]
}

func accountKey(addr [20]byte) []byte {
	return append(append([]byte(nil), accountPrefix...), hex.EncodeToString(addr[:])...)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// GetAccount loads the account for addr, returning an empty account when none
// exists yet.
func (l *Ledger) GetAccount(addr [20]byte) (*types.Account, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	var acc types.Account
	ok, err := l.store.GetRLP(accountKey(addr), &acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return ensureAccount(nil), nil
	}
	return ensureAccount(&acc), nil
}

// PutAccount persists the account for addr.
func (l *Ledger) PutAccount(addr [20]byte, acc *types.Account) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	return l.store.PutRLP(accountKey(addr), ensureAccount(acc))
}

// Balance returns the spendable balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	acc, err := l.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// Credit mints amount into addr. It is used for genesis allocations and test
// funding; it does not invoke receive hooks.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: credit amount must be positive")
	}
	acc, err := l.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.PutAccount(addr, acc)
}

// Transfer moves amount from one account to another and then runs the
// recipient's receive hook, if any. A rejected hook rolls back the transfer,
// every write the hook performed and, when the emitter is a Marker, every
// event emitted since.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: negative transfer amount")
	}
	snap := l.store.Snapshot()
	marker, _ := l.emitter.(events.Marker)
	mark := 0
	if marker != nil {
		mark = marker.Mark()
	}
	if err := l.move(from, to, amount); err != nil {
		l.store.RevertToSnapshot(snap)
		return err
	}
	if hook := l.receiver(to); hook != nil {
		if err := hook(from, new(big.Int).Set(amount)); err != nil {
			l.store.RevertToSnapshot(snap)
			if marker != nil {
				marker.Truncate(mark)
			}
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
	}
	l.emitter.Emit(TransferEvent{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	fromAcc, err := l.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	fromAcc.Nonce++
	if err := l.PutAccount(from, fromAcc); err != nil {
		return err
	}
	toAcc, err := l.GetAccount(to)
	if err != nil {
		return err
	}
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	return l.PutAccount(to, toAcc)
}

// TransferEvent records a completed currency movement.
type TransferEvent struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (TransferEvent) EventType() string { return EventTypeTransfer }

func (e TransferEvent) Event() *types.Event {
	amount := "0"
	if e.Amount != nil {
		amount = e.Amount.String()
	}
	return &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"from":   hex.EncodeToString(e.From[:]),
			"to":     hex.EncodeToString(e.To[:]),
			"amount": amount,
		},
	}
}
