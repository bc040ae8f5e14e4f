package bank

import (
	"errors"
	"math/big"
	"testing"

	"nhbmarket/core/events"
	"nhbmarket/storage"
)

func TestTransferMovesBalance(t *testing.T) {
	ledger := NewLedger(storage.NewJournal(storage.NewMemDB()))
	rec := &events.Recorder{}
	ledger.SetEmitter(rec)
	alice, bob := [20]byte{1}, [20]byte{2}
	if err := ledger.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if bal, _ := ledger.Balance(alice); bal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected alice balance 60, got %s", bal)
	}
	if bal, _ := ledger.Balance(bob); bal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected bob balance 40, got %s", bal)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(61)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(rec.Events) != 1 || rec.Events[0].EventType() != EventTypeTransfer {
		t.Fatalf("unexpected events %v", rec.Types())
	}
}

func TestRejectingReceiverRollsBack(t *testing.T) {
	store := storage.NewJournal(storage.NewMemDB())
	ledger := NewLedger(store)
	alice, bob, carol := [20]byte{1}, [20]byte{2}, [20]byte{3}
	if err := ledger.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	ledger.SetReceiver(bob, func(from [20]byte, amount *big.Int) error {
		// Side effects performed by the hook must be rolled back too.
		if err := ledger.Transfer(bob, carol, amount); err != nil {
			return err
		}
		return errors.New("no thanks")
	})
	if err := ledger.Transfer(alice, bob, big.NewInt(10)); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	for who, want := range map[[20]byte]int64{alice: 100, bob: 0, carol: 0} {
		if bal, _ := ledger.Balance(who); bal.Cmp(big.NewInt(want)) != 0 {
			t.Fatalf("expected %x balance %d, got %s", who, want, bal)
		}
	}
	ledger.SetReceiver(bob, nil)
	if err := ledger.Transfer(alice, bob, big.NewInt(10)); err != nil {
		t.Fatalf("transfer after clearing hook: %v", err)
	}
}

func TestRejectedTransferDropsHookEvents(t *testing.T) {
	ledger := NewLedger(storage.NewJournal(storage.NewMemDB()))
	buf := &events.Buffer{}
	ledger.SetEmitter(buf)
	alice, bob, carol := [20]byte{1}, [20]byte{2}, [20]byte{3}
	if err := ledger.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, carol, big.NewInt(5)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	ledger.SetReceiver(bob, func(from [20]byte, amount *big.Int) error {
		if err := ledger.Transfer(bob, carol, amount); err != nil {
			return err
		}
		return errors.New("no thanks")
	})
	if err := ledger.Transfer(alice, bob, big.NewInt(10)); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if buf.Len() != 1 {
		t.Fatalf("expected only the earlier transfer event, got %d", buf.Len())
	}

	ledger.SetReceiver(bob, func(from [20]byte, amount *big.Int) error {
		return ledger.Transfer(bob, carol, amount)
	})
	if err := ledger.Transfer(alice, bob, big.NewInt(10)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if buf.Len() != 3 {
		t.Fatalf("expected hook and outer transfer events, got %d", buf.Len())
	}
}
