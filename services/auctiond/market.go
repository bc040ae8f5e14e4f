package auctiond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"nhbmarket/core/events"
	"nhbmarket/crypto"
	"nhbmarket/native/assets"
	"nhbmarket/native/auction"
	"nhbmarket/native/bank"
	"nhbmarket/native/common"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
	"nhbmarket/observability"
	"nhbmarket/storage"
)

var genesisMarker = []byte("auctiond/genesis")

// ErrNotMinter is returned when a caller without the minter role mints units.
var ErrNotMinter = errors.New("auctiond: caller lacks minter role")

// MarketOptions wires a Market to its backend and event sinks.
type MarketOptions struct {
	Backend     storage.Database
	EventLog    *EventLog
	Stream      *StreamHub
	Metrics     *observability.AuctionMetrics
	Logger      *slog.Logger
	Params      auction.Params
	PlatformBps uint32
	Treasury    [20]byte
	Now         func() time.Time
}

// Market owns every native module sharing one journal and serialises access
// to them. Each call through Do commits on success and only then publishes
// the events it produced.
type Market struct {
	mu      sync.Mutex
	journal *storage.Journal
	buffer  *events.Buffer
	vault   [20]byte

	Bank     *bank.Ledger
	Assets   *assets.Registry
	Fees     *fees.Splitter
	Holdings *escrow.Engine
	Roles    *common.RoleRegistry
	Pauses   *common.PauseRegistry
	Auctions *auction.Engine

	eventLog *EventLog
	stream   *StreamHub
	metrics  *observability.AuctionMetrics
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewMarket builds the module graph on top of opts.Backend.
func NewMarket(opts MarketOptions) (*Market, error) {
	if opts.Backend == nil {
		return nil, errors.New("auctiond: storage backend required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Stream == nil {
		opts.Stream = NewStreamHub(0)
	}
	if opts.Params == (auction.Params{}) {
		opts.Params = auction.DefaultParams()
	}
	journal := storage.NewJournal(opts.Backend)
	m := &Market{
		journal:  journal,
		buffer:   &events.Buffer{},
		vault:    crypto.ModuleAddress(auction.ModuleName),
		eventLog: opts.EventLog,
		stream:   opts.Stream,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		nowFn:    opts.Now,
	}
	unixNow := func() int64 { return m.nowFn().Unix() }

	m.Bank = bank.NewLedger(journal)
	m.Bank.SetEmitter(m.buffer)
	m.Assets = assets.NewRegistry(journal)
	m.Assets.SetVault(m.vault)
	m.Assets.SetEmitter(m.buffer)
	m.Roles = common.NewRoleRegistry(journal)
	m.Pauses = common.NewPauseRegistry(journal)

	splitter, err := fees.NewSplitter(m.Bank, m.Assets, m.vault, opts.Treasury, opts.PlatformBps)
	if err != nil {
		return nil, fmt.Errorf("fees splitter: %w", err)
	}
	splitter.SetAuthorizer(m.Roles)
	splitter.SetStore(journal)
	splitter.SetEmitter(m.buffer)
	m.Fees = splitter

	m.Holdings = escrow.NewEngine(journal)
	m.Holdings.SetNowFunc(unixNow)
	m.Holdings.SetEmitter(m.buffer)

	engine := auction.NewEngine()
	if err := engine.SetParams(opts.Params); err != nil {
		return nil, err
	}
	engine.SetState(auction.NewStore(journal))
	engine.SetNowFunc(unixNow)
	engine.SetEmitter(m.buffer)
	engine.SetVault(m.vault)
	engine.SetBank(m.Bank)
	engine.SetCustody(m.Assets)
	engine.SetPayments(m.Fees)
	engine.SetEscrow(m.Holdings)
	engine.SetPauses(m.Pauses)
	engine.SetAuthorizer(m.Roles)
	m.Auctions = engine
	return m, nil
}

// Vault returns the account and custody operator used by the auction engine.
func (m *Market) Vault() [20]byte { return m.vault }

// Stream returns the hub fed by committed events.
func (m *Market) Stream() *StreamHub { return m.stream }

// Do runs fn with exclusive access. Writes are committed and buffered events
// published only when fn succeeds; otherwise both are discarded.
func (m *Market) Do(ctx context.Context, fn func() error) error {
	m.mu.Lock()
	snap := m.journal.Snapshot()
	if err := fn(); err != nil {
		m.journal.RevertToSnapshot(snap)
		m.journal.Discard()
		m.buffer.Discard()
		m.mu.Unlock()
		return err
	}
	if err := m.journal.Commit(); err != nil {
		m.journal.Discard()
		m.buffer.Discard()
		m.mu.Unlock()
		return fmt.Errorf("commit: %w", err)
	}
	committed := m.buffer.Flush(nil)
	m.publish(ctx, committed)
	m.mu.Unlock()
	return nil
}

// View runs a read-only fn with exclusive access.
func (m *Market) View(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

func (m *Market) publish(ctx context.Context, committed []events.Event) {
	now := m.nowFn()
	for _, evt := range committed {
		m.metrics.Emit(evt)
		payload := events.Payload(evt)
		if payload == nil {
			continue
		}
		rec := EventRecord{Type: payload.Type, Attributes: payload.Attributes, Timestamp: now.UTC()}
		if m.eventLog != nil {
			stored, err := m.eventLog.Append(ctx, payload, now)
			if err != nil {
				m.logger.Error("event log append failed",
					slog.String("component", "auctiond"),
					slog.String("event", payload.Type),
					slog.Any("error", err))
				continue
			}
			rec = stored
		}
		m.stream.Publish(rec)
		m.logger.Info("event",
			slog.String("component", "auctiond"),
			slog.String("event", payload.Type),
			slog.Uint64("sequence", rec.Sequence),
			slog.String("auction_id", payload.Attributes["auctionId"]))
	}
}

// Mint creates units on behalf of a caller holding the minter role.
func (m *Market) Mint(caller, coll [20]byte, unit *big.Int, to [20]byte, quantity uint64) error {
	if !m.Roles.IsAuthorized(caller, common.RoleMinter) {
		return ErrNotMinter
	}
	return m.Assets.Mint(coll, unit, to, quantity)
}

// ApproveVault lets the auction vault move the caller's units of coll.
func (m *Market) ApproveVault(caller, coll [20]byte, approved bool) error {
	return m.Assets.SetApprovalForAll(coll, caller, m.vault, approved)
}

// ApplyGenesis grants the configured roles and, on a fresh data directory,
// seeds balances, collections and units.
func (m *Market) ApplyGenesis(ctx context.Context, admins AdminsConfig, genesis GenesisConfig) error {
	return m.Do(ctx, func() error {
		grants := map[string][]string{
			common.RolePauser:     admins.Pausers,
			common.RoleFeeManager: admins.FeeManagers,
			common.RoleMinter:     admins.Minters,
		}
		for role, members := range grants {
			for _, raw := range members {
				addr, err := crypto.ParseAddress(raw)
				if err != nil {
					return fmt.Errorf("admin %q: %w", raw, err)
				}
				if err := m.Roles.Grant(role, addr); err != nil {
					return err
				}
			}
		}

		if _, err := m.journal.Get(genesisMarker); err == nil {
			return nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		for _, acct := range genesis.Accounts {
			addr, err := crypto.ParseAddress(acct.Address)
			if err != nil {
				return fmt.Errorf("genesis account %q: %w", acct.Address, err)
			}
			balance, ok := new(big.Int).SetString(strings.TrimSpace(acct.Balance), 10)
			if !ok || balance.Sign() <= 0 {
				return fmt.Errorf("genesis account %q: invalid balance %q", acct.Address, acct.Balance)
			}
			if err := m.Bank.Credit(addr, balance); err != nil {
				return err
			}
		}
		for _, coll := range genesis.Collections {
			c, err := genesisCollection(coll)
			if err != nil {
				return err
			}
			if err := m.Assets.RegisterCollection(c); err != nil {
				return fmt.Errorf("genesis collection %s: %w", coll.Name, err)
			}
		}
		for _, unit := range genesis.Units {
			coll, err := crypto.ParseAddress(unit.Collection)
			if err != nil {
				return fmt.Errorf("genesis unit collection: %w", err)
			}
			owner, err := crypto.ParseAddress(unit.Owner)
			if err != nil {
				return fmt.Errorf("genesis unit owner: %w", err)
			}
			id, ok := new(big.Int).SetString(strings.TrimSpace(unit.UnitID), 10)
			if !ok || id.Sign() < 0 {
				return fmt.Errorf("genesis unit: invalid id %q", unit.UnitID)
			}
			quantity := unit.Quantity
			if quantity == 0 {
				quantity = 1
			}
			if err := m.Assets.Mint(coll, id, owner, quantity); err != nil {
				return fmt.Errorf("genesis unit %s: %w", unit.UnitID, err)
			}
		}
		return m.journal.Put(genesisMarker, []byte{1})
	})
}

func genesisCollection(cfg GenesisCollection) (*assets.Collection, error) {
	addr, err := crypto.ParseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("genesis collection %s: %w", cfg.Name, err)
	}
	standard, err := assets.ParseStandard(cfg.Standard)
	if err != nil {
		return nil, err
	}
	c := &assets.Collection{
		Address:    addr,
		Name:       strings.TrimSpace(cfg.Name),
		Standard:   standard,
		RoyaltyBps: cfg.RoyaltyBps,
	}
	if cfg.Creator != "" {
		if c.Creator, err = crypto.ParseAddress(cfg.Creator); err != nil {
			return nil, fmt.Errorf("genesis collection %s creator: %w", cfg.Name, err)
		}
	}
	if cfg.RoyaltyReceiver != "" {
		if c.RoyaltyReceiver, err = crypto.ParseAddress(cfg.RoyaltyReceiver); err != nil {
			return nil, fmt.Errorf("genesis collection %s royalty receiver: %w", cfg.Name, err)
		}
	}
	return c, nil
}

// OpenBackend opens the key/value store selected by cfg.
func OpenBackend(cfg StorageConfig) (storage.Database, error) {
	switch cfg.Engine {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	case "pebble":
		db, err := storage.NewPebbleDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open pebble: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage engine %q", cfg.Engine)
	}
}
