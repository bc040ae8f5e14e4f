package auctiond

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"nhbmarket/crypto"
	"nhbmarket/storage"
)

func openMarket(t *testing.T, backend storage.Database) *Market {
	t.Helper()
	market, err := NewMarket(MarketOptions{
		Backend:     backend,
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		PlatformBps: 250,
		Treasury:    treasuryAcct,
	})
	require.NoError(t, err)
	err = market.ApplyGenesis(context.Background(), AdminsConfig{
		FeeManagers: []string{crypto.FormatAddress(adminAcct)},
	}, GenesisConfig{
		Accounts: []GenesisAccount{{Address: crypto.FormatAddress(aliceAcct), Balance: "500"}},
	})
	require.NoError(t, err)
	return market
}

func TestMarketStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemDB()
	market := openMarket(t, backend)

	require.NoError(t, market.Do(ctx, func() error {
		return market.Fees.SetPlatformFeeBps(adminAcct, 900)
	}))
	err := market.Do(ctx, func() error {
		if err := market.Fees.SetPlatformFeeBps(adminAcct, 100); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")
	require.Equal(t, uint32(900), market.Fees.PlatformFeeBps())

	reopened := openMarket(t, backend)
	require.Equal(t, uint32(900), reopened.Fees.PlatformFeeBps())
	balance, err := reopened.Bank.Balance(aliceAcct)
	require.NoError(t, err)
	require.Equal(t, "500", balance.String())
}
