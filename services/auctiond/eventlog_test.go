package auctiond

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nhbmarket/core/types"
)

func TestEventLogAppendAndPage(t *testing.T) {
	ctx := context.Background()
	log, err := OpenEventLog(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer log.Close()

	at := time.Unix(1_700_000_000, 500).UTC()
	for i, typ := range []string{"auction.created", "auction.bid_accepted", "auction.settled"} {
		rec, err := log.Append(ctx, &types.Event{Type: typ, Attributes: map[string]string{"auctionId": "1"}}, at)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), rec.Sequence)
	}
	_, err = log.Append(ctx, nil, at)
	require.Error(t, err)

	page, err := log.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "auction.created", page[0].Type)
	require.Equal(t, "1", page[0].Attributes["auctionId"])
	require.True(t, at.Truncate(time.Second).Equal(page[0].Timestamp))

	rest, err := log.List(ctx, page[1].Sequence, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "auction.settled", rest[0].Type)

	empty, err := log.List(ctx, 3, 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestEventLogInMemory(t *testing.T) {
	log, err := OpenEventLog(":memory:")
	require.NoError(t, err)
	defer log.Close()
	_, err = log.Append(context.Background(), &types.Event{Type: "bank.transfer"}, time.Now())
	require.NoError(t, err)
	page, err := log.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.NotNil(t, page[0].Attributes)
}

func TestStreamHubBacklogAndFanout(t *testing.T) {
	hub := NewStreamHub(2)
	for seq := uint64(1); seq <= 3; seq++ {
		hub.Publish(EventRecord{Sequence: seq, Type: "auction.bid_accepted"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	updates, unsubscribe, backlog := hub.Subscribe(ctx, 2)
	require.Len(t, backlog, 1)
	require.Equal(t, uint64(3), backlog[0].Sequence)
	require.Equal(t, 1, hub.Subscribers())

	hub.Publish(EventRecord{Sequence: 4, Type: "auction.settled"})
	select {
	case rec := <-updates:
		require.Equal(t, uint64(4), rec.Sequence)
	case <-time.After(time.Second):
		t.Fatal("expected live update")
	}

	unsubscribe()
	unsubscribe()
	require.Equal(t, 0, hub.Subscribers())
	_, open := <-updates
	require.False(t, open)
	cancel()
}
