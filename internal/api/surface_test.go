package api

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchwatch/monitor/internal/lifecycle"
	"github.com/launchwatch/monitor/internal/model"
	"github.com/launchwatch/monitor/internal/monitor/buybacktracker"
	"github.com/launchwatch/monitor/internal/monitor/whaledetector"
)

func sampleTrade(hash string) whaledetector.Trade {
	return whaledetector.Trade{
		Direction:   whaledetector.Buy,
		BaseAmount:  big.NewInt(1000),
		TokenAmount: big.NewInt(2000),
		Trader:      common.HexToAddress("0x1"),
		TxHash:      common.HexToHash(hash),
		Block:       42,
		Timestamp:   time.Now(),
	}
}

func TestRecordTradeDedupsByHash(t *testing.T) {
	s := New(zerolog.Nop())
	s.RecordTrade(sampleTrade("0xaaa"))
	s.RecordTrade(sampleTrade("0xaaa"))
	s.RecordTrade(sampleTrade("0xbbb"))

	trades := s.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, common.HexToHash("0xbbb").Hex(), trades[0].TxHash)
}

func TestRecordTradeRingEvictsOldestAndForgetsItsHash(t *testing.T) {
	s := New(zerolog.Nop())
	for i := 0; i < ringCapacity+5; i++ {
		hash := common.BigToHash(big.NewInt(int64(i))).Hex()
		s.RecordTrade(sampleTrade(hash))
	}

	trades := s.Trades()
	assert.Len(t, trades, ringCapacity)

	// The oldest trade (index 0) was evicted; replaying it must be
	// accepted again rather than silently dropped as a dup, and land
	// at the front of the ring.
	s.RecordTrade(sampleTrade(common.BigToHash(big.NewInt(0)).Hex()))
	trades = s.Trades()
	assert.Len(t, trades, ringCapacity)
	assert.Equal(t, common.BigToHash(big.NewInt(0)).Hex(), trades[0].TxHash)
}

func TestUpdateContextBroadcastsOnlyOnChange(t *testing.T) {
	s := New(zerolog.Nop())
	ch := make(chan EventView, 8)
	sub := s.Subscribe(ch)
	defer sub.Unsubscribe()

	ctx1 := lifecycle.Context{Phase: lifecycle.WaitT0, TaxTotal: big.NewInt(0), T0: time.Now(), T1: time.Now().Add(time.Hour)}
	s.UpdateContext(ctx1)
	s.UpdateContext(ctx1) // identical context, must not broadcast again

	select {
	case ev := <-ch:
		assert.Equal(t, lifecycle.EventStateChange, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected one state_change broadcast")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected second broadcast for an unchanged context: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	ctx2 := ctx1
	ctx2.Phase = lifecycle.LaunchWindow
	s.UpdateContext(ctx2)

	select {
	case ev := <-ch:
		assert.Equal(t, lifecycle.EventStateChange, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast for a changed phase")
	}
}

func TestStateRendersProjectAndFDV(t *testing.T) {
	s := New(zerolog.Nop())
	t0 := time.Now().Add(-10 * time.Minute)
	t1 := time.Now().Add(50 * time.Minute)
	s.UpdateContext(lifecycle.Context{
		Phase:    lifecycle.LaunchWindow,
		Project:  &model.SelectedProject{Descriptor: model.ProjectDescriptor{ID: 7, Name: "Foo", Symbol: "FOO"}},
		T0:       t0,
		T1:       t1,
		TaxTotal: big.NewInt(500),
	})
	s.UpdateOnchainFDV("1000000", "250000.50")

	state := s.State()
	assert.Equal(t, "LAUNCH_WINDOW", state.State)
	require.NotNil(t, state.Project)
	assert.Equal(t, int64(7), state.Project.ID)
	assert.Equal(t, "500", state.TaxTotal)
	require.NotNil(t, state.OnchainFDVVirtual)
	assert.Equal(t, "1000000", *state.OnchainFDVVirtual)
	assert.Greater(t, state.ElapsedMinutes, 9.0)
}

func TestRecordEventBroadcastsGivenKindAndMessage(t *testing.T) {
	s := New(zerolog.Nop())
	ch := make(chan EventView, 1)
	sub := s.Subscribe(ch)
	defer sub.Unsubscribe()

	s.RecordEvent(lifecycle.EventProjectStart, "project start: Foo (FOO)")

	select {
	case ev := <-ch:
		assert.Equal(t, lifecycle.EventProjectStart, ev.Kind)
		assert.Equal(t, "project start: Foo (FOO)", ev.Data)
	case <-time.After(time.Second):
		t.Fatal("expected a project_start broadcast")
	}

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, lifecycle.EventProjectStart, events[0].Kind)
}

func TestUpdateBuybackStoresLatestStatus(t *testing.T) {
	s := New(zerolog.Nop())
	s.UpdateBuyback(buybacktracker.Status{SpentTotal: big.NewInt(10), Progress: 42.5, ETAHours: 3.5})

	state := s.State()
	require.NotNil(t, state.Buyback)
	assert.Equal(t, "10", state.Buyback.SpentTotal)
	assert.Equal(t, 42.5, state.Buyback.Progress)
}
