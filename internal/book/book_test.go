package book

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clob/internal/registry"
)

func limitOrder(id registry.OrderID, trader registry.TraderID, isBuy bool, price, qty int64) registry.Order {
	return registry.Order{
		ID:             id,
		Trader:         trader,
		IsBuy:          isBuy,
		Price:          big.NewInt(price),
		Quantity:       big.NewInt(qty),
		FilledQuantity: big.NewInt(0),
		Type:           registry.Limit,
	}
}

func TestInsertTracksBestPricesAndLevelQuantity(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "alice", true, 99, 100)))
	require.NoError(t, b.Insert(limitOrder(2, "alice", true, 99, 90)))
	require.NoError(t, b.Insert(limitOrder(3, "alice", false, 100, 100)))

	bestBid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, big.NewInt(99), bestBid)

	bestAsk, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, big.NewInt(100), bestAsk)

	assert.Equal(t, big.NewInt(190), b.QuantityAt(big.NewInt(99), true))
}

func TestMatchFullFill(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "maker", false, 100, 10)))

	settlements, undo, err := b.Match(TakerInput{
		ID:       2,
		Trader:   "taker",
		IsBuy:    true,
		Type:     registry.Limit,
		Price:    big.NewInt(100),
		Quantity: big.NewInt(10),
	})
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, big.NewInt(10), settlements[0].Quantity)
	assert.Equal(t, big.NewInt(100), settlements[0].Price) // maker-price-wins

	_, ok := b.BestAsk()
	assert.False(t, ok, "fully consumed maker must be gone from the book")

	undo() // must not panic even though nothing was snapshotted incorrectly
}

func TestMatchPartialFillLeavesRemainderResting(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "maker", false, 100, 5)))

	settlements, _, err := b.Match(TakerInput{
		ID: 2, Trader: "taker", IsBuy: true, Type: registry.Limit,
		Price: big.NewInt(100), Quantity: big.NewInt(10),
	})
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, big.NewInt(5), settlements[0].Quantity)

	// The maker is gone (fully filled); nothing remains on the book.
	_, ok := b.BestAsk()
	assert.False(t, ok)
}

func TestMatchSelfTradeIsSkipped(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "alice", false, 100, 5)))

	settlements, _, err := b.Match(TakerInput{
		ID: 2, Trader: "alice", IsBuy: true, Type: registry.Limit,
		Price: big.NewInt(100), Quantity: big.NewInt(5),
	})
	require.NoError(t, err)
	assert.Empty(t, settlements)

	assert.Equal(t, big.NewInt(5), b.QuantityAt(big.NewInt(100), false))
}

func TestMatchSelfTradeSkipsToNextLevel(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "alice", false, 100, 5)))  // self
	require.NoError(t, b.Insert(limitOrder(2, "bob", false, 101, 5)))

	settlements, _, err := b.Match(TakerInput{
		ID: 3, Trader: "alice", IsBuy: true, Type: registry.Limit,
		Price: big.NewInt(101), Quantity: big.NewInt(5),
	})
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, registry.OrderID(2), settlements[0].MakerID)
	assert.Equal(t, big.NewInt(101), settlements[0].Price)

	// Alice's own resting order at 100 is untouched.
	assert.Equal(t, big.NewInt(5), b.QuantityAt(big.NewInt(100), false))
}

func TestMatchMultiLevelSweepByQuantity(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "m1", false, 100, 5)))
	require.NoError(t, b.Insert(limitOrder(2, "m2", false, 105, 5)))

	settlements, _, err := b.Match(TakerInput{
		ID: 3, Trader: "taker", IsBuy: true, Type: registry.Market,
		Quantity: big.NewInt(8),
	})
	require.NoError(t, err)
	require.Len(t, settlements, 2)
	assert.Equal(t, big.NewInt(5), settlements[0].Quantity)
	assert.Equal(t, big.NewInt(100), settlements[0].Price)
	assert.Equal(t, big.NewInt(3), settlements[1].Quantity)
	assert.Equal(t, big.NewInt(105), settlements[1].Price)

	assert.Equal(t, big.NewInt(2), b.QuantityAt(big.NewInt(105), false))
}

func TestMatchMarketBuyQuoteBudgetSweep(t *testing.T) {
	// Reproduces spec scenario 3: asks 5@100 (M1), 5@105 (M2), budget 815.
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "m1", false, 100, 5)))
	require.NoError(t, b.Insert(limitOrder(2, "m2", false, 105, 5)))

	settlements, _, err := b.Match(TakerInput{
		ID: 3, Trader: "taker", IsBuy: true, Type: registry.Market,
		QuoteBudget:  big.NewInt(815),
		TakerFeeBps:  0,
		BaseDecimals: 0,
	})
	require.NoError(t, err)
	require.Len(t, settlements, 2)
	assert.Equal(t, big.NewInt(5), settlements[0].Quantity)
	assert.Equal(t, big.NewInt(3), settlements[1].Quantity)

	assert.Equal(t, big.NewInt(2), b.QuantityAt(big.NewInt(105), false))
}

func TestMatchLimitDoesNotCrossWhenPriceTooLow(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "maker", false, 100, 5)))

	settlements, _, err := b.Match(TakerInput{
		ID: 2, Trader: "taker", IsBuy: true, Type: registry.Limit,
		Price: big.NewInt(99), Quantity: big.NewInt(5),
	})
	require.NoError(t, err)
	assert.Empty(t, settlements)
}

func TestMatchUndoRestoresBookState(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "maker", false, 100, 10)))

	settlements, undo, err := b.Match(TakerInput{
		ID: 2, Trader: "taker", IsBuy: true, Type: registry.Limit,
		Price: big.NewInt(100), Quantity: big.NewInt(4),
	})
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, big.NewInt(6), b.QuantityAt(big.NewInt(100), false))

	undo()
	assert.Equal(t, big.NewInt(10), b.QuantityAt(big.NewInt(100), false))
}

func TestRemoveDeletesEmptyLevel(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(limitOrder(1, "alice", true, 99, 10)))
	require.NoError(t, b.Remove(1))
	_, ok := b.BestBid()
	assert.False(t, ok)
}
