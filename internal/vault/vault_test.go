package vault

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clob/internal/admin"
	"clob/internal/book"
	"clob/internal/events"
	"clob/internal/fixed"
	"clob/internal/registry"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

type fakeLedger struct {
	mu       sync.Mutex
	balances map[registry.TraderID]map[string]*big.Int
	failOn   func(from, to registry.TraderID, asset string, amount *big.Int) bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[registry.TraderID]map[string]*big.Int)}
}

func (l *fakeLedger) credit(trader registry.TraderID, asset string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[trader] == nil {
		l.balances[trader] = make(map[string]*big.Int)
	}
	cur := l.balances[trader][asset]
	if cur == nil {
		cur = big.NewInt(0)
	}
	l.balances[trader][asset] = new(big.Int).Add(cur, amount)
}

func (l *fakeLedger) balance(trader registry.TraderID, asset string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.balances[trader][asset]
	if b == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(b)
}

func (l *fakeLedger) Transfer(ctx context.Context, from, to registry.TraderID, asset string, amount *big.Int) error {
	if l.failOn != nil && l.failOn(from, to, asset, amount) {
		return errors.New("fake transfer failure")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.balances[from][asset]
	if cur == nil {
		cur = big.NewInt(0)
	}
	if l.balances[from] == nil {
		l.balances[from] = make(map[string]*big.Int)
	}
	l.balances[from][asset] = new(big.Int).Sub(cur, amount)

	if l.balances[to] == nil {
		l.balances[to] = make(map[string]*big.Int)
	}
	curTo := l.balances[to][asset]
	if curTo == nil {
		curTo = big.NewInt(0)
	}
	l.balances[to][asset] = new(big.Int).Add(curTo, amount)
	return nil
}

var testPair = registry.Pair{Base: "BTC", Quote: "USD"}

// setup wires one pair's worth of Registry + Vault + ledger, with a buyer
// and a seller each holding an open order already on the books, and
// returns everything the test needs to drive a settlement.
func setup(t *testing.T, makerBps, takerBps fixed.Bps) (v *Vault, reg *registry.Registry, sink *recordingSink, ledger *fakeLedger, buyer, seller registry.Order) {
	t.Helper()
	token := admin.NewToken()
	sink = &recordingSink{}
	reg = registry.New(token, sink)

	buyID, err := reg.Create(token, "buyer", testPair, big.NewInt(100), big.NewInt(10), nil, true, registry.Limit)
	require.NoError(t, err)
	sellID, err := reg.Create(token, "seller", testPair, big.NewInt(100), big.NewInt(10), nil, false, registry.Limit)
	require.NoError(t, err)

	buyer, err = reg.Get(buyID)
	require.NoError(t, err)
	seller, err = reg.Get(sellID)
	require.NoError(t, err)

	principals := admin.NewPrincipalSet("root")
	fees, err := admin.NewFeeConfig(principals, makerBps, takerBps, "fee-sink")
	require.NoError(t, err)

	ledger = newFakeLedger()
	ledger.credit("buyer", "USD", big.NewInt(10_000))
	ledger.credit("seller", "BTC", big.NewInt(10_000))

	v = New(token, reg, ledger, fees, sink)
	return v, reg, sink, ledger, buyer, seller
}

func TestSettleMovesAllAssetLegs(t *testing.T) {
	v, _, sink, ledger, buyer, seller := setup(t, 10, 20) // 0.10% maker, 0.20% taker

	s := book.Settlement{TakerID: buyer.ID, MakerID: seller.ID, Quantity: big.NewInt(10), Price: big.NewInt(100)}
	require.NoError(t, v.Settle(context.Background(), s, buyer, seller, 0))

	// quoteAmount = 10*100 = 1000; makerFee = 1 (0.10%); takerFee = 2 (0.20%)
	assert.Equal(t, big.NewInt(10), ledger.balance("buyer", "BTC"))
	assert.Equal(t, big.NewInt(10_000-1000-2), ledger.balance("buyer", "USD"))
	assert.Equal(t, big.NewInt(1000-1), ledger.balance("seller", "USD"))
	assert.Equal(t, big.NewInt(10_000-10), ledger.balance("seller", "BTC"))
	assert.Equal(t, big.NewInt(3), ledger.balance("fee-sink", "USD"))

	// 2 OrderCreated (setup) + 2 OrderStatusUpdated + 1 SettlementProcessed
	assert.Len(t, sink.events, 5)
}

func TestSettlePublishesSettlementProcessed(t *testing.T) {
	v, _, sink, _, buyer, seller := setup(t, 10, 20)
	s := book.Settlement{TakerID: buyer.ID, MakerID: seller.ID, Quantity: big.NewInt(4), Price: big.NewInt(100)}
	require.NoError(t, v.Settle(context.Background(), s, buyer, seller, 0))

	var found *events.SettlementProcessed
	for _, e := range sink.events {
		if sp, ok := e.(events.SettlementProcessed); ok {
			found = &sp
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, big.NewInt(4), found.Quantity)
	assert.Equal(t, big.NewInt(100), found.Price)
}

func TestSettleUpdatesOrderStatusToPartialOrFilled(t *testing.T) {
	v, reg, _, _, buyer, seller := setup(t, 0, 0)
	s := book.Settlement{TakerID: buyer.ID, MakerID: seller.ID, Quantity: big.NewInt(4), Price: big.NewInt(100)}
	require.NoError(t, v.Settle(context.Background(), s, buyer, seller, 0))

	gotBuyer, _ := reg.Get(buyer.ID)
	assert.Equal(t, registry.PartiallyFilled, gotBuyer.Status)
	assert.Equal(t, big.NewInt(4), gotBuyer.FilledQuantity)

	// The (buyer, seller) pair is already in the processed set, so the
	// second fill runs with the roles swapped: seller as taker, buyer as maker.
	gotSeller, _ := reg.Get(seller.ID)
	s2 := book.Settlement{TakerID: seller.ID, MakerID: buyer.ID, Quantity: big.NewInt(6), Price: big.NewInt(100)}
	require.NoError(t, v.Settle(context.Background(), s2, gotSeller, gotBuyer, 0))
	gotBuyer2, _ := reg.Get(buyer.ID)
	assert.Equal(t, registry.Filled, gotBuyer2.Status)
}

func TestSettleRejectsReplay(t *testing.T) {
	v, _, _, _, buyer, seller := setup(t, 0, 0)
	s := book.Settlement{TakerID: buyer.ID, MakerID: seller.ID, Quantity: big.NewInt(4), Price: big.NewInt(100)}
	require.NoError(t, v.Settle(context.Background(), s, buyer, seller, 0))
	err := v.Settle(context.Background(), s, buyer, seller, 0)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestSettleLeavesRegistryUntouchedOnTransferFailure(t *testing.T) {
	v, reg, _, ledger, buyer, seller := setup(t, 0, 0)
	ledger.failOn = func(from, to registry.TraderID, asset string, amount *big.Int) bool {
		return asset == "USD" // fail the second leg, after base already moved
	}
	s := book.Settlement{TakerID: buyer.ID, MakerID: seller.ID, Quantity: big.NewInt(4), Price: big.NewInt(100)}
	err := v.Settle(context.Background(), s, buyer, seller, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientAssets)

	// Registry state is untouched since the failure happened before either
	// UpdateStatus call. The base leg that already moved is not reversed.
	got, _ := reg.Get(buyer.ID)
	assert.Equal(t, registry.Open, got.Status)
}

func TestCalculateFeesTruncates(t *testing.T) {
	v, _, _, _, _, _ := setup(t, 33, 33) // 0.33%
	makerFee, takerFee := v.CalculateFees(big.NewInt(7), big.NewInt(100), 0)
	// quoteAmount = 700; 700*33/10000 = 2.31 -> truncates to 2
	assert.Equal(t, big.NewInt(2), makerFee)
	assert.Equal(t, big.NewInt(2), takerFee)
}
