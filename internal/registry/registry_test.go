package registry

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clob/internal/admin"
	"clob/internal/events"
)

type recordingSink struct {
	events []events.Event
}

func (s *recordingSink) Publish(e events.Event) { s.events = append(s.events, e) }

func newTestRegistry() (*Registry, admin.Token, *recordingSink) {
	token := admin.NewToken()
	sink := &recordingSink{}
	return New(token, sink), token, sink
}

var testPair = Pair{Base: "BTC", Quote: "USD"}

func TestCreateRequiresToken(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.Create(admin.Token{}, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)
	assert.ErrorIs(t, err, admin.ErrUnauthorized)
}

func TestCreateEmitsOrderCreated(t *testing.T) {
	r, token, sink := newTestRegistry()
	id, err := r.Create(token, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	created := sink.events[0].(events.OrderCreated)
	assert.Equal(t, uint64(id), created.OrderID)
	assert.Equal(t, "alice", created.Trader)

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, Open, got.Status)
	assert.Equal(t, big.NewInt(0), got.FilledQuantity)
}

func TestOrderIDsMonotonic(t *testing.T) {
	r, token, _ := newTestRegistry()
	id1, _ := r.Create(token, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)
	id2, _ := r.Create(token, "bob", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)
	assert.Less(t, id1, id2)
}

func TestUpdateStatusMonotonicity(t *testing.T) {
	r, token, _ := newTestRegistry()
	id, _ := r.Create(token, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)

	require.NoError(t, r.UpdateStatus(token, id, PartiallyFilled, big.NewInt(4)))
	got, _ := r.Get(id)
	assert.Equal(t, PartiallyFilled, got.Status)
	assert.Equal(t, big.NewInt(4), got.FilledQuantity)

	// Regression is rejected.
	err := r.UpdateStatus(token, id, PartiallyFilled, big.NewInt(2))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Over-fill is rejected.
	err = r.UpdateStatus(token, id, Filled, big.NewInt(11))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, r.UpdateStatus(token, id, Filled, big.NewInt(10)))

	// Terminal state is immutable.
	err = r.UpdateStatus(token, id, PartiallyFilled, big.NewInt(10))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelPreservesFilledQuantity(t *testing.T) {
	r, token, _ := newTestRegistry()
	id, _ := r.Create(token, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)
	require.NoError(t, r.UpdateStatus(token, id, PartiallyFilled, big.NewInt(3)))

	require.NoError(t, r.Cancel(token, id))
	got, _ := r.Get(id)
	assert.Equal(t, Canceled, got.Status)
	assert.Equal(t, big.NewInt(3), got.FilledQuantity)

	err := r.Cancel(token, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrdersOfReturnsOldestFirst(t *testing.T) {
	r, token, _ := newTestRegistry()
	id1, _ := r.Create(token, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)
	id2, _ := r.Create(token, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)
	_, _ = r.Create(token, "bob", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)

	ids := r.OrdersOf("alice")
	assert.Equal(t, []OrderID{id1, id2}, ids)
}

func TestDeleteRemovesFromBothIndexes(t *testing.T) {
	r, token, _ := newTestRegistry()
	id, _ := r.Create(token, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)

	require.NoError(t, r.Delete(token, id))
	_, err := r.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, r.OrdersOf("alice"))
}

func TestGetReturnsDefensiveCopy(t *testing.T) {
	r, token, _ := newTestRegistry()
	id, _ := r.Create(token, "alice", testPair, big.NewInt(100), big.NewInt(10), nil, true, Limit)

	got, _ := r.Get(id)
	got.Quantity.SetInt64(999)

	got2, _ := r.Get(id)
	assert.Equal(t, big.NewInt(10), got2.Quantity)
}
