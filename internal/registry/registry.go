package registry

import (
	"errors"
	"math/big"
	"sync"
	"time"

	gbtree "github.com/google/btree"

	"clob/internal/admin"
	"clob/internal/events"
)

var (
	ErrNotFound         = errors.New("registry: order not found")
	ErrInvalidTransition = errors.New("registry: invalid status transition")
)

// traderIndexItem is the secondary-index entry keyed by (trader, order id),
// giving orders_of(trader) a sorted, O(log n)-insert structure distinct
// from the price-level tree the Book uses. Ordered by trader first so a
// range scan over one trader's orders is contiguous.
type traderIndexItem struct {
	trader TraderID
	id     OrderID
}

func (a traderIndexItem) Less(than gbtree.Item) bool {
	b := than.(traderIndexItem)
	if a.trader != b.trader {
		return a.trader < b.trader
	}
	return a.id < b.id
}

// Registry is the authoritative store of every Order. All mutation is
// gated on the admin.Token minted once at wiring time and handed to the
// Facade and Vault; there is no other way to change an order's state.
type Registry struct {
	mu        sync.RWMutex
	token     admin.Token
	bus       events.Sink
	nextID    OrderID
	orders    map[OrderID]*Order
	byTrader  *gbtree.BTree
}

// New constructs a Registry. token is the capability that Create,
// UpdateStatus and Cancel require; mint it once with admin.NewToken and
// share it with exactly the components that need write access.
func New(token admin.Token, bus events.Sink) *Registry {
	return &Registry{
		token:    token,
		bus:      bus,
		orders:   make(map[OrderID]*Order),
		byTrader: gbtree.New(32),
	}
}

// Create mints a new order with status OPEN and filled_quantity 0, and
// emits OrderCreated. Only a caller holding the registry's token may call
// it, since order creation is a mutation of the authoritative store.
func (r *Registry) Create(
	held admin.Token,
	trader TraderID,
	pair Pair,
	price, quantity *big.Int,
	quoteBudget *big.Int,
	isBuy bool,
	orderType OrderType,
) (OrderID, error) {
	if err := admin.Authorize(r.token, held); err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	order := &Order{
		ID:             id,
		Trader:         trader,
		Pair:           pair,
		IsBuy:          isBuy,
		Price:          new(big.Int).Set(price),
		Quantity:       new(big.Int).Set(quantity),
		FilledQuantity: big.NewInt(0),
		Type:           orderType,
		Status:         Open,
		CreatedAt:      time.Now(),
	}
	if quoteBudget != nil {
		order.QuoteBudget = new(big.Int).Set(quoteBudget)
	}
	r.orders[id] = order
	r.byTrader.ReplaceOrInsert(traderIndexItem{trader: trader, id: id})
	r.mu.Unlock()

	r.bus.Publish(events.OrderCreated{
		OrderID:   uint64(id),
		Trader:    string(trader),
		Base:      pair.Base,
		Quote:     pair.Quote,
		Price:     new(big.Int).Set(order.Price),
		Quantity:  new(big.Int).Set(order.Quantity),
		IsBuy:     isBuy,
		OrderType: orderType.String(),
	})

	return id, nil
}

// Get returns a defensive copy of the order; callers never see (let alone
// mutate) the registry's own copy.
func (r *Registry) Get(id OrderID) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return *cloneOrder(o), nil
}

// UpdateStatus enforces the monotonic status/filled-quantity rule and
// emits OrderStatusUpdated. The source status must not be terminal, and
// newFilled must not regress. For an ordinary order newFilled also must
// not exceed Quantity, and FILLED requires an exact match; a MARKET buy
// sized by QuoteBudget has no meaningful total base quantity up front (see
// Order.QuoteBudget), so those two checks are skipped for it and the
// caller — the Vault or Facade, both of which already hold the token —
// is trusted to resolve FILLED vs CANCELED once the budget is known to be
// exhausted or the book has run dry.
func (r *Registry) UpdateStatus(held admin.Token, id OrderID, newStatus Status, newFilled *big.Int) error {
	if err := admin.Authorize(r.token, held); err != nil {
		return err
	}

	r.mu.Lock()
	o, ok := r.orders[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if o.Status.terminal() {
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	if newFilled.Cmp(o.FilledQuantity) < 0 {
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	if o.QuoteBudget == nil {
		if newFilled.Cmp(o.Quantity) > 0 {
			r.mu.Unlock()
			return ErrInvalidTransition
		}
		if newStatus == Filled && newFilled.Cmp(o.Quantity) != 0 {
			r.mu.Unlock()
			return ErrInvalidTransition
		}
	}
	o.FilledQuantity = new(big.Int).Set(newFilled)
	o.Status = newStatus
	r.mu.Unlock()

	r.bus.Publish(events.OrderStatusUpdated{
		OrderID:      uint64(id),
		NewStatus:    newStatus.String(),
		NewFilledQty: new(big.Int).Set(newFilled),
	})
	return nil
}

// Cancel is a convenience wrapper transitioning an OPEN or
// PARTIALLY_FILLED order to CANCELED, preserving filled_quantity.
func (r *Registry) Cancel(held admin.Token, id OrderID) error {
	r.mu.RLock()
	o, ok := r.orders[id]
	if !ok {
		r.mu.RUnlock()
		return ErrNotFound
	}
	filled := new(big.Int).Set(o.FilledQuantity)
	r.mu.RUnlock()
	return r.UpdateStatus(held, id, Canceled, filled)
}

// Restore sets an order's status and filled quantity directly, for undoing
// a status change. It bypasses the monotonic-transition check since it is
// reversing, not advancing, state, but still requires the capability
// token. Nothing in this tree calls it.
func (r *Registry) Restore(held admin.Token, id OrderID, status Status, filled *big.Int) error {
	if err := admin.Authorize(r.token, held); err != nil {
		return err
	}
	r.mu.Lock()
	o, ok := r.orders[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	o.Status = status
	o.FilledQuantity = new(big.Int).Set(filled)
	r.mu.Unlock()
	return nil
}

// Delete is used by the Facade to undo a Create when a FOK order cannot be
// fully filled (or matching fails) within the same call: since the order was
// never externally observable (OrderCreated is only published after the
// whole call succeeds, see internal/facade), removing it keeps "orders are
// never deleted" true for every order any caller could ever have Get'd.
func (r *Registry) Delete(held admin.Token, id OrderID) error {
	if err := admin.Authorize(r.token, held); err != nil {
		return err
	}
	r.mu.Lock()
	o, ok := r.orders[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.orders, id)
	r.byTrader.Delete(traderIndexItem{trader: o.Trader, id: id})
	r.mu.Unlock()
	return nil
}

// OrdersOf returns the ids of every order ever created by trader, oldest
// first. Read-only; no capability required.
func (r *Registry) OrdersOf(trader TraderID) []OrderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []OrderID
	pivot := traderIndexItem{trader: trader, id: 0}
	r.byTrader.AscendGreaterOrEqual(pivot, func(item gbtree.Item) bool {
		ti := item.(traderIndexItem)
		if ti.trader != trader {
			return false
		}
		ids = append(ids, ti.id)
		return true
	})
	return ids
}
