// Package book implements the price-indexed resting-order structure and
// the price-time-priority matching algorithm. It is grounded on the
// teacher's tidwall/btree price-level tree (internal/engine/orderbook.go in
// the original fenrir module), generalized from float64 price keys to the
// fixed-point *big.Int the rest of this engine uses, and reworked so that
// matching returns Settlements for the Vault to apply instead of calling
// into a Trade callback directly.
package book

import (
	"errors"
	"math/big"

	"github.com/tidwall/btree"

	"clob/internal/fixed"
	"clob/internal/registry"
)

var (
	ErrOrderNotResting = errors.New("book: order is not resting")
	ErrZeroPrice       = errors.New("book: price must be non-zero for a resting order")
)

// RestingOrder is the Book's own working copy of a resting order: just
// enough to run the matching walk and maintain price-level aggregates.
// The Registry remains the authoritative owner of the full Order record;
// the Book only ever references orders by identifier plus this small
// cache of the fields matching needs.
type RestingOrder struct {
	ID        registry.OrderID
	Trader    registry.TraderID
	Price     *big.Int
	Remaining *big.Int
}

// PriceLevel is a bucket of FIFO-ordered resting orders at one price.
type PriceLevel struct {
	Price  *big.Int
	Orders []*RestingOrder
}

func (l *PriceLevel) totalRemaining() *big.Int {
	sum := big.NewInt(0)
	for _, o := range l.Orders {
		sum.Add(sum, o.Remaining)
	}
	return sum
}

type levels = btree.BTreeG[*PriceLevel]

// Settlement is the transient record Match produces per crossed pair of
// orders; the Vault turns each into asset movement.
type Settlement struct {
	TakerID  registry.OrderID
	MakerID  registry.OrderID
	Quantity *big.Int
	Price    *big.Int
}

// TakerInput describes the aggressing order the caller wants matched.
// Quantity is the remaining base quantity to fill; for a MARKET buy sized
// by spend rather than base quantity, Quantity is zero and QuoteBudget is
// set instead.
type TakerInput struct {
	ID           registry.OrderID
	Trader       registry.TraderID
	IsBuy        bool
	Type         registry.OrderType
	Price        *big.Int // nil/zero for MARKET; the limit price otherwise.
	Quantity     *big.Int
	QuoteBudget  *big.Int
	TakerFeeBps  fixed.Bps
	BaseDecimals uint8
}

// Book holds both sides of one trading pair's resting orders.
type Book struct {
	bids *levels // highest price first
	asks *levels // lowest price first

	restingLevel map[registry.OrderID]*big.Int // order id -> price it rests at
	side         map[registry.OrderID]bool     // order id -> true if resting on the bid side
}

func New() *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.Cmp(b.Price) > 0 // higher price sorts first
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.Cmp(b.Price) < 0 // lower price sorts first
	})
	return &Book{
		bids:         bids,
		asks:         asks,
		restingLevel: make(map[registry.OrderID]*big.Int),
		side:         make(map[registry.OrderID]bool),
	}
}

func (b *Book) sideTree(isBuy bool) *levels {
	if isBuy {
		return b.bids
	}
	return b.asks
}

func (b *Book) oppositeTree(isBuy bool) *levels {
	if isBuy {
		return b.asks
	}
	return b.bids
}

// Insert places order at its price level, appended to the FIFO tail. The
// order must have quantity remaining and a non-zero price; a fully-filled
// order or one with nothing left to rest is silently a no-op.
func (b *Book) Insert(order registry.Order) error {
	remaining := order.Remaining()
	if remaining.Sign() <= 0 {
		return nil
	}
	if order.Price.Sign() <= 0 {
		return ErrZeroPrice
	}

	tree := b.sideTree(order.IsBuy)
	pivot := &PriceLevel{Price: order.Price}
	level, ok := tree.Get(pivot)
	if !ok {
		level = &PriceLevel{Price: new(big.Int).Set(order.Price)}
		tree.Set(level)
	}
	level.Orders = append(level.Orders, &RestingOrder{
		ID:        order.ID,
		Trader:    order.Trader,
		Price:     level.Price,
		Remaining: new(big.Int).Set(remaining),
	})
	b.restingLevel[order.ID] = level.Price
	b.side[order.ID] = order.IsBuy
	return nil
}

// Remove takes a resting order off the book. Callers are expected to only
// call this for an order that has reached a terminal status.
func (b *Book) Remove(id registry.OrderID) error {
	price, ok := b.restingLevel[id]
	if !ok {
		return ErrOrderNotResting
	}
	isBuy := b.side[id]
	tree := b.sideTree(isBuy)
	b.removeFromLevel(tree, price, id)
	delete(b.restingLevel, id)
	delete(b.side, id)
	return nil
}

func (b *Book) removeFromLevel(tree *levels, price *big.Int, id registry.OrderID) {
	level, ok := tree.Get(&PriceLevel{Price: price})
	if !ok {
		return
	}
	for i, o := range level.Orders {
		if o.ID == id {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	if len(level.Orders) == 0 {
		tree.Delete(level)
	}
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (*big.Int, bool) {
	l, ok := b.bids.Min()
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(l.Price), true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (*big.Int, bool) {
	l, ok := b.asks.Min()
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(l.Price), true
}

// QuantityAt returns the aggregate resting quantity at price on the given
// side (true = bid).
func (b *Book) QuantityAt(price *big.Int, isBuy bool) *big.Int {
	tree := b.sideTree(isBuy)
	l, ok := tree.Get(&PriceLevel{Price: price})
	if !ok {
		return big.NewInt(0)
	}
	return l.totalRemaining()
}

// levelSnapshot captures enough of one price level to restore it exactly
// if an enclosing transaction needs to undo a Match.
type levelSnapshot struct {
	price  *big.Int
	orders []*RestingOrder // deep copies, in original FIFO order
}

func snapshotLevel(l *PriceLevel) levelSnapshot {
	cp := make([]*RestingOrder, len(l.Orders))
	for i, o := range l.Orders {
		cp[i] = &RestingOrder{ID: o.ID, Trader: o.Trader, Price: o.Price, Remaining: new(big.Int).Set(o.Remaining)}
	}
	return levelSnapshot{price: l.Price, orders: cp}
}

// Match drives the matching walk for taker and returns the settlements it
// produced, plus an undo closure that restores every book-side mutation
// Match made (removed/shrunk makers) in case a caller's enclosing
// transaction has to roll back after a later settlement step fails. Match
// itself never fails; an empty result with no crossing is a normal
// outcome.
//
// Implementation note: the walk is done in two phases — collect the
// candidate best-first price levels via a single Scan, then mutate them —
// because mutating price levels while iterating the tree that holds them
// is not a safety guarantee tidwall/btree makes. Levels emptied by the
// walk are deleted from the tree only after the scan has finished.
func (b *Book) Match(taker TakerInput) (settlements []Settlement, undo func(), err error) {
	tree := b.oppositeTree(taker.IsBuy)

	crosses := func(levelPrice *big.Int) bool {
		if taker.Type == registry.Market {
			return true
		}
		if taker.IsBuy {
			return taker.Price.Cmp(levelPrice) >= 0
		}
		return taker.Price.Cmp(levelPrice) <= 0
	}

	var candidates []*PriceLevel
	tree.Scan(func(l *PriceLevel) bool {
		if !crosses(l.Price) {
			return false
		}
		candidates = append(candidates, l)
		return true
	})

	remainingQty := big.NewInt(0)
	if taker.Quantity != nil {
		remainingQty.Set(taker.Quantity)
	}
	budgetMode := taker.QuoteBudget != nil
	remainingBudget := big.NewInt(0)
	if budgetMode {
		remainingBudget.Set(taker.QuoteBudget)
	}
	hasMore := func() bool {
		if budgetMode {
			return remainingBudget.Sign() > 0
		}
		return remainingQty.Sign() > 0
	}

	touched := make(map[string]levelSnapshot) // keyed by price string; *big.Int is not map-key-comparable
	var emptied []*PriceLevel

	for _, level := range candidates {
		if !hasMore() {
			break
		}

		i := 0
		for i < len(level.Orders) && hasMore() {
			maker := level.Orders[i]
			if maker.Trader == taker.Trader {
				i++
				continue
			}

			var fillQty *big.Int
			if budgetMode {
				fillQty = affordableQuantity(maker.Remaining, level.Price, taker.BaseDecimals, taker.TakerFeeBps, remainingBudget)
				if fillQty.Sign() == 0 {
					remainingBudget.SetInt64(0)
					break
				}
			} else {
				fillQty = fixed.Min(remainingQty, maker.Remaining)
			}

			if _, ok := touched[level.Price.String()]; !ok {
				touched[level.Price.String()] = snapshotLevel(level)
			}

			settlements = append(settlements, Settlement{
				TakerID:  taker.ID,
				MakerID:  maker.ID,
				Quantity: new(big.Int).Set(fillQty),
				Price:    new(big.Int).Set(level.Price),
			})

			maker.Remaining.Sub(maker.Remaining, fillQty)
			if budgetMode {
				cost := fixed.QuoteAmount(fillQty, level.Price, taker.BaseDecimals)
				fee := fixed.BpsTrunc(cost, taker.TakerFeeBps)
				remainingBudget.Sub(remainingBudget, new(big.Int).Add(cost, fee))
			} else {
				remainingQty.Sub(remainingQty, fillQty)
			}

			if maker.Remaining.Sign() == 0 {
				level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
				delete(b.restingLevel, maker.ID)
				delete(b.side, maker.ID)
				continue // slice shifted left; don't advance i
			}
			i++
		}

		if len(level.Orders) == 0 {
			emptied = append(emptied, level)
		}
	}

	for _, level := range emptied {
		tree.Delete(level)
	}

	undo = func() {
		for _, snap := range touched {
			b.restoreLevel(tree, taker.IsBuy, snap)
		}
	}
	return settlements, undo, nil
}

func (b *Book) restoreLevel(tree *levels, takerIsBuy bool, snap levelSnapshot) {
	if len(snap.orders) == 0 {
		return
	}
	existing, ok := tree.Get(&PriceLevel{Price: snap.price})
	if !ok {
		existing = &PriceLevel{Price: snap.price}
		tree.Set(existing)
	}
	existing.Orders = snap.orders
	for _, o := range snap.orders {
		b.restingLevel[o.ID] = existing.Price
		b.side[o.ID] = !takerIsBuy
	}
}

// affordableQuantity returns the largest q in [0, maxQty] such that
// quoteAmount(q) + takerFee(quoteAmount(q)) <= budget, via binary search
// since the truncating double-division cost function has no closed-form
// inverse but is monotonic non-decreasing in q.
func affordableQuantity(maxQty, price *big.Int, baseDecimals uint8, takerBps fixed.Bps, budget *big.Int) *big.Int {
	cost := func(q *big.Int) *big.Int {
		amt := fixed.QuoteAmount(q, price, baseDecimals)
		fee := fixed.BpsTrunc(amt, takerBps)
		return new(big.Int).Add(amt, fee)
	}
	if cost(maxQty).Cmp(budget) <= 0 {
		return new(big.Int).Set(maxQty)
	}
	lo := big.NewInt(0)
	hi := new(big.Int).Set(maxQty)
	one := big.NewInt(1)
	two := big.NewInt(2)
	for lo.Cmp(hi) < 0 {
		mid := new(big.Int).Add(lo, hi)
		mid.Add(mid, one)
		mid.Quo(mid, two)
		if cost(mid).Cmp(budget) <= 0 {
			lo.Set(mid)
		} else {
			hi.Sub(mid, one)
		}
	}
	return lo
}
