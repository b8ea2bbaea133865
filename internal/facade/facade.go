// Package facade is the engine's single entry point: it drives one
// trading pair's Registry, Book and Vault through the per-order execution
// protocol (spec §4.4) and gives the whole call — creation, matching,
// settlement, and resting or canceling whatever remains — a single
// observable outcome via a shared events.TxBus. A call that fails before
// settlement (a FOK that cannot fill) leaves no trace; a call whose
// settlement fails partway commits the settlements already made and
// returns the error.
//
// A Facade is wired to exactly one pair and is not safe for concurrent
// use; the engine gives each pair's own goroutine (see internal/pairsup)
// exclusive access to that pair's Facade, consistent with the
// one-worker-per-pair scheduling model events.TxBus assumes.
package facade

import (
	"context"
	"errors"
	"math/big"

	"clob/internal/admin"
	"clob/internal/book"
	"clob/internal/events"
	"clob/internal/fixed"
	"clob/internal/registry"
	"clob/internal/vault"
)

var (
	ErrInvalidQuantity = errors.New("facade: quantity must be positive")
	ErrInvalidPrice    = errors.New("facade: price must be positive")
	ErrInvalidBudget   = errors.New("facade: quote budget must be positive")
	ErrFOKUnfillable   = errors.New("facade: fill-or-kill order cannot be fully filled at submission")
	ErrNotOwner        = errors.New("facade: caller does not own this order")
)

// Facade owns one pair's slice of the engine: its own Registry, Book,
// Vault and TxBus, all sharing the same admin.Token minted once at
// wiring time.
type Facade struct {
	token         admin.Token
	pair          admin.Pair
	baseDecimals  uint8
	quoteDecimals uint8

	reg  *registry.Registry
	book *book.Book
	vlt  *vault.Vault
	fees *admin.FeeConfig
	tx   *events.TxBus
}

func New(
	token admin.Token,
	pair admin.Pair,
	baseDecimals, quoteDecimals uint8,
	reg *registry.Registry,
	bk *book.Book,
	vlt *vault.Vault,
	fees *admin.FeeConfig,
	tx *events.TxBus,
) *Facade {
	return &Facade{
		token:         token,
		pair:          pair,
		baseDecimals:  baseDecimals,
		quoteDecimals: quoteDecimals,
		reg:           reg,
		book:          bk,
		vlt:           vlt,
		fees:          fees,
		tx:            tx,
	}
}

// PlaceLimit creates a LIMIT order, matches it against the book up to its
// price, and rests whatever quantity remains unfilled.
func (f *Facade) PlaceLimit(ctx context.Context, trader registry.TraderID, isBuy bool, price, quantity *big.Int) (registry.OrderID, error) {
	if price.Sign() <= 0 {
		return 0, ErrInvalidPrice
	}
	if quantity.Sign() <= 0 {
		return 0, ErrInvalidQuantity
	}
	return f.placeAndMatch(ctx, trader, isBuy, registry.Limit, price, quantity, nil, true)
}

// PlaceMarketByQuantity creates a MARKET order sized by base quantity. It
// never rests: any quantity the book cannot immediately fill is canceled.
func (f *Facade) PlaceMarketByQuantity(ctx context.Context, trader registry.TraderID, isBuy bool, quantity *big.Int) (registry.OrderID, error) {
	if quantity.Sign() <= 0 {
		return 0, ErrInvalidQuantity
	}
	return f.placeAndMatch(ctx, trader, isBuy, registry.Market, nil, quantity, nil, false)
}

// PlaceMarketByBudget creates a MARKET buy sized by quote spend rather
// than base quantity (spec §4.2's budget-constrained sweep). Only a buy
// can be sized this way; a sell is always sized by base quantity.
func (f *Facade) PlaceMarketByBudget(ctx context.Context, trader registry.TraderID, quoteBudget *big.Int) (registry.OrderID, error) {
	if quoteBudget.Sign() <= 0 {
		return 0, ErrInvalidBudget
	}
	return f.placeAndMatch(ctx, trader, true, registry.Market, nil, big.NewInt(0), quoteBudget, false)
}

// PlaceIOC creates an Immediate-Or-Cancel order: it matches up to its
// limit price like a LIMIT order, but never rests the remainder.
func (f *Facade) PlaceIOC(ctx context.Context, trader registry.TraderID, isBuy bool, price, quantity *big.Int) (registry.OrderID, error) {
	if price.Sign() <= 0 {
		return 0, ErrInvalidPrice
	}
	if quantity.Sign() <= 0 {
		return 0, ErrInvalidQuantity
	}
	return f.placeAndMatch(ctx, trader, isBuy, registry.IOC, price, quantity, nil, false)
}

// PlaceFOK creates a Fill-Or-Kill order: the whole requested quantity must
// be fillable immediately at its limit price or the order is rejected
// with no observable effect at all (not even an OrderCreated/OrderCanceled
// pair) — the canonical reading of the spec's open FOK question, chosen
// over leaving a zero-filled CANCELED order behind.
func (f *Facade) PlaceFOK(ctx context.Context, trader registry.TraderID, isBuy bool, price, quantity *big.Int) (registry.OrderID, error) {
	if price.Sign() <= 0 {
		return 0, ErrInvalidPrice
	}
	if quantity.Sign() <= 0 {
		return 0, ErrInvalidQuantity
	}
	return f.placeAndMatch(ctx, trader, isBuy, registry.FOK, price, quantity, nil, false)
}

// placeAndMatch runs the full protocol for every order type: create,
// match, settle, then either rest the remainder (canRest) or cancel it.
func (f *Facade) placeAndMatch(
	ctx context.Context,
	trader registry.TraderID,
	isBuy bool,
	orderType registry.OrderType,
	price, quantity, quoteBudget *big.Int,
	canRest bool,
) (registry.OrderID, error) {
	id, err := f.reg.Create(f.token, trader, f.pair, orZero(price), quantity, quoteBudget, isBuy, orderType)
	if err != nil {
		return 0, err
	}

	f.tx.Publish(events.OrderPlaced{
		OrderID:  uint64(id),
		Trader:   string(trader),
		IsBuy:    isBuy,
		Price:    orZero(price),
		Quantity: quantity,
	})

	_, takerBps := f.fees.Rates()

	taker := book.TakerInput{
		ID:           id,
		Trader:       trader,
		IsBuy:        isBuy,
		Type:         orderType,
		Price:        price,
		Quantity:     quantity,
		QuoteBudget:  quoteBudget,
		TakerFeeBps:  takerBps,
		BaseDecimals: f.baseDecimals,
	}

	settlements, undo, err := f.book.Match(taker)
	if err != nil {
		f.reg.Delete(f.token, id)
		f.tx.Discard()
		return 0, err
	}

	for _, s := range settlements {
		f.tx.Publish(events.OrderMatched{
			MakerID:  uint64(s.MakerID),
			TakerID:  uint64(s.TakerID),
			Price:    s.Price,
			Quantity: s.Quantity,
		})
	}

	if orderType == registry.FOK {
		if !fullyFilled(settlements, quantity) {
			undo()
			f.reg.Delete(f.token, id)
			f.tx.Discard()
			return 0, ErrFOKUnfillable
		}
	}

	if err := f.vlt.SettleBatch(ctx, settlements, f.reg.Get, f.baseDecimals); err != nil {
		// Whatever settlements already committed inside SettleBatch moved
		// real assets and advanced real order state; they cannot be
		// undone. Commit what actually happened instead of discarding it,
		// and surface the error so the caller knows the fill is partial.
		f.tx.Commit()
		return id, err
	}

	if err := f.finalizeRemainder(id, quoteBudget, settlements, canRest); err != nil {
		f.tx.Commit()
		return id, err
	}

	f.tx.Commit()
	return id, nil
}

// finalizeRemainder handles whatever quantity (or budget) Match did not
// consume: LIMIT orders rest it on the book, everything else cancels it.
func (f *Facade) finalizeRemainder(
	id registry.OrderID,
	quoteBudget *big.Int,
	settlements []book.Settlement,
	canRest bool,
) error {
	order, err := f.reg.Get(id)
	if err != nil {
		return err
	}
	if order.Status == registry.Filled || order.Status == registry.Canceled {
		return nil
	}

	if quoteBudget != nil {
		spent := big.NewInt(0)
		_, takerBps := f.fees.Rates()
		for _, s := range settlements {
			amt := fixed.QuoteAmount(s.Quantity, s.Price, f.baseDecimals)
			fee := fixed.BpsTrunc(amt, takerBps)
			spent.Add(spent, new(big.Int).Add(amt, fee))
		}
		remaining := new(big.Int).Sub(quoteBudget, spent)
		status := registry.Canceled
		if remaining.Sign() <= 0 {
			status = registry.Filled
		}
		return f.reg.UpdateStatus(f.token, id, status, order.FilledQuantity)
	}

	if canRest {
		return f.book.Insert(order)
	}

	return f.reg.Cancel(f.token, id)
}

// Cancel cancels an open or partially-filled order owned by trader,
// removing it from the book if it was resting.
func (f *Facade) Cancel(ctx context.Context, trader registry.TraderID, id registry.OrderID) error {
	order, err := f.reg.Get(id)
	if err != nil {
		return err
	}
	if order.Trader != trader {
		return ErrNotOwner
	}

	if err := f.reg.Cancel(f.token, id); err != nil {
		f.tx.Discard()
		return err
	}
	if err := f.book.Remove(id); err != nil && !errors.Is(err, book.ErrOrderNotResting) {
		f.tx.Commit()
		return err
	}

	f.tx.Publish(events.OrderCanceled{OrderID: uint64(id), Trader: string(trader)})
	f.tx.Commit()
	return nil
}

func fullyFilled(settlements []book.Settlement, quantity *big.Int) bool {
	sum := big.NewInt(0)
	for _, s := range settlements {
		sum.Add(sum, s.Quantity)
	}
	return sum.Cmp(quantity) == 0
}

func orZero(price *big.Int) *big.Int {
	if price == nil {
		return big.NewInt(0)
	}
	return price
}
