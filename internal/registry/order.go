// Package registry is the authoritative owner of every Order the engine has
// ever created. Nothing outside this package mutates an Order directly;
// the Book holds identifiers only, and the Vault reads orders through the
// Registry and requests status changes through it.
package registry

import (
	"math/big"
	"time"

	"clob/internal/admin"
)

// OrderID is a monotonically increasing identifier. It is never derived
// from order content, so that it can double as the FIFO tie-break key a
// price level needs.
type OrderID uint64

// TraderID identifies the account that owns an order.
type TraderID string

// Pair is re-exported from admin so registry callers don't need to import
// both packages just to name a market.
type Pair = admin.Pair

// OrderType selects the matching/resting behavior the Facade applies.
type OrderType uint8

const (
	Limit OrderType = iota
	Market
	IOC
	FOK
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// Status is the order lifecycle state. Progression is one-way: OPEN may
// move to PARTIALLY_FILLED, FILLED or CANCELED; PARTIALLY_FILLED may move
// to FILLED or CANCELED; FILLED and CANCELED are terminal.
type Status uint8

const (
	Open Status = iota
	PartiallyFilled
	Filled
	Canceled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "OPEN"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Canceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) terminal() bool { return s == Filled || s == Canceled }

// Order is the central entity. Quantity, Price, FilledQuantity and
// QuoteBudget are fixed-point big.Ints; see internal/fixed.
//
// Order values handed out by Get are deep copies: every *big.Int field is
// a fresh value, so mutating it never affects the registry's own record.
type Order struct {
	ID             OrderID
	Trader         TraderID
	Pair           Pair
	IsBuy          bool
	Price          *big.Int // quote-per-base, fixed point. Zero for MARKET.
	Quantity       *big.Int // total base quantity requested. May be zero for a MARKET buy driven by QuoteBudget.
	FilledQuantity *big.Int
	QuoteBudget    *big.Int // non-nil only for a MARKET buy sized by spend rather than base quantity.
	Type           OrderType
	Status         Status
	CreatedAt      time.Time
}

// Remaining returns Quantity - FilledQuantity.
func (o Order) Remaining() *big.Int {
	return new(big.Int).Sub(o.Quantity, o.FilledQuantity)
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Price = new(big.Int).Set(o.Price)
	cp.Quantity = new(big.Int).Set(o.Quantity)
	cp.FilledQuantity = new(big.Int).Set(o.FilledQuantity)
	if o.QuoteBudget != nil {
		cp.QuoteBudget = new(big.Int).Set(o.QuoteBudget)
	}
	return &cp
}
