// Package events defines the engine's abstract, stably-named event types
// and an in-process bus to publish them on. Durable persistence and
// streaming transports are a host concern; this package only fans events
// out to whatever Sinks the host wires up (a log sink by default, see
// cmd/server).
package events

import (
	"math/big"

	"clob/internal/admin"
	"clob/internal/fixed"
)

// Event is the marker interface every event type satisfies. Name returns
// the stable event name used in logs and over the wire.
type Event interface {
	Name() string
}

type OrderCreated struct {
	OrderID   uint64
	Trader    string
	Base      string
	Quote     string
	Price     *big.Int
	Quantity  *big.Int
	IsBuy     bool
	OrderType string
}

func (OrderCreated) Name() string { return "OrderCreated" }

type OrderPlaced struct {
	OrderID  uint64
	Trader   string
	IsBuy    bool
	Price    *big.Int
	Quantity *big.Int
}

func (OrderPlaced) Name() string { return "OrderPlaced" }

type OrderMatched struct {
	MakerID  uint64
	TakerID  uint64
	Price    *big.Int
	Quantity *big.Int
}

func (OrderMatched) Name() string { return "OrderMatched" }

type SettlementProcessed struct {
	TakerID  uint64
	MakerID  uint64
	Quantity *big.Int
	Price    *big.Int
	MakerFee *big.Int
	TakerFee *big.Int
}

func (SettlementProcessed) Name() string { return "SettlementProcessed" }

type OrderStatusUpdated struct {
	OrderID      uint64
	NewStatus    string
	NewFilledQty *big.Int
}

func (OrderStatusUpdated) Name() string { return "OrderStatusUpdated" }

type OrderCanceled struct {
	OrderID uint64
	Trader  string
}

func (OrderCanceled) Name() string { return "OrderCanceled" }

type FeeRateUpdated struct {
	MakerBps fixed.Bps
	TakerBps fixed.Bps
}

func (FeeRateUpdated) Name() string { return "FeeRateUpdated" }

type AdminAdded struct {
	Principal admin.Principal
}

func (AdminAdded) Name() string { return "AdminAdded" }
