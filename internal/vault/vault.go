// Package vault turns book.Settlements into atomic asset movements and
// order-status transitions. It owns fee arithmetic and match-level replay
// protection; it never touches the Book's or Registry's internal state
// directly, only through the capabilities and interfaces they expose.
package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	pkgerrors "github.com/pkg/errors"

	"clob/internal/admin"
	"clob/internal/book"
	"clob/internal/events"
	"clob/internal/fixed"
	"clob/internal/registry"
)

var (
	ErrAlreadyProcessed   = errors.New("vault: settlement already processed")
	ErrInsufficientAssets = errors.New("vault: asset transfer failed")
)

// AssetTransferer is the minimal custody capability the core consumes. A
// call either succeeds or fails outright; the Vault never assumes partial
// success from it. Real custody lives outside this module (spec §6);
// internal/ledger provides an in-memory reference implementation for
// tests and the demo server.
type AssetTransferer interface {
	Transfer(ctx context.Context, from, to registry.TraderID, asset string, amount *big.Int) error
}

// processedKey identifies one (taker, maker) match for replay protection.
type processedKey struct {
	taker registry.OrderID
	maker registry.OrderID
}

// Vault settles matches produced by the Book against a Registry and an
// AssetTransferer. One Vault is wired per pair, sharing that pair's
// Registry, FeeConfig and TxBus, consistent with the one-worker-per-pair
// scheduling model (see internal/events.TxBus).
type Vault struct {
	token     admin.Token
	reg       *registry.Registry
	transfer  AssetTransferer
	fees      *admin.FeeConfig
	bus       events.Sink
	processed map[processedKey]struct{}
}

func New(token admin.Token, reg *registry.Registry, transfer AssetTransferer, fees *admin.FeeConfig, bus events.Sink) *Vault {
	return &Vault{
		token:     token,
		reg:       reg,
		transfer:  transfer,
		fees:      fees,
		bus:       bus,
		processed: make(map[processedKey]struct{}),
	}
}

// CalculateFees is a pure function exposed for external inspection: given
// a fill at the maker's price, it returns (makerFee, takerFee), both
// denominated in the quote asset.
func (v *Vault) CalculateFees(quantity, price *big.Int, baseDecimals uint8) (makerFee, takerFee *big.Int) {
	makerBps, takerBps := v.fees.Rates()
	quoteAmount := fixed.QuoteAmount(quantity, price, baseDecimals)
	return fixed.BpsTrunc(quoteAmount, makerBps), fixed.BpsTrunc(quoteAmount, takerBps)
}

// Settle performs one settlement: fee calculation, the three asset
// transfers (base seller→buyer, net quote buyer→seller, combined fee
// buyer→recipient), SettlementProcessed, then both legs' Registry status
// updates. taker/maker are the caller's already fetched Order records
// (SettleBatch fetches both through its orderOf callback); baseDecimals
// comes from the pair's configuration. A failed transfer is returned as
// is: transfers that already succeeded in this call are not reversed.
func (v *Vault) Settle(ctx context.Context, s book.Settlement, taker, maker registry.Order, baseDecimals uint8) error {
	key := processedKey{taker: s.TakerID, maker: s.MakerID}
	if _, ok := v.processed[key]; ok {
		return ErrAlreadyProcessed
	}

	makerFee, takerFee := v.CalculateFees(s.Quantity, s.Price, baseDecimals)
	quoteAmount := fixed.QuoteAmount(s.Quantity, s.Price, baseDecimals)
	recipient := registry.TraderID(v.fees.Recipient())

	buyer, seller := taker, maker
	if !taker.IsBuy {
		buyer, seller = maker, taker
	}

	if err := v.transfer.Transfer(ctx, seller.Trader, buyer.Trader, taker.Pair.Base, s.Quantity); err != nil {
		return pkgerrors.Wrap(wrapInsufficient(err), "vault: base asset transfer")
	}

	// The buyer funds the whole trade: quote_amount - maker_fee goes to the
	// seller (the maker's fee is netted out of what they receive, per
	// spec §4.3), and maker_fee + taker_fee together go to the fee
	// recipient. The maker is never separately debited — its fee is
	// already reflected in the smaller amount it was credited.
	makerNet := new(big.Int).Sub(quoteAmount, makerFee)
	if err := v.transfer.Transfer(ctx, buyer.Trader, seller.Trader, taker.Pair.Quote, makerNet); err != nil {
		return pkgerrors.Wrap(wrapInsufficient(err), "vault: quote asset transfer to maker")
	}
	totalFee := new(big.Int).Add(makerFee, takerFee)
	if totalFee.Sign() > 0 {
		if err := v.transfer.Transfer(ctx, buyer.Trader, recipient, taker.Pair.Quote, totalFee); err != nil {
			return pkgerrors.Wrap(wrapInsufficient(err), "vault: fee transfer")
		}
	}

	// A budget-sized MARKET buy (taker.QuoteBudget != nil) has no fixed
	// total quantity to compare against here; its terminal status is
	// resolved by the Facade once the whole batch and any budget
	// exhaustion/book-exhaustion outcome is known. Everything else
	// promotes to FILLED the moment its quantity is fully matched.
	// SettlementProcessed is published before either leg's terminal status
	// update, per the event-ordering guarantee: all Settlements precede
	// the Status updates they cause.
	v.processed[key] = struct{}{}
	v.bus.Publish(events.SettlementProcessed{
		TakerID:  uint64(s.TakerID),
		MakerID:  uint64(s.MakerID),
		Quantity: new(big.Int).Set(s.Quantity),
		Price:    new(big.Int).Set(s.Price),
		MakerFee: makerFee,
		TakerFee: takerFee,
	})

	takerFilled := new(big.Int).Add(taker.FilledQuantity, s.Quantity)
	takerStatus := registry.PartiallyFilled
	if taker.QuoteBudget == nil && takerFilled.Cmp(taker.Quantity) == 0 {
		takerStatus = registry.Filled
	}
	if err := v.reg.UpdateStatus(v.token, taker.ID, takerStatus, takerFilled); err != nil {
		return pkgerrors.Wrap(err, "vault: taker status update")
	}

	makerFilled := new(big.Int).Add(maker.FilledQuantity, s.Quantity)
	makerStatus := registry.PartiallyFilled
	if makerFilled.Cmp(maker.Quantity) == 0 {
		makerStatus = registry.Filled
	}
	if err := v.reg.UpdateStatus(v.token, maker.ID, makerStatus, makerFilled); err != nil {
		return pkgerrors.Wrap(err, "vault: maker status update")
	}

	return nil
}

// SettleBatch applies every settlement from one Match call, in order,
// stopping and returning the first error. It is not atomic: the transfers,
// status updates and events of settlements that completed before the
// failure stay in effect, and nothing here or in internal/facade reverses
// them (the Facade commits them and returns the error).
func (v *Vault) SettleBatch(ctx context.Context, settlements []book.Settlement, orderOf func(registry.OrderID) (registry.Order, error), baseDecimals uint8) error {
	for _, s := range settlements {
		taker, err := orderOf(s.TakerID)
		if err != nil {
			return err
		}
		maker, err := orderOf(s.MakerID)
		if err != nil {
			return err
		}
		if err := v.Settle(ctx, s, taker, maker, baseDecimals); err != nil {
			return err
		}
	}
	return nil
}

func wrapInsufficient(err error) error {
	return fmt.Errorf("%w: %v", ErrInsufficientAssets, err)
}
