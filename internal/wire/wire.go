// Package wire is the engine's client-facing binary protocol, adapted from
// the teacher's internal/net/messages.go: the same length-prefixed,
// BigEndian fixed-header-plus-variable-tail framing, generalized from the
// teacher's float64 price/uint64 quantity fields to the decimal-string
// encoding internal/fixed's ParseDecimal/FormatDecimal expect at the wire
// boundary, and extended with the order types and request-id correlation
// this engine's richer Facade surface needs (LIMIT/MARKET/IOC/FOK, budget
// sizing, cancel-by-owner).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidMessageType = errors.New("wire: invalid message type")
	ErrMessageTooShort    = errors.New("wire: message too short")
)

// MessageType is the 2-byte request discriminator.
type MessageType uint16

const (
	TypePlaceOrder MessageType = iota
	TypeCancelOrder
	TypePing
)

// ReportType is the 1-byte response discriminator.
type ReportType uint8

const (
	ReportAck ReportType = iota
	ReportError
	ReportSettlement
)

// OrderKind mirrors registry.OrderType without importing it, keeping wire
// a leaf package the core does not depend on.
type OrderKind uint8

const (
	KindLimit OrderKind = iota
	KindMarket
	KindIOC
	KindFOK
)

const headerLen = 2 // MessageType

// PlaceOrderRequest is the decoded form of a TypePlaceOrder message. Price,
// Quantity and QuoteBudget are decimal strings ("1.50"), parsed by the
// caller via fixed.ParseDecimal against the pair's configured precision —
// wire never touches math/big itself.
type PlaceOrderRequest struct {
	RequestID   uuid.UUID
	Base        string
	Quote       string
	Kind        OrderKind
	IsBuy       bool
	Price       string // empty for MARKET-by-quantity or MARKET-by-budget
	Quantity    string // empty for MARKET-by-budget
	QuoteBudget string // empty unless sizing a MARKET buy by spend
	Trader      string
}

// CancelOrderRequest is the decoded form of a TypeCancelOrder message.
type CancelOrderRequest struct {
	RequestID uuid.UUID
	OrderID   uint64
	Trader    string
}

// Decode reads the 2-byte type header and dispatches to the matching
// request decoder.
func Decode(msg []byte) (any, error) {
	if len(msg) < headerLen {
		return nil, ErrMessageTooShort
	}
	typ := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typ {
	case TypePlaceOrder:
		return decodePlaceOrder(body)
	case TypeCancelOrder:
		return decodeCancelOrder(body)
	case TypePing:
		return struct{}{}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

// EncodePlaceOrder serializes a PlaceOrderRequest for a client to send.
// Layout: type(2) requestID(16) kind(1) isBuy(1) baseLen(1) base quoteLen(1)
// quote priceLen(1) price qtyLen(1) qty budgetLen(1) budget traderLen(1) trader.
func EncodePlaceOrder(r PlaceOrderRequest) []byte {
	buf := []byte{}
	put16 := func(v uint16) { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); buf = append(buf, b...) }
	putStr := func(s string) { buf = append(buf, byte(len(s))); buf = append(buf, []byte(s)...) }

	put16(uint16(TypePlaceOrder))
	buf = append(buf, r.RequestID[:]...)
	buf = append(buf, byte(r.Kind))
	isBuy := byte(0)
	if r.IsBuy {
		isBuy = 1
	}
	buf = append(buf, isBuy)
	putStr(r.Base)
	putStr(r.Quote)
	putStr(r.Price)
	putStr(r.Quantity)
	putStr(r.QuoteBudget)
	putStr(r.Trader)
	return buf
}

func decodePlaceOrder(b []byte) (PlaceOrderRequest, error) {
	var r PlaceOrderRequest
	if len(b) < 16+1+1 {
		return r, ErrMessageTooShort
	}
	copy(r.RequestID[:], b[0:16])
	b = b[16:]
	r.Kind = OrderKind(b[0])
	r.IsBuy = b[1] != 0
	b = b[2:]

	read := func() (string, error) {
		if len(b) < 1 {
			return "", ErrMessageTooShort
		}
		n := int(b[0])
		b = b[1:]
		if len(b) < n {
			return "", ErrMessageTooShort
		}
		s := string(b[:n])
		b = b[n:]
		return s, nil
	}

	var err error
	if r.Base, err = read(); err != nil {
		return r, err
	}
	if r.Quote, err = read(); err != nil {
		return r, err
	}
	if r.Price, err = read(); err != nil {
		return r, err
	}
	if r.Quantity, err = read(); err != nil {
		return r, err
	}
	if r.QuoteBudget, err = read(); err != nil {
		return r, err
	}
	if r.Trader, err = read(); err != nil {
		return r, err
	}
	return r, nil
}

// EncodeCancelOrder serializes a CancelOrderRequest.
// Layout: type(2) requestID(16) orderID(8) traderLen(1) trader.
func EncodeCancelOrder(r CancelOrderRequest) []byte {
	buf := make([]byte, 2+16+8+1)
	binary.BigEndian.PutUint16(buf[0:2], uint16(TypeCancelOrder))
	copy(buf[2:18], r.RequestID[:])
	binary.BigEndian.PutUint64(buf[18:26], r.OrderID)
	buf[26] = byte(len(r.Trader))
	buf = append(buf, []byte(r.Trader)...)
	return buf
}

func decodeCancelOrder(b []byte) (CancelOrderRequest, error) {
	var r CancelOrderRequest
	if len(b) < 16+8+1 {
		return r, ErrMessageTooShort
	}
	copy(r.RequestID[:], b[0:16])
	r.OrderID = binary.BigEndian.Uint64(b[16:24])
	n := int(b[24])
	b = b[25:]
	if len(b) < n {
		return r, ErrMessageTooShort
	}
	r.Trader = string(b[:n])
	return r, nil
}

// Report is a response frame: an ack, an error, or a settlement
// notification, all using the same envelope so a single read loop can
// dispatch on ReportType.
type Report struct {
	Type      ReportType
	RequestID uuid.UUID
	OrderID   uint64
	Message   string // populated for ReportError; human-readable
}

// Encode serializes a Report for the wire.
// Layout: type(1) requestID(16) orderID(8) msgLen(2) msg.
func (r Report) Encode() []byte {
	msg := []byte(r.Message)
	buf := make([]byte, 1+16+8+2, 1+16+8+2+len(msg))
	buf[0] = byte(r.Type)
	copy(buf[1:17], r.RequestID[:])
	binary.BigEndian.PutUint64(buf[17:25], r.OrderID)
	binary.BigEndian.PutUint16(buf[25:27], uint16(len(msg)))
	buf = append(buf, msg...)
	return buf
}

// DecodeReport parses a Report frame a client receives back.
func DecodeReport(b []byte) (Report, error) {
	var r Report
	if len(b) < 1+16+8+2 {
		return r, ErrMessageTooShort
	}
	r.Type = ReportType(b[0])
	copy(r.RequestID[:], b[1:17])
	r.OrderID = binary.BigEndian.Uint64(b[17:25])
	n := int(binary.BigEndian.Uint16(b[25:27]))
	b = b[27:]
	if len(b) < n {
		return r, ErrMessageTooShort
	}
	r.Message = string(b[:n])
	return r, nil
}

func (k OrderKind) String() string {
	switch k {
	case KindLimit:
		return "LIMIT"
	case KindMarket:
		return "MARKET"
	case KindIOC:
		return "IOC"
	case KindFOK:
		return "FOK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}
