// Command client is a CLI for the engine's TCP order-entry protocol,
// adapted from the teacher's cmd/client/client.go: the same flag-driven
// place/cancel/ping actions and async report-reading goroutine, with the
// teacher's fixed float64/uint64 wire fields replaced by internal/wire's
// decimal-string framing and this engine's LIMIT/MARKET/IOC/FOK order
// kinds and budget-sized MARKET buys.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"clob/internal/wire"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the exchange server")
	trader := flag.String("trader", "", "trader id (compulsory)")
	action := flag.String("action", "place", "action to perform: 'place', 'cancel', 'ping'")

	base := flag.String("base", "BTC", "base asset symbol")
	quote := flag.String("quote", "USD", "quote asset symbol")
	sideStr := flag.String("side", "buy", "order side: 'buy' or 'sell'")
	kindStr := flag.String("kind", "limit", "order kind: 'limit', 'market', 'ioc' or 'fok'")
	price := flag.String("price", "", "limit price, as a decimal string (e.g. \"100.50\")")
	quantity := flag.String("qty", "", "quantity, as a decimal string")
	budget := flag.String("budget", "", "quote spend budget for a MARKET buy sized by spend")

	orderID := flag.Uint64("order-id", 0, "order id to cancel")

	flag.Parse()

	if *trader == "" {
		fmt.Println("Error: -trader is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as %q\n", *serverAddr, *trader)

	go readReports(conn)

	switch strings.ToLower(*action) {
	case "place":
		req := wire.PlaceOrderRequest{
			RequestID:   uuid.New(),
			Base:        *base,
			Quote:       *quote,
			Kind:        parseKind(*kindStr),
			IsBuy:       strings.ToLower(*sideStr) != "sell",
			Price:       *price,
			Quantity:    *quantity,
			QuoteBudget: *budget,
			Trader:      *trader,
		}
		if _, err := conn.Write(wire.EncodePlaceOrder(req)); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Printf("-> sent %s %s %s/%s\n", kindStr2(req.Kind), *sideStr, *base, *quote)

	case "cancel":
		if *orderID == 0 {
			log.Fatal("Error: -order-id is required for cancellation")
		}
		req := wire.CancelOrderRequest{RequestID: uuid.New(), OrderID: *orderID, Trader: *trader}
		if _, err := conn.Write(wire.EncodeCancelOrder(req)); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> sent cancel for order %d\n", *orderID)

	case "ping":
		if _, err := conn.Write([]byte{0, byte(wire.TypePing)}); err != nil {
			log.Fatalf("failed to send ping: %v", err)
		}

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("\nlistening for reports... (press Ctrl+C to exit)")
	select {}
}

func parseKind(s string) wire.OrderKind {
	switch strings.ToLower(s) {
	case "market":
		return wire.KindMarket
	case "ioc":
		return wire.KindIOC
	case "fok":
		return wire.KindFOK
	default:
		return wire.KindLimit
	}
}

func kindStr2(k wire.OrderKind) string { return k.String() }

// readReports continuously reads and prints Report frames from the server.
func readReports(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}
		report, err := wire.DecodeReport(buf[:n])
		if err != nil {
			log.Printf("failed to decode report: %v", err)
			continue
		}
		switch report.Type {
		case wire.ReportError:
			fmt.Printf("\n[ERROR] request=%s: %s\n", report.RequestID, report.Message)
		case wire.ReportAck:
			fmt.Printf("\n[ACK] request=%s order=%d\n", report.RequestID, report.OrderID)
		case wire.ReportSettlement:
			fmt.Printf("\n[SETTLEMENT] order=%d %s\n", report.OrderID, report.Message)
		}
		time.Sleep(time.Millisecond) // yield between frames when several arrive back-to-back
	}
}
