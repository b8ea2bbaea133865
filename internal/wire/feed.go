package wire

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"clob/internal/events"
)

// Feed is a best-effort, read-only WebSocket push of OrderMatched and
// SettlementProcessed events, layered next to — not instead of — the
// binary TCP protocol in this package. It never affects matching or
// settlement: Publish only fans out to currently-connected subscribers and
// drops the event for anyone whose send buffer is full, rather than
// blocking the engine. Grounded on VictorVVedtion-perp-dex and
// 0xtitan6-polymarket-mm's gorilla/websocket market-data feeds.
type Feed struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
}

func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades an incoming connection to a WebSocket subscriber.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("wire: websocket upgrade failed")
		return
	}
	sub := &subscriber{conn: conn, out: make(chan []byte, 32)}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go f.writePump(sub)
	go f.readPump(sub)
}

// readPump discards anything the client sends; this feed is push-only.
// Reading is still required so gorilla/websocket's control-frame handling
// (ping/pong, close) keeps running.
func (f *Feed) readPump(sub *subscriber) {
	defer f.drop(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writePump(sub *subscriber) {
	defer sub.conn.Close()
	for msg := range sub.out {
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			f.drop(sub)
			return
		}
	}
}

func (f *Feed) drop(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		close(sub.out)
	}
}

// Publish implements events.Sink: it filters to the two market-data event
// types worth pushing and fans the JSON encoding out to every subscriber,
// never blocking on a slow reader.
func (f *Feed) Publish(e events.Event) {
	switch e.(type) {
	case events.OrderMatched, events.SettlementProcessed:
	default:
		return
	}
	payload, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: e.Name(), Data: e})
	if err != nil {
		log.Error().Err(err).Msg("wire: failed to marshal feed event")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		select {
		case sub.out <- payload:
		default:
			log.Warn().Msg("wire: dropping feed event for slow subscriber")
		}
	}
}
