package appadapter

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the wire shape every app-adapter frame takes: a namespaced
// event name plus its positional arguments, mirroring the (name, args)
// shape the translator's management direction already expects.
type Event struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

// Endpoint is the transport seam between an app adapter's control flow and
// the tool it talks to. A different wire protocol can be substituted
// without touching the adapter's subscribe/publish logic.
type Endpoint interface {
	Send(evt Event) error
	Events() <-chan Event
	Close() error
}

// WSEndpoint is the reference Endpoint: one JSON-over-WebSocket
// connection, framed as {"name": string, "args": [...]}.
type WSEndpoint struct {
	conn   *websocket.Conn
	events chan Event
	logger *zap.Logger

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// ListenWS accepts a single inbound WebSocket connection on addr and
// returns a WSEndpoint wrapping it. It blocks until one client connects.
func ListenWS(ctx context.Context, addr string, logger *zap.Logger) (*WSEndpoint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	connCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- conn
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("appadapter: listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)

	select {
	case conn := <-connCh:
		go srv.Shutdown(context.Background())
		return newWSEndpoint(conn, logger), nil
	case err := <-errCh:
		ln.Close()
		return nil, fmt.Errorf("appadapter: upgrade: %w", err)
	case <-ctx.Done():
		ln.Close()
		return nil, ctx.Err()
	}
}

// DialWS connects to a WebSocket listener at url, for adapters that act as
// the client side of the connection instead of accepting one.
func DialWS(ctx context.Context, url string, logger *zap.Logger) (*WSEndpoint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("appadapter: dial %s: %w", url, err)
	}
	return newWSEndpoint(conn, logger), nil
}

func newWSEndpoint(conn *websocket.Conn, logger *zap.Logger) *WSEndpoint {
	e := &WSEndpoint{
		conn:   conn,
		events: make(chan Event, 256),
		logger: logger,
	}
	go e.readLoop()
	return e
}

func (e *WSEndpoint) readLoop() {
	defer close(e.events)
	for {
		var evt Event
		if err := e.conn.ReadJSON(&evt); err != nil {
			e.logger.Debug("endpoint read loop ending", zap.Error(err))
			return
		}
		e.events <- evt
	}
}

// Send writes evt as a single JSON frame. Safe for concurrent use.
func (e *WSEndpoint) Send(evt Event) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.WriteJSON(evt)
}

// Events returns the channel of inbound frames. It is closed when the
// underlying connection is closed or errors.
func (e *WSEndpoint) Events() <-chan Event {
	return e.events
}

// Close closes the underlying connection. Idempotent.
func (e *WSEndpoint) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.conn.Close()
}
