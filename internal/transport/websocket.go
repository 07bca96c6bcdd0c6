// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applog "doppler/internal/log"
)

const (
	wsPath          = "/ws"
	wsWriteTimeout  = 2 * time.Second
	wsBroadcastSize = 256
)

// Reply is sent to a client whose command failed.
type Reply struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// WebSocketTransport implements the Transport interface for WebSocket
// connections. Every message passed to Send is broadcast as JSON; text
// messages from clients are decoded as Commands and handed to the handler.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	onCommand CommandHandler
	logger    applog.Logger

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex // Also serializes writes to each client.

	broadcast chan any
	doneChan  chan struct{}
	closed    atomic.Bool
	stopOnce  sync.Once
	wg        sync.WaitGroup

	serverMu sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewWebSocketTransport creates a transport for addr and starts its
// broadcast loop. The HTTP server is not started until Start; Handler can be
// mounted elsewhere instead. onCommand may be nil, in which case client
// commands are rejected.
func NewWebSocketTransport(addr string, onCommand CommandHandler) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		onCommand: onCommand,
		logger:    applog.Named("websocket"),
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, wsBroadcastSize),
		doneChan:  make(chan struct{}),
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, wst.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (wst *WebSocketTransport) Start() error {
	if wst.closed.Load() {
		return ErrClosed
	}
	wst.serverMu.Lock()
	defer wst.serverMu.Unlock()
	if wst.server != nil {
		return errors.New("websocket server already started")
	}

	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", wst.addr, err)
	}
	wst.listener = ln
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	wst.wg.Add(1)
	go func() {
		defer wst.wg.Done()
		wst.logger.Infof("serving on ws://%s%s", ln.Addr(), wsPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wst.logger.Errorf("server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (wst *WebSocketTransport) Addr() string {
	wst.serverMu.Lock()
	defer wst.serverMu.Unlock()
	if wst.listener != nil {
		return wst.listener.Addr().String()
	}
	return wst.addr
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if wst.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.logger.Warnf("upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.logger.Infof("client %s connected, total: %d", conn.RemoteAddr(), total)

	go wst.readCommands(conn)
}

// readCommands handles client messages until the connection fails.
func (wst *WebSocketTransport) readCommands(conn *websocket.Conn) {
	defer wst.drop(conn)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := wst.dispatch(msg); err != nil {
			wst.logger.Warnf("command from %s rejected: %v", conn.RemoteAddr(), err)
			wst.reply(conn, Reply{Type: "error", Error: err.Error()})
		}
	}
}

func (wst *WebSocketTransport) dispatch(msg []byte) error {
	var cmd Command
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return fmt.Errorf("malformed command: %w", err)
	}
	if cmd.Type != CommandFrequency {
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
	if wst.onCommand == nil {
		return errors.New("commands are not accepted")
	}
	return wst.onCommand(cmd)
}

func (wst *WebSocketTransport) reply(conn *websocket.Conn, r Reply) {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	if _, ok := wst.clients[conn]; !ok {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(r); err != nil {
		wst.logger.Debugf("reply to %s failed: %v", conn.RemoteAddr(), err)
	}
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	conn.Close()
	if ok {
		wst.logger.Infof("client %s disconnected, total: %d", conn.RemoteAddr(), total)
	}
}

// handleBroadcasts sends messages to all connected clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.doneChan:
			return
		case data := <-wst.broadcast:
			wst.writeAll(data)
		}
	}
}

func (wst *WebSocketTransport) writeAll(data any) {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	for client := range wst.clients {
		_ = client.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := client.WriteJSON(data); err != nil {
			wst.logger.Warnf("error sending to %s: %v", client.RemoteAddr(), err)
			client.Close()
			delete(wst.clients, client)
		}
	}
}

// Send queues data for broadcast. When the queue is full the message is
// dropped; a slow client must never stall analysis.
func (wst *WebSocketTransport) Send(data any) error {
	if wst.closed.Load() {
		return ErrClosed
	}
	select {
	case wst.broadcast <- data:
	default:
		wst.logger.Debugf("broadcast queue full, message dropped")
	}
	return nil
}

// Close shuts down the server and disconnects every client.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.stopOnce.Do(func() {
		wst.logger.Infof("closing server")
		wst.closed.Store(true)
		close(wst.doneChan)

		wst.serverMu.Lock()
		if wst.server != nil {
			err = wst.server.Close()
		}
		wst.serverMu.Unlock()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()

		wst.wg.Wait()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface.
var _ Transport = (*WebSocketTransport)(nil)
