// Package server exposes the HTTP surface: WebSocket session upgrades, the
// health check, and the built-in demo chat page.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server wires the registry, the protocol router, and the HTTP handlers
// together. One instance owns all live connection state for the process.
type Server struct {
	cfg      Config
	registry *Registry
	router   *Router
	upgrader websocket.Upgrader
	ready    func(context.Context) error
}

// New assembles a Server on the given gateway. The ready probe reports
// whether the persistence gateway is reachable; pass nil to always report
// ready (tests).
func New(cfg *Config, gateway Gateway, ready func(context.Context) error) *Server {
	sanitized := sanitizeConfig(*cfg)
	registry := NewRegistry()
	rooms := NewRoomService(gateway, registry)
	friends := NewFriendService(gateway, registry)
	policy := newOriginPolicy(sanitized.AllowedOrigins)

	return &Server{
		cfg:      sanitized,
		registry: registry,
		router:   NewRouter(rooms, friends),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		ready: ready,
	}
}

// WebSocketHandler upgrades the request and runs a session bound to the
// room named in the path.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, s.registry, s.router, roomID, r.RemoteAddr, s.cfg)
	go client.Run()
}

// HealthHandler reports server status. While the persistence gateway is
// unreachable the service answers 503 so it never advertises readiness it
// cannot back.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "persistence gateway unavailable")
			return
		}
	}

	_, _ = fmt.Fprintf(w, "roomtalk server is running!")
}

// CloseConnections tears down every live session. Used during shutdown.
func (s *Server) CloseConnections() {
	channels := s.registry.Channels()
	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			log.Printf("Error closing client connection: %v", err)
		}
	}
	log.Printf("Closed %d client connections", len(channels))
}

// ChatPageHandler serves an HTML demo page for exercising the chat
// protocol: join a room, send messages, and watch events arrive.
func (s *Server) ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>roomtalk</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>roomtalk</h1>
    <div>
        <input type="text" id="room" placeholder="room id">
        <input type="text" id="author" placeholder="your name">
        <button onclick="join()">Join</button>
    </div>
    <div>
        <input type="text" id="content" placeholder="message">
        <button onclick="send()">Send</button>
        <button onclick="history()">History</button>
    </div>
    <div id="events"></div>
    <script>
        let ws = null;
        function show(text) {
            const line = document.createElement('div');
            line.textContent = text;
            const events = document.getElementById('events');
            events.appendChild(line);
            events.scrollTop = events.scrollHeight;
        }
        function join() {
            const room = document.getElementById('room').value.trim();
            if (!room) { return; }
            if (ws) { ws.close(); }
            ws = new WebSocket('ws://' + location.host + '/ws/' + room);
            ws.onopen = function() { show('joined room ' + room); };
            ws.onmessage = function(event) { show(event.data); };
            ws.onclose = function() { show('connection closed'); };
        }
        function send() {
            if (!ws || ws.readyState !== WebSocket.OPEN) { return; }
            const author = document.getElementById('author').value.trim();
            const content = document.getElementById('content').value.trim();
            if (!author || !content) { return; }
            ws.send(JSON.stringify({type: 'message', author: author, content: content}));
            document.getElementById('content').value = '';
        }
        function history() {
            if (!ws || ws.readyState !== WebSocket.OPEN) { return; }
            ws.send(JSON.stringify({type: 'get_history'}));
        }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
