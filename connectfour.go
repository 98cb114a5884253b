// Connectbox Connect Four
//
// Visitors pick a display name, join one of a fixed set of tables, and play
// Connect Four against whoever takes the other seat, with the board pushed
// live to both players.
//
// Features:
// - Single shared lobby over one WebSocket endpoint: /path/ws
// - Fixed pool of tables created at startup (--tables)
// - First joiner seats red, second seats yellow; second join starts the game
// - Server-authoritative board, turn order, and win/draw detection
// - Rematch voting after each game; one "no" sends both players to the lobby
// - Disconnecting mid-game notifies the opponent and frees the table
// - Running score per table across rematches
// - In-browser QR button to share the lobby, backed by go-qrcode

package main

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`           // "set_name", "get_tables", "join_table", "make_move", "rematch_vote", "leave_table"
	Name   string `json:"name,omitempty"` // set_name
	Table  int    `json:"table"`          // join_table / make_move / rematch_vote / leave_table
	Column int    `json:"column"`         // make_move
	Vote   *bool  `json:"vote,omitempty"` // rematch_vote
}

// TableStatus is one row of the lobby listing.
type TableStatus struct {
	Table   int `json:"table"`
	Players int `json:"players"`
}

// TablesUpdateMessage is the occupancy snapshot, sent to the whole lobby.
type TablesUpdateMessage struct {
	Type   string        `json:"type"` // "tables_update"
	Tables []TableStatus `json:"tables"`
}

// JoinedTableMessage acknowledges a seat.
type JoinedTableMessage struct {
	Type         string `json:"type"` // "joined_table"
	Table        int    `json:"table"`
	Seat         Seat   `json:"seat"`
	OpponentName string `json:"opponent_name,omitempty"`
}

// GameStartMessage announces a fresh board to the table room.
type GameStartMessage struct {
	Type    string          `json:"type"` // "game_start"
	Table   int             `json:"table"`
	Board   Board           `json:"board"`
	Turn    Seat            `json:"turn"`
	Players map[Seat]string `json:"players"`
}

// GameUpdateMessage carries the board after an accepted move.
type GameUpdateMessage struct {
	Type  string `json:"type"` // "game_update"
	Board Board  `json:"board"`
	Turn  Seat   `json:"turn"`
}

// GameOverMessage reports a terminal state. Winner is "red", "yellow" or
// "draw"; the winning line is included for highlighting.
type GameOverMessage struct {
	Type        string       `json:"type"` // "game_over"
	Winner      string       `json:"winner"`
	WinningLine [][2]int     `json:"winning_line,omitempty"`
	Scores      map[Seat]int `json:"scores"`
}

// RematchVoteMessage is the running tally; nil means that seat hasn't voted.
type RematchVoteMessage struct {
	Type  string         `json:"type"` // "rematch_vote_update"
	Votes map[Seat]*bool `json:"votes"`
}

// SimpleMessage is for generic notifications ("ask_rematch", "opponent_left",
// "return_to_lobby", "table_join_error").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
	id   string
	name string

	// sendMu makes queueing and closing mutually exclusive. Broadcasters run
	// concurrently (two lobby snapshots, or a room update overlapping a lobby
	// one), so a bare select against a channel another broadcaster just
	// closed would panic.
	sendMu sync.Mutex
	closed bool
}

// close shuts the send channel exactly once; the write pump then closes the
// connection and the read pump runs the disconnect path.
func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend queues a message without blocking. A client too slow to drain its
// buffer is dropped, which flows into the normal disconnect cleanup.
func (c *Client) trySend(msg any) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.closeLocked()
	}
}

func (c *Client) readPump(l *Lobby) {
	defer func() {
		l.unregister(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.dispatch(l, msg)
	}
}

// dispatch routes one inbound event. The recover fence keeps a fault on one
// connection from taking down the shared process or other tables.
func (c *Client) dispatch(l *Lobby, msg ClientMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic handling %q from connection %s: %v", msg.Type, c.id, r)
		}
	}()

	switch msg.Type {
	case "set_name":
		l.handleSetName(c, msg.Name)
	case "get_tables":
		l.handleGetTables(c)
	case "join_table":
		l.handleJoin(c, msg.Table)
	case "make_move":
		l.handleMove(c, msg.Table, msg.Column)
	case "rematch_vote":
		l.handleVote(c, msg.Table, msg.Vote)
	case "leave_table":
		l.handleLeave(c, msg.Table)
	default:
		// ignore unknown types
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and runs it against the shared lobby.
func serveWS(cfg *Config, l *Lobby) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			id:   uuid.NewString(),
		}

		l.register(client)

		go client.writePump()
		client.readPump(l)
	}
}

// qrHandler generates a PNG QR code for the lobby URL, for sharing the game
// with people in the same room.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../qr; strip the trailing "/qr" to get the lobby URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ---- Static file paths ----

//go:embed connectfour/index.html
var indexHTML []byte

//go:embed connectfour/app.css
var connectboxCSS []byte

//go:embed connectfour/app.js
var connectboxJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(connectboxCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(connectboxJS)
	}
}

// registerConnectFourGame sets up routes so that:
//   - $path          → HTML client (name entry, lobby, board)
//   - $path/ws       → WebSocket into the shared lobby
//   - $path/qr       → PNG QR code for the lobby URL
func registerConnectFourGame(cfg *Config, path string, mux *httprouter.Router) {
	reg := newRegistry(cfg.tables)
	lobby := newLobby(cfg, reg)
	logf(cfg, "GAMES: Registered connectfour with %d tables at %s", cfg.tables, path)

	// Lobby client view (HTML)
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	// Shared assets
	mux.GET(cfg.prefix+"/assets/connectfour/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/connectfour/app.js", getJsHandler(cfg))

	// Lobby websocket
	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, lobby))

	// Lobby QR code
	mux.GET(cfg.prefix+path+"/qr", qrHandler)
}
