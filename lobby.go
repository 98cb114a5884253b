// Session manager and broadcast fanout. The lobby owns the connected-client
// set and the connection-to-table binding; moves and votes are routed through
// that binding rather than trusting the table id a client sends, so a stale
// or forged id never reaches a table the connection isn't seated at.
//
// Lock order is lobby before table, never the reverse. Every operation that
// can seat or unseat a connection mutates the table and the binding inside
// one lobby critical section, so a binding never exists without its seat and
// a seat never outlives its binding. A connection's own messages are
// serialized by its read pump, so a client cannot race itself.

package main

import "sync"

type Lobby struct {
	cfg *Config
	reg *Registry

	mu      sync.RWMutex
	clients map[*Client]struct{}
	seated  map[*Client]*Table
}

func newLobby(cfg *Config, reg *Registry) *Lobby {
	return &Lobby{
		cfg:     cfg,
		reg:     reg,
		clients: make(map[*Client]struct{}),
		seated:  make(map[*Client]*Table),
	}
}

func (l *Lobby) register(c *Client) {
	l.mu.Lock()
	l.clients[c] = struct{}{}
	l.mu.Unlock()

	logf(l.cfg, "GAMES: Connection %s entered the lobby", c.id)
}

// unregister runs the abandonment transition for a closed connection: the
// opponent is notified, the table resets, and the lobby listing updates.
// Safe to call for connections that never joined a table.
func (l *Lobby) unregister(c *Client) {
	l.mu.Lock()
	delete(l.clients, c)
	t := l.seated[c]
	if t != nil {
		l.unseatLocked(t.removePlayer(l.cfg, c))
	}
	delete(l.seated, c)
	l.mu.Unlock()

	if t != nil {
		l.broadcastTables()
	}

	c.close()
	logf(l.cfg, "GAMES: Connection %s left the lobby", c.id)
}

// currentTable is the authoritative seat lookup for routing moves and votes.
func (l *Lobby) currentTable(c *Client) (*Table, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.seated[c]
	return t, ok
}

// unseatLocked drops the seat bindings of clients a table has sent back to
// the lobby. Their connections stay registered. Callers hold l.mu.
func (l *Lobby) unseatLocked(clients []*Client) {
	for _, c := range clients {
		delete(l.seated, c)
	}
}

// handleSetName binds a display name to the connection. Last write wins, and
// the reply doubles as the client's first lobby snapshot.
func (l *Lobby) handleSetName(c *Client, name string) {
	if name == "" {
		return
	}

	l.mu.Lock()
	c.name = name
	l.mu.Unlock()

	logf(l.cfg, "GAMES: Connection %s set name %q", c.id, name)
	c.trySend(TablesUpdateMessage{
		Type:   "tables_update",
		Tables: l.reg.Occupancy(),
	})
}

func (l *Lobby) handleGetTables(c *Client) {
	c.trySend(TablesUpdateMessage{
		Type:   "tables_update",
		Tables: l.reg.Occupancy(),
	})
}

// handleJoin seats the connection at a table. A connection seated elsewhere
// vacates its old seat first, so a single connection never holds two seats
// anywhere in the registry. The vacate, the seat, and the binding all happen
// under the lobby lock: a disconnect arriving mid-join waits, instead of
// resetting the table between the seat and the binding.
func (l *Lobby) handleJoin(c *Client, tableID int) {
	t, ok := l.reg.table(tableID)
	if !ok {
		c.trySend(SimpleMessage{
			Type:    "table_join_error",
			Message: "That table does not exist.",
		})
		return
	}

	l.mu.Lock()
	name := c.name
	current := l.seated[c]

	if current == t {
		l.mu.Unlock()
		return
	}
	if current != nil {
		l.unseatLocked(current.removePlayer(l.cfg, c))
	}

	err := t.join(l.cfg, c, name)
	if err == nil {
		l.seated[c] = t
	}
	l.mu.Unlock()

	if err != nil {
		c.trySend(SimpleMessage{
			Type:    "table_join_error",
			Message: "This table is full.",
		})
	}
	l.broadcastTables()
}

// handleMove routes a move through the session binding. The table id in the
// payload is only cross-checked; a mismatch is a rejected action.
func (l *Lobby) handleMove(c *Client, tableID int, col int) {
	t, ok := l.currentTable(c)
	if !ok || t.id != tableID {
		logf(l.cfg, "GAMES: Rejected move from connection %s, not seated at table %d", c.id, tableID)
		return
	}

	t.makeMove(l.cfg, c, col)
}

func (l *Lobby) handleVote(c *Client, tableID int, vote *bool) {
	if vote == nil {
		return
	}

	l.mu.Lock()
	t := l.seated[c]
	if t == nil || t.id != tableID {
		l.mu.Unlock()
		logf(l.cfg, "GAMES: Rejected rematch vote from connection %s, not seated at table %d", c.id, tableID)
		return
	}

	unseated := t.castVote(l.cfg, c, *vote)
	l.unseatLocked(unseated)
	l.mu.Unlock()

	if unseated != nil {
		l.broadcastTables()
	}
}

func (l *Lobby) handleLeave(c *Client, tableID int) {
	l.mu.Lock()
	t := l.seated[c]
	if t == nil || t.id != tableID {
		l.mu.Unlock()
		return
	}

	l.unseatLocked(t.removePlayer(l.cfg, c))
	l.mu.Unlock()

	l.broadcastTables()
}

// broadcastTables pushes the occupancy snapshot to every connected client.
// Lobby-wide broadcasts and table-room broadcasts are independent channels
// with no ordering between them.
func (l *Lobby) broadcastTables() {
	msg := TablesUpdateMessage{
		Type:   "tables_update",
		Tables: l.reg.Occupancy(),
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for c := range l.clients {
		c.trySend(msg)
	}
}
