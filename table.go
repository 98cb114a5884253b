package main

import (
	"errors"
	"sync"
)

var errTableFull = errors.New("table is full")

// Player is a seated connection. The binding lasts from join to leave; the
// seat is assigned explicitly at join time rather than inferred from list
// position, so it survives removals.
type Player struct {
	client *Client
	Name   string
	Seat   Seat
}

// Table is one fixed slot in the lobby: up to two players, at most one game,
// and the rematch votes and running scores for the current pairing. Tables
// live for the whole process and are only ever reset, never reallocated.
//
// Each table has its own mutex so unrelated tables never contend. All reads
// and writes of players/game/votes/scores happen under it, and room
// broadcasts are sent while it is held, so no two board states can reach a
// client out of order. Methods with the Locked suffix assume mu is held.
type Table struct {
	mu      sync.Mutex
	id      int
	players []*Player
	game    *Game
	votes   map[Seat]*bool
	scores  map[Seat]int
}

func newTable(id int) *Table {
	return &Table{
		id:     id,
		votes:  make(map[Seat]*bool),
		scores: make(map[Seat]int),
	}
}

// Registry is the fixed pool of tables, created once at startup and indexed
// by stable integer id.
type Registry struct {
	tables []*Table
}

func newRegistry(count int) *Registry {
	reg := &Registry{
		tables: make([]*Table, count),
	}
	for i := range reg.tables {
		reg.tables[i] = newTable(i)
	}
	return reg
}

// table bounds-checks a client-supplied id.
func (reg *Registry) table(id int) (*Table, bool) {
	if id < 0 || id >= len(reg.tables) {
		return nil, false
	}
	return reg.tables[id], true
}

// Occupancy snapshots player counts for the lobby listing.
func (reg *Registry) Occupancy() []TableStatus {
	statuses := make([]TableStatus, len(reg.tables))
	for i, t := range reg.tables {
		t.mu.Lock()
		statuses[i] = TableStatus{
			Table:   t.id,
			Players: len(t.players),
		}
		t.mu.Unlock()
	}
	return statuses
}

// join seats a connection, red first and yellow second, and starts a game
// when the table fills. The first joiner is acked immediately; once the
// opponent arrives both players are re-acked with each other's names, as the
// lobby client expects.
func (t *Table) join(cfg *Config, c *Client, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.players) >= 2 {
		return errTableFull
	}

	seat := SeatRed
	if len(t.players) == 1 {
		seat = SeatYellow
	}
	t.players = append(t.players, &Player{
		client: c,
		Name:   name,
		Seat:   seat,
	})

	if len(t.players) < 2 {
		c.trySend(JoinedTableMessage{
			Type:  "joined_table",
			Table: t.id,
			Seat:  seat,
		})
		logf(cfg, "GAMES: Player %q seated %s at table %d, waiting for opponent", name, seat, t.id)
		return nil
	}

	for _, p := range t.players {
		p.client.trySend(JoinedTableMessage{
			Type:         "joined_table",
			Table:        t.id,
			Seat:         p.Seat,
			OpponentName: t.opponentNameLocked(p.Seat),
		})
	}
	logf(cfg, "GAMES: Player %q seated %s at table %d, starting game", name, seat, t.id)

	t.startGameLocked(cfg)

	return nil
}

func (t *Table) playerLocked(c *Client) *Player {
	for _, p := range t.players {
		if p.client == c {
			return p
		}
	}
	return nil
}

func (t *Table) opponentNameLocked(seat Seat) string {
	for _, p := range t.players {
		if p.Seat != seat {
			return p.Name
		}
	}
	return ""
}

func (t *Table) playerNamesLocked() map[Seat]string {
	names := make(map[Seat]string, len(t.players))
	for _, p := range t.players {
		names[p.Seat] = p.Name
	}
	return names
}

// broadcastRoomLocked fans a message out to every seated client.
func (t *Table) broadcastRoomLocked(msg any) {
	for _, p := range t.players {
		p.client.trySend(msg)
	}
}

// resetLocked returns the table to its initial empty state and reports which
// clients were unseated so the caller can drop their session bindings.
// Resetting an already-empty table is a no-op, which keeps reset idempotent.
func (t *Table) resetLocked() []*Client {
	unseated := make([]*Client, 0, len(t.players))
	for _, p := range t.players {
		unseated = append(unseated, p.client)
	}

	t.players = nil
	t.game = nil
	t.votes = make(map[Seat]*bool)
	t.scores = make(map[Seat]int)

	return unseated
}
