// Game coordinator. One game per table, advancing through
// waiting-for-opponent, in-progress, won/draw, and the rematch round. Every
// transition here runs under the table mutex, and broadcasts go out before
// the lock is released, so observers always see board states in the order
// moves were accepted.

package main

import "math/rand"

// Game exists only while the table has two seated players. Over marks the
// awaiting-rematch state; the final board stays readable until the round
// resolves.
type Game struct {
	Board  Board
	Turn   Seat
	Winner Seat
	Draw   bool
	Over   bool
}

// startGameLocked replaces any previous game with a fresh board and pending
// rematch votes, then announces it to the room. Red opens unless
// --random-start flips a coin, matching the two observed lobby behaviors.
func (t *Table) startGameLocked(cfg *Config) {
	turn := SeatRed
	if cfg.randomStart && rand.Intn(2) == 1 {
		turn = SeatYellow
	}

	t.game = &Game{Turn: turn}
	t.clearVotesLocked()

	t.broadcastRoomLocked(GameStartMessage{
		Type:    "game_start",
		Table:   t.id,
		Board:   t.game.Board,
		Turn:    turn,
		Players: t.playerNamesLocked(),
	})
	logf(cfg, "GAMES: Started game at table %d, %s to move", t.id, turn)
}

// makeMove validates and applies one move. Rejections are silent toward the
// client and never mutate the board; the client UI already prevents illegal
// moves, but the server does not trust it.
func (t *Table) makeMove(cfg *Config, c *Client, col int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.playerLocked(c)
	if p == nil {
		logf(cfg, "GAMES: Rejected move at table %d from unseated connection %s", t.id, c.id)
		return
	}

	g := t.game
	switch {
	case g == nil || g.Over:
		logf(cfg, "GAMES: Rejected move by %q at table %d, no active game", p.Name, t.id)
		return
	case g.Turn != p.Seat:
		logf(cfg, "GAMES: Rejected move by %q at table %d, not their turn", p.Name, t.id)
		return
	}

	row, err := g.Board.drop(col, p.Seat)
	if err != nil {
		logf(cfg, "GAMES: Rejected move by %q at table %d, column %d: %v", p.Name, t.id, col, err)
		return
	}

	if line := g.Board.winningLine(row, col); line != nil {
		g.Over = true
		g.Winner = p.Seat
		t.scores[p.Seat]++
		logf(cfg, "GAMES: Player %q (%s) won at table %d", p.Name, p.Seat, t.id)
		t.finishGameLocked(string(p.Seat), line)
		return
	}

	if g.Board.full() {
		g.Over = true
		g.Draw = true
		logf(cfg, "GAMES: Game at table %d ended in a draw", t.id)
		t.finishGameLocked("draw", nil)
		return
	}

	g.Turn = g.Turn.Opponent()
	t.broadcastRoomLocked(GameUpdateMessage{
		Type:  "game_update",
		Board: g.Board,
		Turn:  g.Turn,
	})
}

// finishGameLocked announces a terminal state and opens the rematch round.
func (t *Table) finishGameLocked(winner string, line [][2]int) {
	t.broadcastRoomLocked(GameUpdateMessage{
		Type:  "game_update",
		Board: t.game.Board,
		Turn:  t.game.Turn,
	})
	t.broadcastRoomLocked(GameOverMessage{
		Type:        "game_over",
		Winner:      winner,
		WinningLine: line,
		Scores:      t.scoresLocked(),
	})

	t.clearVotesLocked()
	t.broadcastRoomLocked(SimpleMessage{
		Type: "ask_rematch",
	})
}

// castVote records a rematch vote. A single "no" resolves the round toward
// the lobby immediately, without waiting for the other seat; both seats
// voting "yes" is the only path to a new game. Returns the clients sent back
// to the lobby, if the round resolved that way.
func (t *Table) castVote(cfg *Config, c *Client, vote bool) []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.playerLocked(c)
	if p == nil {
		logf(cfg, "GAMES: Rejected rematch vote at table %d from unseated connection %s", t.id, c.id)
		return nil
	}
	if t.game == nil || !t.game.Over {
		logf(cfg, "GAMES: Rejected rematch vote by %q at table %d, no finished game", p.Name, t.id)
		return nil
	}

	t.votes[p.Seat] = &vote
	logf(cfg, "GAMES: Player %q voted %t for rematch at table %d", p.Name, vote, t.id)

	t.broadcastRoomLocked(RematchVoteMessage{
		Type:  "rematch_vote_update",
		Votes: t.votesLocked(),
	})

	if !vote {
		t.broadcastRoomLocked(SimpleMessage{
			Type: "return_to_lobby",
		})
		return t.resetLocked()
	}

	if other := t.votes[p.Seat.Opponent()]; other != nil && *other {
		t.startGameLocked(cfg)
	}

	return nil
}

// removePlayer handles both explicit leaves and disconnects. Departure is a
// forced termination of whatever was in flight: the remaining player is told
// the opponent left, and the table resets. Returns the unseated clients, or
// nil if the connection was not seated here.
func (t *Table) removePlayer(cfg *Config, c *Client) []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.playerLocked(c)
	if p == nil {
		return nil
	}
	logf(cfg, "GAMES: Player %q left table %d", p.Name, t.id)

	for _, other := range t.players {
		if other.client != c {
			other.client.trySend(SimpleMessage{
				Type: "opponent_left",
			})
		}
	}

	return t.resetLocked()
}

func (t *Table) clearVotesLocked() {
	t.votes = make(map[Seat]*bool)
	for _, p := range t.players {
		t.votes[p.Seat] = nil
	}
}

func (t *Table) votesLocked() map[Seat]*bool {
	votes := make(map[Seat]*bool, len(t.votes))
	for seat, v := range t.votes {
		votes[seat] = v
	}
	return votes
}

func (t *Table) scoresLocked() map[Seat]int {
	scores := make(map[Seat]int, len(t.scores))
	for seat, wins := range t.scores {
		scores[seat] = wins
	}
	return scores
}
