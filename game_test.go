package main

import (
	"errors"
	"testing"
)

func testConfig() *Config {
	return &Config{tables: 5}
}

func newTestClient(id string) *Client {
	return &Client{
		send: make(chan any, 64),
		id:   id,
	}
}

// drain empties a client's send buffer and returns everything queued so far.
func drain(c *Client) []any {
	var msgs []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func findGameOver(msgs []any) (GameOverMessage, bool) {
	for _, msg := range msgs {
		if m, ok := msg.(GameOverMessage); ok {
			return m, true
		}
	}
	return GameOverMessage{}, false
}

func findGameStart(msgs []any) (GameStartMessage, bool) {
	for _, msg := range msgs {
		if m, ok := msg.(GameStartMessage); ok {
			return m, true
		}
	}
	return GameStartMessage{}, false
}

func hasSimple(msgs []any, msgType string) bool {
	for _, msg := range msgs {
		if m, ok := msg.(SimpleMessage); ok && m.Type == msgType {
			return true
		}
	}
	return false
}

// seatTwo joins red then yellow at a fresh table and discards the join and
// game-start traffic.
func seatTwo(t *testing.T, cfg *Config, table *Table, red, yellow *Client) {
	t.Helper()
	if err := table.join(cfg, red, "Anna"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := table.join(cfg, yellow, "Bram"); err != nil {
		t.Fatalf("second join: %v", err)
	}
	drain(red)
	drain(yellow)
}

func TestSecondJoinStartsGame(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")

	if err := table.join(cfg, red, "Anna"); err != nil {
		t.Fatalf("first join: %v", err)
	}

	msgs := drain(red)
	if len(msgs) != 1 {
		t.Fatalf("first joiner got %d messages, want 1", len(msgs))
	}
	joined, ok := msgs[0].(JoinedTableMessage)
	if !ok || joined.Seat != SeatRed || joined.OpponentName != "" {
		t.Fatalf("first join ack = %+v", msgs[0])
	}
	if table.game != nil {
		t.Fatal("game started with a single player")
	}

	if err := table.join(cfg, yellow, "Bram"); err != nil {
		t.Fatalf("second join: %v", err)
	}

	redMsgs := drain(red)
	yellowMsgs := drain(yellow)

	start, ok := findGameStart(redMsgs)
	if !ok {
		t.Fatal("red never saw game_start")
	}
	if start.Turn != SeatRed {
		t.Fatalf("starting turn = %s, want red", start.Turn)
	}
	if start.Board != (Board{}) {
		t.Fatal("game did not start with an empty board")
	}
	if start.Players[SeatRed] != "Anna" || start.Players[SeatYellow] != "Bram" {
		t.Fatalf("player names = %v", start.Players)
	}

	if _, ok := findGameStart(yellowMsgs); !ok {
		t.Fatal("yellow never saw game_start")
	}
	for _, msg := range yellowMsgs {
		if m, ok := msg.(JoinedTableMessage); ok {
			if m.Seat != SeatYellow || m.OpponentName != "Anna" {
				t.Fatalf("yellow join ack = %+v", m)
			}
		}
	}
}

func TestThirdJoinRejected(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	seatTwo(t, cfg, table, newTestClient("a"), newTestClient("b"))

	if err := table.join(cfg, newTestClient("c"), "Cees"); !errors.Is(err, errTableFull) {
		t.Fatalf("third join: got %v, want errTableFull", err)
	}
	if len(table.players) != 2 {
		t.Fatalf("table holds %d players, want 2", len(table.players))
	}
}

func TestVerticalWin(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)

	// Red stacks column 0; yellow answers in column 6 each turn.
	for i := 0; i < 3; i++ {
		table.makeMove(cfg, red, 0)
		table.makeMove(cfg, yellow, 6)
	}
	table.makeMove(cfg, red, 0)

	over, ok := findGameOver(drain(yellow))
	if !ok {
		t.Fatal("no game_over after fourth stacked piece")
	}
	if over.Winner != "red" {
		t.Fatalf("winner = %q, want red", over.Winner)
	}
	if over.Scores[SeatRed] != 1 || over.Scores[SeatYellow] != 0 {
		t.Fatalf("scores = %v", over.Scores)
	}

	want := map[[2]int]bool{{5, 0}: true, {4, 0}: true, {3, 0}: true, {2, 0}: true}
	if len(over.WinningLine) != 4 {
		t.Fatalf("winning line = %v", over.WinningLine)
	}
	for _, cell := range over.WinningLine {
		if !want[cell] {
			t.Fatalf("winning line %v contains unexpected cell %v", over.WinningLine, cell)
		}
	}

	if !table.game.Over {
		t.Fatal("game not marked over")
	}
	if !hasSimple(drain(red), "ask_rematch") {
		t.Fatal("rematch round never opened")
	}
}

func TestDraw(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)

	table.game.Board = drawBoard()
	table.game.Board[0][6] = SeatNone
	table.game.Turn = SeatRed

	table.makeMove(cfg, red, 6)

	over, ok := findGameOver(drain(red))
	if !ok {
		t.Fatal("no game_over after the final cell filled")
	}
	if over.Winner != "draw" {
		t.Fatalf("winner = %q, want draw", over.Winner)
	}
	if over.WinningLine != nil {
		t.Fatalf("draw carried a winning line: %v", over.WinningLine)
	}
	if !table.game.Draw {
		t.Fatal("game not marked drawn")
	}
}

func TestWinBeatsDrawOnFinalCell(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)

	// Full board minus one cell, where the final piece completes a vertical
	// four: must be reported as a win, never a draw.
	board := drawBoard()
	board[3][6] = SeatRed
	board[0][6] = SeatNone
	table.game.Board = board
	table.game.Turn = SeatRed

	table.makeMove(cfg, red, 6)

	over, ok := findGameOver(drain(yellow))
	if !ok {
		t.Fatal("no game_over on the final move")
	}
	if over.Winner != "red" {
		t.Fatalf("winner = %q, want red", over.Winner)
	}
	if table.game.Draw {
		t.Fatal("winning final move marked as a draw")
	}
}

func TestMoveRejections(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)

	// Fill column 0 with a harmless stack.
	for row := 0; row < boardRows; row++ {
		seat := SeatRed
		if row < 3 {
			seat = SeatYellow
		}
		table.game.Board[row][0] = seat
	}
	before := table.game.Board

	table.makeMove(cfg, red, 0)                // column full
	table.makeMove(cfg, yellow, 1)             // not yellow's turn
	table.makeMove(cfg, red, 9)                // column out of range
	table.makeMove(cfg, newTestClient("c"), 1) // not seated

	if table.game.Board != before {
		t.Fatal("rejected move mutated the board")
	}
	if table.game.Turn != SeatRed {
		t.Fatalf("turn = %s after rejections, want red", table.game.Turn)
	}
	if msgs := drain(red); len(msgs) != 0 {
		t.Fatalf("red received %d messages for rejected moves: %v", len(msgs), msgs)
	}
	if msgs := drain(yellow); len(msgs) != 0 {
		t.Fatalf("yellow received %d messages for rejected moves: %v", len(msgs), msgs)
	}
}

func TestTurnFlipsAfterMove(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)

	table.makeMove(cfg, red, 3)

	if table.game.Turn != SeatYellow {
		t.Fatalf("turn = %s after red's move, want yellow", table.game.Turn)
	}
	msgs := drain(yellow)
	if len(msgs) != 1 {
		t.Fatalf("yellow got %d messages, want 1", len(msgs))
	}
	update, ok := msgs[0].(GameUpdateMessage)
	if !ok || update.Turn != SeatYellow || update.Board[5][3] != SeatRed {
		t.Fatalf("game_update = %+v", msgs[0])
	}
}

// finishGame drives a quick vertical win so the table sits in the
// awaiting-rematch state.
func finishGame(t *testing.T, cfg *Config, table *Table, red, yellow *Client) {
	t.Helper()
	for i := 0; i < 3; i++ {
		table.makeMove(cfg, red, 0)
		table.makeMove(cfg, yellow, 6)
	}
	table.makeMove(cfg, red, 0)
	drain(red)
	drain(yellow)
}

func TestRematchSingleNoIsDecisive(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)
	finishGame(t, cfg, table, red, yellow)

	// Yellow declines before red has voted at all.
	unseated := table.castVote(cfg, yellow, false)

	if len(unseated) != 2 {
		t.Fatalf("%d clients unseated, want 2", len(unseated))
	}
	if !hasSimple(drain(red), "return_to_lobby") {
		t.Fatal("red not sent back to the lobby")
	}
	if !hasSimple(drain(yellow), "return_to_lobby") {
		t.Fatal("yellow not sent back to the lobby")
	}
	if len(table.players) != 0 || table.game != nil {
		t.Fatal("table not reset after declined rematch")
	}
	if len(table.scores) != 0 {
		t.Fatalf("scores survived table reset: %v", table.scores)
	}
}

func TestRematchBothYesRestarts(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)
	finishGame(t, cfg, table, red, yellow)

	if unseated := table.castVote(cfg, red, true); unseated != nil {
		t.Fatal("single yes vote resolved the round")
	}
	if table.game == nil || !table.game.Over {
		t.Fatal("game restarted on a single yes vote")
	}

	if unseated := table.castVote(cfg, yellow, true); unseated != nil {
		t.Fatal("accepted rematch unseated the players")
	}

	start, ok := findGameStart(drain(red))
	if !ok {
		t.Fatal("no game_start after both voted yes")
	}
	if start.Board != (Board{}) {
		t.Fatal("rematch did not start with an empty board")
	}
	if v := table.votes[SeatRed]; v != nil {
		t.Fatal("stale rematch vote survived the new game")
	}
	if table.scores[SeatRed] != 1 {
		t.Fatalf("score for red = %d across rematch, want 1", table.scores[SeatRed])
	}
}

func TestRematchVoteTallyBroadcast(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)
	finishGame(t, cfg, table, red, yellow)

	table.castVote(cfg, red, true)

	var tally *RematchVoteMessage
	for _, msg := range drain(yellow) {
		if m, ok := msg.(RematchVoteMessage); ok {
			tally = &m
		}
	}
	if tally == nil {
		t.Fatal("no rematch_vote_update broadcast")
	}
	if v := tally.Votes[SeatRed]; v == nil || !*v {
		t.Fatalf("red's vote in tally = %v, want yes", v)
	}
	if v := tally.Votes[SeatYellow]; v != nil {
		t.Fatalf("yellow's vote in tally = %v, want pending", v)
	}
}

func TestVoteRejectedDuringActiveGame(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)

	if unseated := table.castVote(cfg, red, false); unseated != nil {
		t.Fatal("vote during active game resolved the round")
	}
	if table.votes[SeatRed] != nil {
		t.Fatal("vote recorded while the game was still in progress")
	}
	if table.game == nil || table.game.Over {
		t.Fatal("vote during active game disturbed the game")
	}
}

func TestAbandonmentMidGame(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)

	table.makeMove(cfg, red, 3)
	drain(red)
	drain(yellow)

	unseated := table.removePlayer(cfg, yellow)

	if len(unseated) != 2 {
		t.Fatalf("%d clients unseated, want 2", len(unseated))
	}
	if !hasSimple(drain(red), "opponent_left") {
		t.Fatal("remaining player not told the opponent left")
	}
	if hasSimple(drain(yellow), "opponent_left") {
		t.Fatal("leaver notified about their own departure")
	}
	if len(table.players) != 0 || table.game != nil {
		t.Fatal("table not reset after abandonment")
	}
}

func TestRemoveUnseatedPlayer(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	seatTwo(t, cfg, table, newTestClient("a"), newTestClient("b"))

	if unseated := table.removePlayer(cfg, newTestClient("c")); unseated != nil {
		t.Fatal("removing an unseated connection reset the table")
	}
	if len(table.players) != 2 {
		t.Fatal("unseated removal disturbed the players")
	}
}

func TestResetIdempotent(t *testing.T) {
	cfg := testConfig()
	table := newTable(0)
	seatTwo(t, cfg, table, newTestClient("a"), newTestClient("b"))

	table.mu.Lock()
	table.resetLocked()
	first := len(table.players)
	again := table.resetLocked()
	table.mu.Unlock()

	if first != 0 || len(again) != 0 {
		t.Fatal("double reset did not yield the same empty state")
	}
	if table.game != nil || len(table.votes) != 0 || len(table.scores) != 0 {
		t.Fatal("reset left residual state")
	}
}

func TestRandomStartStillSeatsRedFirst(t *testing.T) {
	cfg := testConfig()
	cfg.randomStart = true
	table := newTable(0)
	red := newTestClient("a")
	yellow := newTestClient("b")
	seatTwo(t, cfg, table, red, yellow)

	if table.game == nil {
		t.Fatal("game did not start")
	}
	if turn := table.game.Turn; turn != SeatRed && turn != SeatYellow {
		t.Fatalf("starting turn = %q", turn)
	}
	if table.players[0].Seat != SeatRed || table.players[1].Seat != SeatYellow {
		t.Fatal("random start changed seat assignment")
	}
}
