package game

import (
	"errors"
	"fmt"

	"github.com/udisondev/goban/internal/board"
)

// Phase is the lifecycle stage of a game.
type Phase string

const (
	PhasePlay     Phase = "play"
	PhaseEndgame  Phase = "endgame"
	PhaseComplete Phase = "complete"
	PhaseResigned Phase = "resigned"
)

// RequestKind tags a pending two-party request.
type RequestKind string

const (
	RequestUndo  RequestKind = "undo"
	RequestTally RequestKind = "tally"
)

// PendingRequest records an open request awaiting the opponent.
type PendingRequest struct {
	Kind RequestKind `json:"kind"`
	By   board.Color `json:"by"`
}

// Result is present once a game is complete or resigned. Scores are
// zero for resignations; the winner is decided by the resignation
// itself.
type Result struct {
	Winner     board.Color `json:"winner"`
	WhiteScore float64     `json:"white_score"`
	BlackScore float64     `json:"black_score"`
}

// State-machine failures surfaced to clients as illegal-move errors.
var (
	ErrWrongPhase       = errors.New("not allowed in this phase")
	ErrGameOver         = errors.New("game is over")
	ErrNoPendingRequest = errors.New("no matching pending request")
	ErrOwnRequest       = errors.New("cannot act on your own request")
	ErrBadHandicap      = errors.New("handicap out of range")
)

// Game owns one match: the current board, the action stack it was
// built from, and the endgame bookkeeping. It is rebuilt from its
// serialized snapshot on every client action and never shared between
// sessions.
type Game struct {
	Size     int
	Komi     float64
	Handicap int

	Turn      board.Color
	Prisoners map[board.Color]int
	Board     *board.Board

	// History holds the hash of every position reached, including
	// the initial one, for positional-superko checks.
	History []board.Hash

	Phase     Phase
	DeadMarks map[board.Point]bool
	Pending   *PendingRequest
	// Accepted tracks per-color tally acceptance; any dead-mark edit
	// resets it so both players confirm the current mark set.
	Accepted map[board.Color]bool

	Actions []Move
	Result  *Result
}

// New creates a game with handicap stones already placed. With a
// handicap White moves first. The komi argument is stored as given;
// callers pass board.HandicapKomi for the conventional half point.
func New(size int, komi float64, handicap int) (*Game, error) {
	b, err := board.New(size)
	if err != nil {
		return nil, err
	}
	if handicap < 0 || handicap > board.MaxHandicap(size) {
		return nil, fmt.Errorf("%w: %d on size %d", ErrBadHandicap, handicap, size)
	}

	turn := board.Black
	if handicap > 0 {
		for _, p := range board.HandicapPoints(size, handicap) {
			b, _, err = b.Place(board.Black, p.Row, p.Col, nil)
			if err != nil {
				return nil, fmt.Errorf("placing handicap stone: %w", err)
			}
		}
		turn = board.White
	}

	return &Game{
		Size:      size,
		Komi:      komi,
		Handicap:  handicap,
		Turn:      turn,
		Prisoners: map[board.Color]int{board.Black: 0, board.White: 0},
		Board:     b,
		History:   []board.Hash{b.Hash()},
		Phase:     PhasePlay,
		DeadMarks: map[board.Point]bool{},
		Accepted:  map[board.Color]bool{},
	}, nil
}

// Apply dispatches a move into the state machine.
func (g *Game) Apply(m Move) error {
	if err := m.Validate(); err != nil {
		return err
	}
	switch m.Kind {
	case KindPlay:
		return g.Play(m.Color, m.Row, m.Col)
	case KindPass:
		return g.Pass(m.Color)
	case KindResign:
		return g.Resign(m.Color)
	case KindMarkDead:
		return g.MarkDead(m.Color, m.Row, m.Col, m.Dead)
	case KindRequestUndo:
		return g.RequestUndo(m.Color)
	case KindAcceptUndo:
		return g.AcceptUndo(m.Color)
	case KindRequestTally:
		return g.RequestTally(m.Color)
	case KindAcceptTally:
		return g.AcceptTally(m.Color)
	}
	return fmt.Errorf("unknown move kind %q", m.Kind)
}

func (g *Game) over() bool {
	return g.Phase == PhaseComplete || g.Phase == PhaseResigned
}

// Play places a stone. A placement during the endgame is permitted and
// resumes play: dead marks, tally acceptances and any pending request
// are discarded, and both players must pass again to re-enter the
// endgame.
func (g *Game) Play(color board.Color, row, col int) error {
	if g.over() {
		return ErrGameOver
	}
	if color != g.Turn {
		return &board.IllegalMoveError{Reason: board.ReasonNotYourTurn, Row: row, Col: col}
	}

	next, captured, err := g.Board.Place(color, row, col, g.History)
	if err != nil {
		return err
	}

	if g.Phase == PhaseEndgame {
		g.Phase = PhasePlay
		g.DeadMarks = map[board.Point]bool{}
		g.Accepted = map[board.Color]bool{}
	}

	g.Board = next
	g.Prisoners[color] += len(captured)
	g.History = append(g.History, next.Hash())
	g.Actions = append(g.Actions, Move{Kind: KindPlay, Color: color, Row: row, Col: col})
	g.Turn = color.Opponent()
	g.Pending = nil
	return nil
}

// Pass ends the turn without a placement. The second consecutive pass
// enters the endgame, with the second passer implicitly proposing an
// empty dead-mark tally.
func (g *Game) Pass(color board.Color) error {
	if g.over() {
		return ErrGameOver
	}
	if g.Phase != PhasePlay {
		return ErrWrongPhase
	}
	if color != g.Turn {
		return &board.IllegalMoveError{Reason: board.ReasonNotYourTurn}
	}

	prior := g.lastPlayOrPass()
	g.Actions = append(g.Actions, Move{Kind: KindPass, Color: color})
	g.Turn = color.Opponent()
	g.Pending = nil

	if prior != nil && prior.Kind == KindPass {
		g.Phase = PhaseEndgame
		g.DeadMarks = map[board.Point]bool{}
		g.Accepted = map[board.Color]bool{}
		// The second passer implicitly proposes an empty tally.
		g.Pending = &PendingRequest{Kind: RequestTally, By: color}
	}
	return nil
}

// Resign ends the game immediately in the opponent's favor.
func (g *Game) Resign(color board.Color) error {
	if g.over() {
		return ErrGameOver
	}
	g.Actions = append(g.Actions, Move{Kind: KindResign, Color: color})
	g.Phase = PhaseResigned
	g.Pending = nil
	g.Result = &Result{Winner: color.Opponent()}
	return nil
}

// MarkDead toggles a dead-stone mark during scoring. Any edit by
// either player voids earlier tally acceptances.
func (g *Game) MarkDead(color board.Color, row, col int, dead bool) error {
	if g.over() {
		return ErrGameOver
	}
	if g.Phase != PhaseEndgame {
		return ErrWrongPhase
	}
	if row < 0 || row >= g.Size || col < 0 || col >= g.Size {
		return &board.IllegalMoveError{Reason: board.ReasonOffBoard, Row: row, Col: col}
	}

	p := board.Point{Row: row, Col: col}
	if dead {
		g.DeadMarks[p] = true
	} else {
		delete(g.DeadMarks, p)
	}
	g.Accepted = map[board.Color]bool{}
	g.Actions = append(g.Actions, Move{Kind: KindMarkDead, Color: color, Row: row, Col: col, Dead: dead})
	return nil
}

// RequestUndo opens a takeback request. Only the player whose stone
// just landed (the one not to move) may ask.
func (g *Game) RequestUndo(color board.Color) error {
	if g.over() {
		return ErrGameOver
	}
	if g.Phase != PhasePlay {
		return ErrWrongPhase
	}
	if color == g.Turn {
		return ErrOwnRequest
	}
	g.Actions = append(g.Actions, Move{Kind: KindRequestUndo, Color: color})
	g.Pending = &PendingRequest{Kind: RequestUndo, By: color}
	return nil
}

// AcceptUndo grants a pending takeback. Board, prisoners and history
// are restored by replaying the action stack without the popped moves,
// until the requester is to move again.
func (g *Game) AcceptUndo(color board.Color) error {
	if g.over() {
		return ErrGameOver
	}
	if g.Pending == nil || g.Pending.Kind != RequestUndo {
		return ErrNoPendingRequest
	}
	if g.Pending.By == color {
		return ErrOwnRequest
	}
	requester := g.Pending.By

	actions := trimTrailingRequests(g.Actions)
	for {
		i := lastBoardActionIndex(actions)
		if i < 0 {
			return ErrNoPendingRequest
		}
		actions = append(actions[:i:i], actions[i+1:]...)
		replayed, err := Replay(g.Size, g.Komi, g.Handicap, actions)
		if err != nil {
			return fmt.Errorf("replaying for undo: %w", err)
		}
		if replayed.Turn != requester {
			continue
		}
		// The rebuilt stack omits the popped move and the request
		// bookkeeping, so it stays replayable as-is.
		*g = *replayed
		return nil
	}
}

// RequestTally proposes ending the game with the current dead marks.
// Acceptance is recorded only through AcceptTally.
func (g *Game) RequestTally(color board.Color) error {
	if g.over() {
		return ErrGameOver
	}
	if g.Phase != PhaseEndgame {
		return ErrWrongPhase
	}
	g.Actions = append(g.Actions, Move{Kind: KindRequestTally, Color: color})
	g.Pending = &PendingRequest{Kind: RequestTally, By: color}
	return nil
}

// AcceptTally accepts the current dead marks. Once both colors have
// accepted the same mark set the game completes and is scored.
func (g *Game) AcceptTally(color board.Color) error {
	if g.over() {
		return ErrGameOver
	}
	if g.Phase != PhaseEndgame {
		return ErrWrongPhase
	}
	g.Actions = append(g.Actions, Move{Kind: KindAcceptTally, Color: color})
	g.Accepted[color] = true

	if g.Accepted[board.Black] && g.Accepted[board.White] {
		white, black := g.Board.Score(g.Komi, g.DeadMarks)
		winner := board.Black
		if white > black {
			winner = board.White
		}
		g.Result = &Result{Winner: winner, WhiteScore: white, BlackScore: black}
		g.Phase = PhaseComplete
		g.Pending = nil
	}
	return nil
}

// LastTwoWerePasses reports whether the last two board actions were
// passes, one by each side.
func (g *Game) LastTwoWerePasses() bool {
	var passes int
	for i := len(g.Actions) - 1; i >= 0 && passes < 2; i-- {
		switch g.Actions[i].Kind {
		case KindPass:
			passes++
		case KindPlay:
			return false
		}
	}
	return passes == 2
}

// lastPlayOrPass returns the most recent board-changing action.
func (g *Game) lastPlayOrPass() *Move {
	for i := len(g.Actions) - 1; i >= 0; i-- {
		if g.Actions[i].Kind == KindPlay || g.Actions[i].Kind == KindPass {
			return &g.Actions[i]
		}
	}
	return nil
}

// trimTrailingRequests drops request/accept bookkeeping entries from
// the tail of the stack so undo pops an actual move.
func trimTrailingRequests(actions []Move) []Move {
	i := len(actions)
	for i > 0 {
		switch actions[i-1].Kind {
		case KindPlay, KindPass:
			return actions[:i:i]
		default:
			i--
		}
	}
	return actions[:i:i]
}

func lastBoardActionIndex(actions []Move) int {
	for i := len(actions) - 1; i >= 0; i-- {
		if actions[i].Kind == KindPlay || actions[i].Kind == KindPass {
			return i
		}
	}
	return -1
}

// Replay rebuilds a game by running a recorded action stack through a
// fresh state machine.
func Replay(size int, komi float64, handicap int, actions []Move) (*Game, error) {
	g, err := New(size, komi, handicap)
	if err != nil {
		return nil, err
	}
	for i, m := range actions {
		if err := g.Apply(m); err != nil {
			return nil, fmt.Errorf("replaying action %d (%s): %w", i, m.Kind, err)
		}
	}
	return g, nil
}
