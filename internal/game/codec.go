package game

import (
	"encoding/json"
	"fmt"

	"github.com/udisondev/goban/internal/board"
)

// snapshotVersion is bumped whenever the snapshot layout changes, so
// a newer server can detect and migrate old blobs.
const snapshotVersion = 1

// snapshot is the self-describing persisted form of a Game. The grid
// is stored flat alongside the action stack, so a reader can either
// trust the materialized state or replay the stack.
type snapshot struct {
	V        int     `json:"v"`
	Size     int     `json:"size"`
	Komi     float64 `json:"komi"`
	Handicap int     `json:"handicap"`

	Turn           board.Color     `json:"turn"`
	PrisonersBlack int             `json:"prisoners_black"`
	PrisonersWhite int             `json:"prisoners_white"`
	Grid           string          `json:"grid"`
	History        []board.Hash    `json:"history"`
	Phase          Phase           `json:"phase"`
	DeadMarks      []board.Point   `json:"dead_marks,omitempty"`
	Pending        *PendingRequest `json:"pending,omitempty"`
	AcceptedBlack  bool            `json:"accepted_black,omitempty"`
	AcceptedWhite  bool            `json:"accepted_white,omitempty"`
	Actions        []Move          `json:"actions"`
	Result         *Result         `json:"result,omitempty"`
}

// Marshal serializes the game into its versioned snapshot blob.
func (g *Game) Marshal() ([]byte, error) {
	s := snapshot{
		V:              snapshotVersion,
		Size:           g.Size,
		Komi:           g.Komi,
		Handicap:       g.Handicap,
		Turn:           g.Turn,
		PrisonersBlack: g.Prisoners[board.Black],
		PrisonersWhite: g.Prisoners[board.White],
		Grid:           g.Board.Encode(),
		History:        g.History,
		Phase:          g.Phase,
		Pending:        g.Pending,
		AcceptedBlack:  g.Accepted[board.Black],
		AcceptedWhite:  g.Accepted[board.White],
		Actions:        g.Actions,
		Result:         g.Result,
	}
	for p := range g.DeadMarks {
		s.DeadMarks = append(s.DeadMarks, p)
	}
	return json.Marshal(s)
}

// Unmarshal rebuilds a game from a snapshot blob.
func Unmarshal(data []byte) (*Game, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding game snapshot: %w", err)
	}
	if s.V != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.V)
	}

	b, err := board.Decode(s.Size, s.Grid)
	if err != nil {
		return nil, fmt.Errorf("decoding board: %w", err)
	}

	g := &Game{
		Size:     s.Size,
		Komi:     s.Komi,
		Handicap: s.Handicap,
		Turn:     s.Turn,
		Prisoners: map[board.Color]int{
			board.Black: s.PrisonersBlack,
			board.White: s.PrisonersWhite,
		},
		Board:     b,
		History:   s.History,
		Phase:     s.Phase,
		DeadMarks: map[board.Point]bool{},
		Pending:   s.Pending,
		Accepted:  map[board.Color]bool{},
		Actions:   s.Actions,
		Result:    s.Result,
	}
	for _, p := range s.DeadMarks {
		g.DeadMarks[p] = true
	}
	if s.AcceptedBlack {
		g.Accepted[board.Black] = true
	}
	if s.AcceptedWhite {
		g.Accepted[board.White] = true
	}
	return g, nil
}
