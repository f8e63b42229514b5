package game

import (
	"fmt"

	"github.com/udisondev/goban/internal/board"
)

// Kind tags the move variants a player can submit.
type Kind string

const (
	KindPlay         Kind = "play"
	KindPass         Kind = "pass"
	KindResign       Kind = "resign"
	KindMarkDead     Kind = "mark_dead"
	KindRequestUndo  Kind = "request_undo"
	KindAcceptUndo   Kind = "accept_undo"
	KindRequestTally Kind = "request_tally"
	KindAcceptTally  Kind = "accept_tally"
)

// Move is one entry of the append-only action stack. Row/Col are only
// meaningful for play and mark_dead; Dead only for mark_dead.
type Move struct {
	Kind  Kind        `json:"kind"`
	Color board.Color `json:"color"`
	Row   int         `json:"row,omitempty"`
	Col   int         `json:"col,omitempty"`
	Dead  bool        `json:"dead,omitempty"`
}

// Validate rejects moves whose tag or color is malformed before they
// reach the state machine.
func (m Move) Validate() error {
	if m.Color != board.Black && m.Color != board.White {
		return fmt.Errorf("move needs a playing color, got %v", m.Color)
	}
	switch m.Kind {
	case KindPlay, KindPass, KindResign, KindMarkDead,
		KindRequestUndo, KindAcceptUndo, KindRequestTally, KindAcceptTally:
		return nil
	}
	return fmt.Errorf("unknown move kind %q", m.Kind)
}
