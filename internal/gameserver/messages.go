package gameserver

import (
	"encoding/json"
	"fmt"

	"github.com/udisondev/goban/internal/board"
	"github.com/udisondev/goban/internal/game"
)

// Error kinds surfaced to clients.
const (
	errClientProtocol = "client_protocol"
	errUnauthorized   = "unauthorized"
	errKeyState       = "key_state"
	errIllegalMove    = "illegal_move"
	errServerError    = "server_error"
)

// inbound is the union of all client message shapes; Type selects the
// variant.
type inbound struct {
	Type string `json:"type"`

	// new_game
	Size             int      `json:"size,omitempty"`
	Komi             *float64 `json:"komi,omitempty"`
	Handicap         int      `json:"handicap,omitempty"`
	YourColor        string   `json:"your_color,omitempty"`
	VsAI             bool     `json:"vs_ai,omitempty"`
	KeyToUnsubscribe string   `json:"key_to_unsubscribe,omitempty"`

	// join_game
	Key      string `json:"key,omitempty"`
	AISecret string `json:"ai_secret,omitempty"`

	// game_action
	Action *action `json:"action,omitempty"`

	// chat
	Message string `json:"message,omitempty"`
}

// action is the inbound move payload. The color is always the
// session's own; a client cannot move for its opponent.
type action struct {
	Kind string `json:"kind"`
	Row  int    `json:"row"`
	Col  int    `json:"col"`
	Dead bool   `json:"dead"`
}

// move converts the payload into an engine move for the given color.
func (a *action) move(color board.Color) (game.Move, error) {
	m := game.Move{Kind: game.Kind(a.Kind), Color: color, Row: a.Row, Col: a.Col, Dead: a.Dead}
	if err := m.Validate(); err != nil {
		return game.Move{}, fmt.Errorf("invalid action: %w", err)
	}
	return m, nil
}

type newGameResponse struct {
	Type      string          `json:"type"`
	WhiteKey  string          `json:"white_key"`
	BlackKey  string          `json:"black_key"`
	YourColor string          `json:"your_color"`
	Version   int             `json:"version"`
	Game      json.RawMessage `json:"game"`
}

type joinGameResponse struct {
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	YourColor  string          `json:"your_color,omitempty"`
	Version    int             `json:"version,omitempty"`
	TimePlayed float64         `json:"time_played,omitempty"`
	Game       json.RawMessage `json:"game,omitempty"`
}

type gameStatusMsg struct {
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	TimePlayed float64         `json:"time_played"`
	Game       json.RawMessage `json:"game"`
}

type chatMsg struct {
	Type      string  `json:"type"`
	ID        int64   `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Color     string  `json:"color"`
	Message   string  `json:"message"`
}

type opponentConnectedMsg struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

type gameActionResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Version int    `json:"version,omitempty"`
}

type errorMsg struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// unmarshalStrictType decodes an inbound frame and insists on a type
// tag, so malformed frames fail before reaching any handler.
func unmarshalStrictType(raw []byte, msg *inbound) error {
	if err := json.Unmarshal(raw, msg); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	if msg.Type == "" {
		return fmt.Errorf("message has no type")
	}
	return nil
}

func marshalMsg(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		// All outbound shapes are marshalable by construction.
		panic(fmt.Sprintf("marshaling outbound message: %v", err))
	}
	return out
}

func errorPayload(kind, reason string) []byte {
	return marshalMsg(errorMsg{Type: "error", Kind: kind, Reason: reason})
}
