package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goban/internal/board"
)

// roundTrip marshals and unmarshals the game, failing on any error.
func roundTrip(t *testing.T, g *Game) *Game {
	t.Helper()
	blob, err := g.Marshal()
	require.NoError(t, err)
	back, err := Unmarshal(blob)
	require.NoError(t, err)
	return back
}

func assertGamesEqual(t *testing.T, want, got *Game) {
	t.Helper()
	assert.Equal(t, want.Size, got.Size)
	assert.Equal(t, want.Komi, got.Komi)
	assert.Equal(t, want.Handicap, got.Handicap)
	assert.Equal(t, want.Turn, got.Turn)
	assert.Equal(t, want.Prisoners, got.Prisoners)
	assert.True(t, want.Board.Equal(got.Board), "boards differ")
	assert.Equal(t, want.History, got.History)
	assert.Equal(t, want.Phase, got.Phase)
	assert.Equal(t, want.DeadMarks, got.DeadMarks)
	assert.Equal(t, want.Pending, got.Pending)
	assert.Equal(t, want.Accepted, got.Accepted)
	assert.Equal(t, want.Actions, got.Actions)
	assert.Equal(t, want.Result, got.Result)
}

func TestRoundTripFresh(t *testing.T) {
	g, err := New(19, board.DefaultKomi, 0)
	require.NoError(t, err)
	assertGamesEqual(t, g, roundTrip(t, g))
}

func TestRoundTripMidGame(t *testing.T) {
	g, err := New(9, board.HandicapKomi, 2)
	require.NoError(t, err)
	apply(t, g,
		Move{Kind: KindPlay, Color: board.White, Row: 4, Col: 4},
		Move{Kind: KindPlay, Color: board.Black, Row: 4, Col: 5},
		Move{Kind: KindRequestUndo, Color: board.Black},
	)
	assertGamesEqual(t, g, roundTrip(t, g))
}

func TestRoundTripEndgameAndComplete(t *testing.T) {
	g := newGame(t)
	apply(t, g,
		Move{Kind: KindPlay, Color: board.Black, Row: 2, Col: 2},
		Move{Kind: KindPass, Color: board.White},
		Move{Kind: KindPass, Color: board.Black},
		Move{Kind: KindMarkDead, Color: board.White, Row: 2, Col: 2, Dead: true},
		Move{Kind: KindMarkDead, Color: board.White, Row: 2, Col: 2, Dead: false},
	)
	assertGamesEqual(t, g, roundTrip(t, g))

	apply(t, g,
		Move{Kind: KindAcceptTally, Color: board.White},
		Move{Kind: KindAcceptTally, Color: board.Black},
	)
	require.Equal(t, PhaseComplete, g.Phase)
	assertGamesEqual(t, g, roundTrip(t, g))
}

// Replaying a recorded stack into a fresh game must converge on the
// same state the snapshot carries, at every step.
func TestReplayMatchesSnapshots(t *testing.T) {
	g := newGame(t)
	moves := []Move{
		{Kind: KindPlay, Color: board.Black, Row: 4, Col: 4},
		{Kind: KindPlay, Color: board.White, Row: 3, Col: 4},
		{Kind: KindPass, Color: board.Black},
		{Kind: KindPlay, Color: board.White, Row: 4, Col: 3},
		{Kind: KindPass, Color: board.Black},
		{Kind: KindPlay, Color: board.White, Row: 4, Col: 5},
		{Kind: KindPass, Color: board.Black},
		{Kind: KindPlay, Color: board.White, Row: 5, Col: 4},
		{Kind: KindPass, Color: board.Black},
		{Kind: KindPass, Color: board.White},
	}
	for _, m := range moves {
		require.NoError(t, g.Apply(m))
		replayed, err := Replay(g.Size, g.Komi, g.Handicap, g.Actions)
		require.NoError(t, err)
		assertGamesEqual(t, roundTrip(t, g), replayed)
	}
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	_, err := Unmarshal([]byte("{"))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"v":99,"size":9,"grid":""}`))
	assert.ErrorContains(t, err, "unsupported snapshot version")

	_, err = Unmarshal([]byte(`{"v":1,"size":9,"grid":"xx"}`))
	assert.Error(t, err)
}
