package board

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustPlace places a stone, failing the test on an illegal move.
func mustPlace(t *testing.T, b *Board, c Color, row, col int) *Board {
	t.Helper()
	next, _, err := b.Place(c, row, col, nil)
	require.NoError(t, err, "Place(%v, %d, %d)", c, row, col)
	return next
}

func TestNew(t *testing.T) {
	tests := []struct {
		size    int
		wantErr bool
	}{
		{size: 9},
		{size: 13},
		{size: 19},
		{size: 8, wantErr: true},
		{size: 0, wantErr: true},
		{size: 21, wantErr: true},
	}

	for _, tt := range tests {
		b, err := New(tt.size)
		if tt.wantErr {
			assert.Error(t, err, "size %d", tt.size)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.size, b.Size())
		assert.Equal(t, Empty, b.At(0, 0))
	}
}

func TestNeighbors(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)

	tests := []struct {
		name     string
		row, col int
		want     int
	}{
		{name: "corner", row: 0, col: 0, want: 2},
		{name: "edge", row: 0, col: 4, want: 3},
		{name: "center", row: 4, col: 4, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, b.Neighbors(tt.row, tt.col), tt.want)
		})
	}
}

func TestGroupAt(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	b = mustPlace(t, b, Black, 4, 4)
	b = mustPlace(t, b, Black, 4, 5)
	b = mustPlace(t, b, White, 3, 4)

	group, libs := b.GroupAt(4, 4)
	assert.Len(t, group, 2)
	// 6 around the pair minus the white stone on (3,4).
	assert.Len(t, libs, 5)

	group, libs = b.GroupAt(0, 0)
	assert.Nil(t, group)
	assert.Nil(t, libs)
}

func TestPlaceRejectsOffBoardAndOccupied(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	b = mustPlace(t, b, Black, 4, 4)

	_, _, err = b.Place(White, 9, 0, nil)
	var illegal *IllegalMoveError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, ReasonOffBoard, illegal.Reason)

	_, _, err = b.Place(White, 4, 4, nil)
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, ReasonOccupied, illegal.Reason)
}

// The capture scenario from the rules: white surrounds the lone black
// stone at (4,4) and takes it on the final placement.
func TestPlaceCapture(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	b = mustPlace(t, b, Black, 4, 4)
	b = mustPlace(t, b, White, 3, 4)
	b = mustPlace(t, b, White, 4, 3)
	b = mustPlace(t, b, White, 4, 5)

	next, captured, err := b.Place(White, 5, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, []Point{{4, 4}}, captured)
	assert.Equal(t, Empty, next.At(4, 4))
	assert.Equal(t, White, next.At(5, 4))
}

// Suicide in a corner that captures nothing must be rejected; the same
// shape with a capturable white stone inside is legal.
func TestPlaceSuicide(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	b = mustPlace(t, b, White, 0, 1)
	b = mustPlace(t, b, White, 1, 0)

	_, _, err = b.Place(Black, 0, 0, nil)
	var illegal *IllegalMoveError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, ReasonSuicide, illegal.Reason)

	// Surround the white pair so that the same point captures.
	b = mustPlace(t, b, Black, 0, 2)
	b = mustPlace(t, b, Black, 1, 1)
	b = mustPlace(t, b, Black, 2, 0)
	next, captured, err := b.Place(Black, 0, 0, nil)
	require.NoError(t, err)
	assert.Len(t, captured, 2)
	assert.Equal(t, Black, next.At(0, 0))
	assert.Equal(t, Empty, next.At(0, 1))
	assert.Equal(t, Empty, next.At(1, 0))
}

// Classic ko: after white captures the ko stone, the immediate black
// recapture reproduces the prior position and is rejected; once black
// has played elsewhere, the recapture is legal again.
func TestPlaceKo(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	for _, p := range []Point{{3, 2}, {4, 1}, {5, 2}} {
		b = mustPlace(t, b, Black, p.Row, p.Col)
	}
	for _, p := range []Point{{3, 3}, {4, 4}, {5, 3}} {
		b = mustPlace(t, b, White, p.Row, p.Col)
	}
	// Black fills the mouth of the white jaw with one liberty left.
	b = mustPlace(t, b, Black, 4, 3)
	history := []Hash{b.Hash()}

	// White takes the ko stone.
	b2, captured, err := b.Place(White, 4, 2, history)
	require.NoError(t, err)
	require.Equal(t, []Point{{4, 3}}, captured)
	history = append(history, b2.Hash())

	// Immediate recapture would repeat the earlier position.
	_, _, err = b2.Place(Black, 4, 3, history)
	var illegal *IllegalMoveError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, ReasonKo, illegal.Reason)

	// After an exchange elsewhere the position differs and the
	// recapture stands.
	b3, _, err := b2.Place(Black, 8, 8, history)
	require.NoError(t, err)
	history = append(history, b3.Hash())
	b4, _, err := b3.Place(White, 8, 7, history)
	require.NoError(t, err)
	history = append(history, b4.Hash())
	_, captured, err = b4.Place(Black, 4, 3, history)
	require.NoError(t, err)
	assert.Equal(t, []Point{{4, 2}}, captured)
}

func TestPlaceDoesNotMutateReceiver(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	next, _, err := b.Place(Black, 4, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, Empty, b.At(4, 4))
	assert.Equal(t, Black, next.At(4, 4))
	assert.False(t, b.Equal(next))
}

func TestIllegalMoveErrorMessage(t *testing.T) {
	err := error(&IllegalMoveError{Reason: ReasonKo, Row: 3, Col: 4})
	assert.Equal(t, "illegal move at (3,4): ko", err.Error())
	var illegal *IllegalMoveError
	assert.True(t, errors.As(err, &illegal))
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("black")
	require.NoError(t, err)
	assert.Equal(t, Black, c)
	c, err = ParseColor("white")
	require.NoError(t, err)
	assert.Equal(t, White, c)
	_, err = ParseColor("green")
	assert.Error(t, err)
}
