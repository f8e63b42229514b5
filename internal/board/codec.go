package board

import "fmt"

// Encode flattens the grid into one character per intersection,
// row-major: '.' empty, 'b' black, 'w' white. The result is the
// portable form stored inside game snapshots.
func (b *Board) Encode() string {
	out := make([]byte, len(b.grid))
	for i, c := range b.grid {
		switch c {
		case Black:
			out[i] = 'b'
		case White:
			out[i] = 'w'
		default:
			out[i] = '.'
		}
	}
	return string(out)
}

// Decode rebuilds a board from its Encode form.
func Decode(size int, s string) (*Board, error) {
	b, err := New(size)
	if err != nil {
		return nil, err
	}
	if len(s) != size*size {
		return nil, fmt.Errorf("grid length %d does not match size %d", len(s), size)
	}
	for i := range len(s) {
		switch s[i] {
		case 'b':
			b.grid[i] = Black
		case 'w':
			b.grid[i] = White
		case '.':
		default:
			return nil, fmt.Errorf("invalid grid rune %q at %d", s[i], i)
		}
	}
	return b, nil
}
