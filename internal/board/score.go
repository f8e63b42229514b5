package board

// DefaultKomi is White's compensation in an even game. Handicap games
// use HandicapKomi instead.
const (
	DefaultKomi  = 6.5
	HandicapKomi = 0.5
)

// Territory assigns empty regions to colors under area scoring. Dead
// stones are removed before the sweep. A maximal empty region belongs
// to a color when every bordering stone is that color; mixed or
// unbordered regions belong to no one.
func (b *Board) Territory(dead map[Point]bool) map[Color][]Point {
	work := b
	if len(dead) > 0 {
		points := make([]Point, 0, len(dead))
		for p := range dead {
			points = append(points, p)
		}
		work = b.Remove(points)
	}

	out := map[Color][]Point{}
	visited := make(map[Point]bool)
	for row := range work.size {
		for col := range work.size {
			start := Point{row, col}
			if visited[start] || work.At(row, col) != Empty {
				continue
			}

			var region []Point
			borders := map[Color]bool{}
			stack := []Point{start}
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if visited[p] {
					continue
				}
				visited[p] = true
				region = append(region, p)
				for _, n := range work.Neighbors(p.Row, p.Col) {
					switch c := work.At(n.Row, n.Col); c {
					case Empty:
						if !visited[n] {
							stack = append(stack, n)
						}
					default:
						borders[c] = true
					}
				}
			}

			if borders[Black] != borders[White] {
				owner := Black
				if borders[White] {
					owner = White
				}
				out[owner] = append(out[owner], region...)
			}
		}
	}
	return out
}

// Score computes the area score for both colors: live stones on the
// board plus surrounded territory, with komi added to White. Dead
// stones are removed first, so an enemy group marked dead turns into
// territory for the surrounding color. Prisoners captured during play
// do not enter area scoring; the game keeps them for games decided by
// resignation.
func (b *Board) Score(komi float64, dead map[Point]bool) (white, black float64) {
	work := b
	if len(dead) > 0 {
		points := make([]Point, 0, len(dead))
		for p := range dead {
			points = append(points, p)
		}
		work = b.Remove(points)
	}

	territory := work.Territory(nil)
	white = float64(work.Stones(White)+len(territory[White])) + komi
	black = float64(work.Stones(Black) + len(territory[Black]))
	return white, black
}

// handicapTables lists canonical handicap placements per board size in
// standard order. Indexing is zero-based from the top-left corner.
var handicapTables = map[int][]Point{
	9: {
		{6, 2}, {2, 6}, {6, 6}, {2, 2}, {4, 4},
	},
	13: {
		{9, 3}, {3, 9}, {9, 9}, {3, 3}, {6, 6},
		{6, 3}, {6, 9}, {3, 6}, {9, 6},
	},
	19: {
		{15, 3}, {3, 15}, {15, 15}, {3, 3}, {9, 9},
		{9, 3}, {9, 15}, {3, 9}, {15, 9},
	},
}

// MaxHandicap returns the largest supported handicap for a board size.
func MaxHandicap(size int) int {
	return len(handicapTables[size])
}

// HandicapPoints returns the first n canonical handicap points for the
// size. When n names the 6- or 8-stone placement the center point is
// skipped, following convention.
func HandicapPoints(size, n int) []Point {
	table := handicapTables[size]
	if n <= 0 || len(table) == 0 {
		return nil
	}
	if n > len(table) {
		n = len(table)
	}
	if size > 9 && (n == 6 || n == 8) {
		// Edge stones replace the center for even counts.
		pts := make([]Point, 0, n)
		for _, p := range table[:n+1] {
			if p == table[4] {
				continue
			}
			pts = append(pts, p)
		}
		return pts
	}
	return table[:n]
}
