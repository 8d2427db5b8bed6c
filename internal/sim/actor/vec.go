package actor

// Vec2i is an integer grid coordinate.
type Vec2i struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (v Vec2i) ToArray() [2]int { return [2]int{v.X, v.Y} }

// Chebyshev is the movement and vision metric: a diagonal step counts one.
func Chebyshev(a, b Vec2i) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// StepToward returns from advanced one cell toward to, moving diagonally
// when both axes differ. StepToward(p, p) returns p.
func StepToward(from, to Vec2i) Vec2i {
	return Vec2i{X: from.X + sign(to.X-from.X), Y: from.Y + sign(to.Y-from.Y)}
}

// Neighbors8 lists the eight surrounding cells in fixed scan order,
// including cells outside the grid; callers filter with InBounds.
func Neighbors8(p Vec2i) []Vec2i {
	out := make([]Vec2i, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			out = append(out, Vec2i{X: p.X + dx, Y: p.Y + dy})
		}
	}
	return out
}

func InBounds(p Vec2i, width, height int) bool {
	return p.X >= 0 && p.X < width && p.Y >= 0 && p.Y < height
}

func sign(d int) int {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	}
	return 0
}
