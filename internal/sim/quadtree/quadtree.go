// Package quadtree provides the point quadtree the world rebuilds from each
// start-of-tick snapshot. Trees are write-once per tick: built, queried,
// then discarded, never mutated while a tick is in flight.
package quadtree

// Point is one indexed actor position.
type Point struct {
	X, Y int
	ID   string
}

// Rect is an axis-aligned range with inclusive bounds.
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

// Around returns the square range covering every cell within Chebyshev
// radius r of (x, y).
func Around(x, y, r int) Rect {
	return Rect{MinX: x - r, MinY: y - r, MaxX: x + r, MaxY: y + r}
}

func (r Rect) contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

func (r Rect) intersects(o Rect) bool {
	return r.MinX <= o.MaxX && r.MaxX >= o.MinX && r.MinY <= o.MaxY && r.MaxY >= o.MinY
}

func (r Rect) empty() bool { return r.MinX > r.MaxX || r.MinY > r.MaxY }

// nodeCapacity is how many points a leaf holds before it splits.
const nodeCapacity = 4

// Tree is a point quadtree over integer cells. Co-located points are legal:
// a leaf that cannot subdivide further grows past nodeCapacity instead.
type Tree struct {
	bounds Rect
	points []Point
	kids   []*Tree // nil for leaves; quadrant order NW, NE, SW, SE
	count  int
}

// New builds an empty tree covering [0,width) x [0,height).
func New(width, height int) *Tree {
	return &Tree{bounds: Rect{MinX: 0, MinY: 0, MaxX: width - 1, MaxY: height - 1}}
}

// Len reports the number of stored points.
func (t *Tree) Len() int { return t.count }

// Insert adds a point. Points outside the tree bounds are rejected.
func (t *Tree) Insert(x, y int, id string) bool {
	if !t.bounds.contains(x, y) {
		return false
	}
	t.insert(Point{X: x, Y: y, ID: id})
	return true
}

func (t *Tree) insert(p Point) {
	t.count++
	if t.kids == nil {
		if len(t.points) < nodeCapacity || !t.canSplit() {
			t.points = append(t.points, p)
			return
		}
		t.split()
	}
	t.child(p.X, p.Y).insert(p)
}

func (t *Tree) canSplit() bool {
	return t.bounds.MaxX > t.bounds.MinX || t.bounds.MaxY > t.bounds.MinY
}

func (t *Tree) split() {
	b := t.bounds
	midX := (b.MinX + b.MaxX) / 2
	midY := (b.MinY + b.MaxY) / 2
	t.kids = []*Tree{
		{bounds: Rect{MinX: b.MinX, MinY: b.MinY, MaxX: midX, MaxY: midY}},
		{bounds: Rect{MinX: midX + 1, MinY: b.MinY, MaxX: b.MaxX, MaxY: midY}},
		{bounds: Rect{MinX: b.MinX, MinY: midY + 1, MaxX: midX, MaxY: b.MaxY}},
		{bounds: Rect{MinX: midX + 1, MinY: midY + 1, MaxX: b.MaxX, MaxY: b.MaxY}},
	}
	pts := t.points
	t.points = nil
	for _, p := range pts {
		c := t.child(p.X, p.Y)
		c.count++
		c.points = append(c.points, p)
	}
}

func (t *Tree) child(x, y int) *Tree {
	for _, k := range t.kids {
		if !k.bounds.empty() && k.bounds.contains(x, y) {
			return k
		}
	}
	// Unreachable for in-bounds points; keep inserts total anyway.
	return t.kids[0]
}

// Query appends every point inside r to a fresh slice, in deterministic
// traversal order for a fixed insertion order.
func (t *Tree) Query(r Rect) []Point {
	return t.QueryInto(r, nil)
}

// QueryInto appends matches to dst and returns the extended slice. Reuse
// dst across calls to avoid allocations on the vision hot path.
func (t *Tree) QueryInto(r Rect, dst []Point) []Point {
	if t.count == 0 || !t.bounds.intersects(r) {
		return dst
	}
	for _, p := range t.points {
		if r.contains(p.X, p.Y) {
			dst = append(dst, p)
		}
	}
	for _, k := range t.kids {
		if !k.bounds.empty() {
			dst = k.QueryInto(r, dst)
		}
	}
	return dst
}
