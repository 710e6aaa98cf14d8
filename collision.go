package main

import "math"

// CollisionOracle answers line-of-sight and path queries against static
// world geometry. The simulation core never does triangle/ray math itself;
// it only consumes this interface.
type CollisionOracle interface {
	// TrimPath returns the furthest reachable point along the segment from
	// start toward end before hitting static geometry. Returns end when the
	// path is clear.
	TrimPath(start, end Coord) Coord
	// LineIsClear reports whether the straight line between a and b is
	// unobstructed.
	LineIsClear(a, b Coord) bool
}

// Obstacle is a static circular blocker (tree, boulder, fort wall segment).
type Obstacle struct {
	Center Coord   `yaml:"center"`
	Radius float64 `yaml:"radius"`
}

// FieldMap is the stock CollisionOracle: a rectangular field with circular
// obstacles. Read-only after construction, safe for concurrent use.
type FieldMap struct {
	width, height float64
	obstacles     []Obstacle
}

// NewFieldMap builds a FieldMap with the given bounds and obstacles.
func NewFieldMap(width, height float64, obstacles []Obstacle) *FieldMap {
	return &FieldMap{width: width, height: height, obstacles: obstacles}
}

// LineIsClear checks the segment against every obstacle.
func (m *FieldMap) LineIsClear(a, b Coord) bool {
	for _, o := range m.obstacles {
		if segmentHitsCircle(a, b, o.Center, o.Radius) {
			return false
		}
	}
	return true
}

// TrimPath clamps the destination to the field bounds, then walks the
// segment back to just before the first obstacle hit.
func (m *FieldMap) TrimPath(start, end Coord) Coord {
	end.X = Clamp(end.X, 0, m.width)
	end.Y = Clamp(end.Y, 0, m.height)

	bestT := 1.0
	for _, o := range m.obstacles {
		if t, hit := segmentCircleEntry(start, end, o.Center, o.Radius); hit && t < bestT {
			bestT = t
		}
	}
	if bestT >= 1.0 {
		return end
	}
	// Back off slightly so the committed destination is not inside the obstacle
	bestT -= 0.01
	if bestT < 0 {
		bestT = 0
	}
	return start.Lerp(end, bestT)
}

// DefaultObstacles scatters a small fixed set of blockers around the middle
// of the field, keeping the spawn lines and the direct flag lane clear.
func DefaultObstacles(tun *Tuning) []Obstacle {
	w, h := tun.MapWidth, tun.MapHeight
	return []Obstacle{
		{Center: Coord{X: w * 0.50, Y: h * 0.30}, Radius: 3},
		{Center: Coord{X: w * 0.50, Y: h * 0.70}, Radius: 3},
		{Center: Coord{X: w * 0.38, Y: h * 0.42}, Radius: 2},
		{Center: Coord{X: w * 0.62, Y: h * 0.58}, Radius: 2},
	}
}

// segmentHitsCircle checks if the segment a-b intersects the circle at c
// with radius r.
func segmentHitsCircle(a, b, c Coord, r float64) bool {
	_, hit := segmentCircleEntry(a, b, c, r)
	if hit {
		return true
	}
	// A segment fully inside the circle has no entry point but is blocked
	return a.DistSq(c) < r*r
}

// segmentCircleEntry returns the parameter t in [0,1] where the segment
// a-b first enters the circle, and whether it does.
func segmentCircleEntry(a, b, c Coord, r float64) (float64, bool) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	fx := a.X - c.X
	fy := a.Y - c.Y

	qa := dx*dx + dy*dy
	if qa == 0 {
		return 0, false
	}
	qb := 2 * (fx*dx + fy*dy)
	qc := fx*fx + fy*fy - r*r

	disc := qb*qb - 4*qa*qc
	if disc < 0 {
		return 0, false
	}
	disc = math.Sqrt(disc)
	t1 := (-qb - disc) / (2 * qa)
	if t1 >= 0 && t1 <= 1 {
		return t1, true
	}
	return 0, false
}
