package physics

import "math"

const Epsilon = 1e-9

type Vec2 struct {
	X float64
	Y float64
}

// Bounds is an axis-aligned rectangle, inclusive on all edges.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Arena returns the area a circle of radius r may occupy inside a w x h field.
func Arena(w, h, r float64) Bounds {
	return Bounds{MinX: r, MinY: r, MaxX: w - r, MaxY: h - r}
}

// Expand grows b by margin on every side.
func (b Bounds) Expand(margin float64) Bounds {
	return Bounds{
		MinX: b.MinX - margin,
		MinY: b.MinY - margin,
		MaxX: b.MaxX + margin,
		MaxY: b.MaxY + margin,
	}
}

func (b Bounds) Contains(p Vec2) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

func (b Bounds) Clamp(p Vec2) Vec2 {
	return Vec2{X: clamp(p.X, b.MinX, b.MaxX), Y: clamp(p.Y, b.MinY, b.MaxY)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Step moves p by speed along the axes held in the four flags. Diagonal motion
// is the sum of both axes and is not normalized.
func Step(p Vec2, up, down, left, right bool, speed float64) Vec2 {
	if up {
		p.Y -= speed
	}
	if down {
		p.Y += speed
	}
	if left {
		p.X -= speed
	}
	if right {
		p.X += speed
	}
	return p
}

// Advance moves p by speed along angle (radians, screen coordinates).
func Advance(p Vec2, angle, speed float64) Vec2 {
	return Vec2{
		X: p.X + math.Cos(angle)*speed,
		Y: p.Y + math.Sin(angle)*speed,
	}
}

func DistanceSquared(a, b Vec2) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// CirclesOverlap reports whether two circles touch or intersect.
func CirclesOverlap(a Vec2, ra float64, b Vec2, rb float64) bool {
	sum := ra + rb
	return DistanceSquared(a, b) <= sum*sum
}

// CircleRectOverlap tests a circle against the axis-aligned box centered on
// center with the given half extent.
func CircleRectOverlap(c Vec2, r float64, center Vec2, half float64) bool {
	closest := Vec2{
		X: clamp(c.X, center.X-half, center.X+half),
		Y: clamp(c.Y, center.Y-half, center.Y+half),
	}
	return DistanceSquared(c, closest) <= r*r+Epsilon
}

// Shape selects the collision test used between bullets and players.
type Shape int

const (
	ShapeCircle Shape = iota
	ShapeRect
)

func ParseShape(name string) (Shape, bool) {
	switch name {
	case "", "circle":
		return ShapeCircle, true
	case "rect":
		return ShapeRect, true
	default:
		return ShapeCircle, false
	}
}

func (s Shape) String() string {
	switch s {
	case ShapeCircle:
		return "circle"
	case ShapeRect:
		return "rect"
	default:
		return "unknown"
	}
}

// Hit tests a bullet of radius rb at b against a player of size rp at p.
func (s Shape) Hit(b Vec2, rb float64, p Vec2, rp float64) bool {
	if s == ShapeRect {
		return CircleRectOverlap(b, rb, p, rp)
	}
	return CirclesOverlap(b, rb, p, rp)
}
