package models

import "fmt"

// Rect is an axis-aligned rectangle with its origin at the top-left corner.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// ContainsStrict reports whether (x, y) lies in the open interior of r.
// Points on an edge are outside.
func (r Rect) ContainsStrict(x, y float64) bool {
	return x > r.X && x < r.X+r.Width &&
		y > r.Y && y < r.Y+r.Height
}

func (r Rect) Intersects(other Rect) bool {
	return r.X < other.X+other.Width &&
		r.X+r.Width > other.X &&
		r.Y < other.Y+other.Height &&
		r.Y+r.Height > other.Y
}

// Inflate grows r by d on every side.
func (r Rect) Inflate(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, Width: r.Width + 2*d, Height: r.Height + 2*d}
}

// Bounds formats r as [x1,y1,x2,y2].
func (r Rect) Bounds() string {
	return fmt.Sprintf("[%s,%s,%s,%s]", Num(r.X), Num(r.Y), Num(r.X+r.Width), Num(r.Y+r.Height))
}

// Num prints whole numbers without a decimal point, the way the model writes them.
func Num(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
