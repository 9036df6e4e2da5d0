package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Default world units covered by one terminal cell. Cells are about twice as
// tall as they are wide, so rows cover twice the distance of columns.
const (
	DefaultCellWidth  = 4
	DefaultCellHeight = 8

	// followRate is how quickly the camera closes the gap to its target,
	// per second.
	followRate = 8
)

// Camera translates between world coordinates and screen cells.
type Camera struct {
	Center     mgl32.Vec2
	CellWidth  float32
	CellHeight float32
	ViewWidth  int // in terminal columns
	ViewHeight int // in terminal rows
}

// NewCamera creates a camera centred on the origin.
func NewCamera(viewW, viewH int) *Camera {
	return &Camera{
		CellWidth:  DefaultCellWidth,
		CellHeight: DefaultCellHeight,
		ViewWidth:  viewW,
		ViewHeight: viewH,
	}
}

// Follow eases the camera toward target.
func (c *Camera) Follow(target mgl32.Vec2, dt float32) {
	t := followRate * dt
	if t > 1 {
		t = 1
	}
	c.Center = c.Center.Add(target.Sub(c.Center).Mul(t))
}

// WorldToScreen converts a world position to a screen cell.
// visible is false when the result falls outside the viewport.
func (c *Camera) WorldToScreen(p mgl32.Vec2) (sx, sy int, visible bool) {
	sx = int(math.Floor(float64((p[0]-c.Center[0])/c.CellWidth))) + c.ViewWidth/2
	sy = int(math.Floor(float64((p[1]-c.Center[1])/c.CellHeight))) + c.ViewHeight/2
	visible = sx >= 0 && sx < c.ViewWidth && sy >= 0 && sy < c.ViewHeight
	return
}

// ScreenToWorld converts the centre of a screen cell to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy int) mgl32.Vec2 {
	return mgl32.Vec2{
		(float32(sx-c.ViewWidth/2)+0.5)*c.CellWidth + c.Center[0],
		(float32(sy-c.ViewHeight/2)+0.5)*c.CellHeight + c.Center[1],
	}
}

// Cells returns how many columns and rows a square of the given world size
// covers, at least one of each.
func (c *Camera) Cells(size float32) (w, h int) {
	w = int(size/c.CellWidth + 0.5)
	h = int(size/c.CellHeight + 0.5)
	return max(w, 1), max(h, 1)
}
