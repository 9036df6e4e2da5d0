package render

import (
	"math/rand"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/mattn/go-runewidth"

	"netgame/internal/client"
)

// HUDRows is the number of rows reserved at the bottom of the screen.
const HUDRows = 5

// maxNameWidth caps how many columns a name label may take.
const maxNameWidth = 16

// Renderer draws a client mirror onto a tcell screen.
type Renderer struct {
	screen tcell.Screen
	camera *Camera
	bursts *Bursts
}

// NewRenderer creates a Renderer for the given screen.
func NewRenderer(screen tcell.Screen, rng *rand.Rand) *Renderer {
	w, h := screen.Size()
	return &Renderer{
		screen: screen,
		camera: NewCamera(w, max(h-HUDRows, 1)),
		bursts: NewBursts(rng),
	}
}

// Bursts returns the particle ring; hand it to the mirror as its Effects.
func (r *Renderer) Bursts() *Bursts { return r.bursts }

// Camera returns the renderer's camera.
func (r *Renderer) Camera() *Camera { return r.camera }

// Resize refits the viewport to the screen.
func (r *Renderer) Resize() {
	w, h := r.screen.Size()
	r.camera.ViewWidth = w
	r.camera.ViewHeight = max(h-HUDRows, 1)
}

// Update advances cosmetic state: the camera eases toward the player's own
// entity and burst particles age.
func (r *Renderer) Update(m *client.Mirror, dt float32) {
	if own := m.Own(); own != nil {
		r.camera.Follow(own.Pos, dt)
	}
	r.bursts.Step(dt)
}

// ScreenToWorld converts a screen cell to world coordinates, for aiming.
func (r *Renderer) ScreenToWorld(sx, sy int) mgl32.Vec2 {
	return r.camera.ScreenToWorld(sx, sy)
}

// DrawFrame renders the field, every mirrored entity and the burst particles.
func (r *Renderer) DrawFrame(m *client.Mirror) {
	r.screen.Clear()
	r.drawField()
	own := m.You()
	m.Each(func(e *client.MirrorEntity) {
		r.drawEntity(e, e.ID == own)
	})
	r.drawBursts()
}

func (r *Renderer) drawField() {
	style := tcell.StyleDefault.Background(Background)
	for y := 0; y < r.camera.ViewHeight; y++ {
		for x := 0; x < r.camera.ViewWidth; x++ {
			r.screen.SetContent(x, y, ' ', nil, style)
		}
	}
}

func (r *Renderer) drawEntity(e *client.MirrorEntity, own bool) {
	color := EntityColor(e.ID)
	w, h := r.camera.Cells(e.Size)
	half := mgl32.Vec2{e.Size / 2, e.Size / 2}
	sx, sy, _ := r.camera.WorldToScreen(e.Pos.Sub(half))

	glyph := '█'
	if w == 1 && h == 1 {
		glyph = '•'
	}
	style := tcell.StyleDefault.Foreground(color).Background(Background)
	if own {
		style = style.Bold(true)
	}
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			r.setCell(sx+dx, sy+dy, glyph, style)
		}
	}

	if e.Name != "" {
		label := runewidth.Truncate(e.Name, maxNameWidth, "…")
		r.drawText(sx+w+1, sy-1, label, style)
	}
}

func (r *Renderer) drawBursts() {
	r.bursts.each(func(p *particle) {
		sx, sy, ok := r.camera.WorldToScreen(p.pos)
		if !ok {
			return
		}
		r.setCell(sx, sy, '·', tcell.StyleDefault.Foreground(p.color).Background(Background))
	})
}

// setCell draws one cell if it lies inside the viewport.
func (r *Renderer) setCell(x, y int, ch rune, style tcell.Style) {
	if x < 0 || x >= r.camera.ViewWidth || y < 0 || y >= r.camera.ViewHeight {
		return
	}
	r.screen.SetContent(x, y, ch, nil, style)
}
