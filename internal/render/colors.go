package render

import (
	"github.com/gdamore/tcell/v2"

	"netgame/internal/ecs"
)

// Palette is the set of colors entities and burst particles are drawn in.
// Background blue is left out so nothing disappears into it.
var Palette = []tcell.Color{
	tcell.NewRGBColor(253, 249, 0),
	tcell.NewRGBColor(255, 203, 0),
	tcell.NewRGBColor(255, 161, 0),
	tcell.NewRGBColor(255, 109, 194),
	tcell.NewRGBColor(230, 41, 55),
	tcell.NewRGBColor(190, 33, 55),
	tcell.NewRGBColor(0, 228, 48),
	tcell.NewRGBColor(0, 158, 47),
	tcell.NewRGBColor(0, 117, 44),
	tcell.NewRGBColor(102, 191, 255),
	tcell.NewRGBColor(0, 121, 241),
	tcell.NewRGBColor(200, 122, 255),
	tcell.NewRGBColor(135, 60, 190),
	tcell.NewRGBColor(112, 31, 126),
	tcell.NewRGBColor(211, 176, 131),
	tcell.NewRGBColor(127, 106, 79),
	tcell.NewRGBColor(76, 63, 47),
}

// Background fills the play field.
var Background = tcell.NewRGBColor(0, 82, 172)

// EntityColor picks a stable color for an id.
func EntityColor(id ecs.EntityID) tcell.Color {
	return Palette[uint32(id)%uint32(len(Palette))]
}
