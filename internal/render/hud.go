package render

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"netgame/internal/protocol"
)

// HUD is everything shown below the play field.
type HUD struct {
	Title     string
	Status    string
	ShowStats bool
	Stats     protocol.NetStats
	Messages  []string
}

// StatsLine formats traffic stats the way the HUD shows them.
func StatsLine(st protocol.NetStats) string {
	return fmt.Sprintf("accepted %d%%  up %d kbps  down %d kbps",
		int(100*st.AcceptedRatio),
		int(st.BytesOutPerSec/1024),
		int(st.BytesInPerSec/1024))
}

// DrawHUD renders the status bar and message log at the bottom of the screen
// and shows the frame.
func (r *Renderer) DrawHUD(h HUD) {
	screenW, screenH := r.screen.Size()
	hudY := screenH - HUDRows

	r.drawHLine(hudY, tcell.ColorGray)

	status := h.Title
	if h.Status != "" {
		if status != "" {
			status += "  "
		}
		status += h.Status
	}
	r.drawText(0, hudY+1, runewidth.Truncate(status, screenW, "…"), tcell.StyleDefault.Foreground(tcell.ColorWhite))

	line := "F3: stats"
	if h.ShowStats {
		line = StatsLine(h.Stats)
	}
	r.drawText(0, hudY+2, line, tcell.StyleDefault.Foreground(tcell.ColorSilver))

	// Message log (last 2 messages).
	start := max(len(h.Messages)-2, 0)
	for i, msg := range h.Messages[start:] {
		r.drawText(0, hudY+3+i, runewidth.Truncate(msg, screenW, "…"), tcell.StyleDefault.Foreground(tcell.ColorLightYellow))
	}

	r.screen.Show()
}

func (r *Renderer) drawHLine(y int, color tcell.Color) {
	w, _ := r.screen.Size()
	style := tcell.StyleDefault.Foreground(color)
	for x := 0; x < w; x++ {
		r.screen.SetContent(x, y, '─', nil, style)
	}
}

// drawText writes text starting at column x, advancing by each rune's
// display width.
func (r *Renderer) drawText(x, y int, text string, style tcell.Style) {
	col := x
	for _, ch := range text {
		r.screen.SetContent(col, y, ch, nil, style)
		col += max(runewidth.RuneWidth(ch), 1)
	}
}
