package images

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/controller"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	colorClear  = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	colorHigh   = color.RGBA{R: 230, G: 0, B: 0, A: 0}
	colorMedium = color.RGBA{R: 255, G: 140, B: 0, A: 0}
	colorLow    = color.RGBA{R: 240, G: 220, B: 0, A: 0}
	colorText   = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// SeverityColor is the box color of a subject whose worst alert has severity s.
func SeverityColor(s behavior.Severity) color.RGBA {
	switch s {
	case behavior.SeverityHigh:
		return colorHigh
	case behavior.SeverityMedium:
		return colorMedium
	case behavior.SeverityLow:
		return colorLow
	}
	return colorClear
}

func severityRank(s behavior.Severity) int {
	switch s {
	case behavior.SeverityHigh:
		return 3
	case behavior.SeverityMedium:
		return 2
	case behavior.SeverityLow:
		return 1
	}
	return 0
}

// worstSeverity maps each subject to the most severe alert attached to it.
func worstSeverity(alerts []behavior.Event) map[string]behavior.Severity {
	out := make(map[string]behavior.Severity, len(alerts))
	for _, a := range alerts {
		if severityRank(a.Severity()) > severityRank(out[a.PersonID]) {
			out[a.PersonID] = a.Severity()
		}
	}
	return out
}

// Draw renders subject boxes colored by their worst alert and a status line.
func Draw(mat *gocv.Mat, snap controller.Snapshot) {
	worst := worstSeverity(snap.Alerts)

	for _, p := range snap.Persons {
		c := SeverityColor(worst[p.ID])
		rect := p.Box.ToRect()
		gocv.Rectangle(mat, rect, c, 2)

		label := p.ID
		if p.StudentName != "" {
			label = p.StudentName
		}
		origin := image.Pt(rect.Min.X, rect.Min.Y-6)
		if origin.Y < 12 {
			origin.Y = rect.Min.Y + 14
		}
		gocv.PutText(mat, label, origin, gocv.FontHersheySimplex, 0.5, c, 1)
	}

	status := fmt.Sprintf("students %d  alerts %d  fps %d (%s)",
		snap.Stats.TotalDetected, len(snap.Alerts), snap.Stats.FPS, snap.Health)
	gocv.PutText(mat, status, image.Pt(8, 20), gocv.FontHersheySimplex, 0.5, colorText, 1)
}

// Overlay is a desktop preview window showing frames with the pipeline's state
// drawn on top.
type Overlay struct {
	window *gocv.Window
}

// NewOverlay opens a preview window.
func NewOverlay(title string) *Overlay {
	return &Overlay{window: gocv.NewWindow(title)}
}

// Show draws snap over img and displays it.
func (o *Overlay) Show(img image.Image, snap controller.Snapshot) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "convert frame")
	}
	defer mat.Close()

	Draw(&mat, snap)
	o.window.IMShow(mat)
	o.window.WaitKey(1)
	return nil
}

// Close closes the window.
func (o *Overlay) Close() error {
	return o.window.Close()
}
