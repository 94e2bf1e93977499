// Package classify turns raw pointer interactions into TouchEvent drafts:
// thumb-zone bucketing, selector-path derivation and mis-tap detection.
package classify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/touchheat/touchheat/internal/models"
)

const (
	// MisTapWindow is the maximum gap between two taps for the second to
	// count as an accidental correction of the first.
	MisTapWindow = 150 * time.Millisecond
	// MisTapRadius is the maximum distance in px between those two taps.
	MisTapRadius = 50.0

	maxSelectorDepth = 5
)

// ThumbZone classifies a horizontal coordinate into a viewport third.
// Returns ZoneUnknown only when the viewport width is missing or invalid.
func ThumbZone(x float64, viewportW int) models.ThumbZone {
	if viewportW <= 0 {
		return models.ZoneUnknown
	}
	percent := x / float64(viewportW) * 100
	switch {
	case percent < 33:
		return models.ZoneLeft
	case percent > 66:
		return models.ZoneRight
	default:
		return models.ZoneCenter
	}
}

// Element is the ancestry capability the selector walk needs. Parent
// returns nil once the walk reaches the document body (or the root).
type Element interface {
	ID() string
	Tag() string
	Classes() []string
	Parent() Element
	SiblingIndex() int // 1-based position among the parent's children
	SiblingCount() int
}

// Selector derives a short CSS-like path for el: "#id" when an identifier
// exists, otherwise up to 5 ancestor segments assembled outermost-first.
// Returns "" on a nil element or any traversal failure.
func Selector(el Element) (selector string) {
	if el == nil {
		return ""
	}
	// Malformed ancestries (cyclic parents, panicking implementations)
	// must never take the capture path down.
	defer func() {
		if recover() != nil {
			selector = ""
		}
	}()

	if id := el.ID(); id != "" {
		return "#" + id
	}

	var path []string
	for current := el; current != nil && len(path) < maxSelectorDepth; current = current.Parent() {
		segment := strings.ToLower(current.Tag())
		if classes := current.Classes(); len(classes) > 0 {
			if len(classes) > 2 {
				classes = classes[:2]
			}
			segment += "." + strings.Join(classes, ".")
		}
		if current.SiblingCount() > 1 {
			segment += fmt.Sprintf(":nth-child(%d)", current.SiblingIndex())
		}
		path = append([]string{segment}, path...)
	}
	return strings.Join(path, " > ")
}

// TapTracker is the single-slot last-tap memory used for mis-tap
// detection. One tracker per page session; zero value is ready to use.
type TapTracker struct {
	lastTime time.Time
	lastX    float64
	lastY    float64
	seen     bool
}

// MisTap reports whether the tap at (x, y) is a likely correction of the
// immediately preceding tap. The slot is overwritten on every call, so
// only one prior tap is ever considered.
func (t *TapTracker) MisTap(x, y float64, now time.Time) bool {
	misTap := false
	if t.seen && now.Sub(t.lastTime) < MisTapWindow {
		dx, dy := x-t.lastX, y-t.lastY
		if math.Sqrt(dx*dx+dy*dy) < MisTapRadius {
			misTap = true
		}
	}
	t.lastTime = now
	t.lastX, t.lastY = x, y
	t.seen = true
	return misTap
}

// Interaction is a raw tap as observed by the host page.
type Interaction struct {
	X, Y       float64
	ViewportW  int
	ViewportH  int
	Pressure   *float64 // nil when the input device reports no pressure
	Target     Element  // nil when the target could not be resolved
	URL        string
}

// Capture classifies one interaction into an unpersisted TouchEvent draft.
// Project attribution and the capture timestamp are added downstream.
func Capture(in Interaction, tracker *TapTracker, now time.Time) models.TouchEvent {
	ev := models.TouchEvent{
		X:         int(math.Round(in.X)),
		Y:         int(math.Round(in.Y)),
		ViewportW: in.ViewportW,
		ViewportH: in.ViewportH,
		ThumbZone: ThumbZone(in.X, in.ViewportW),
		MisTap:    tracker.MisTap(in.X, in.Y, now),
		URL:       in.URL,
	}
	if in.Pressure != nil {
		p := math.Round(*in.Pressure*100) / 100
		ev.Pressure = &p
	}
	if sel := Selector(in.Target); sel != "" {
		ev.Selector = &sel
	}
	return ev
}
