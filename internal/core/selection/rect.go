package selection

import (
	"fmt"
	"math"
	"strings"
)

// Mode governs whether a pointer-down starts an area gesture.
type Mode int

const (
	// ModeText leaves pointer-downs to native text selection unless the
	// activation modifier (Ctrl/Cmd) is held.
	ModeText Mode = iota
	// ModeArea starts an area gesture on every qualifying pointer-down.
	ModeArea
)

func (m Mode) String() string {
	switch m {
	case ModeArea:
		return "area"
	default:
		return "text"
	}
}

// ParseMode maps "text" / "area" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ModeText, nil
	case "area":
		return ModeArea, nil
	}
	return ModeText, fmt.Errorf("unknown selection mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Point is a pointer position relative to the viewer container.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pointer describes a pointer-down event.
//
// Modifier:    Ctrl/Cmd held.
// OnTextLayer: the event target sits inside the page's selectable text layer.
type Pointer struct {
	Point
	Modifier    bool `json:"modifier"`
	OnTextLayer bool `json:"on_text_layer"`
}

// Rect is the rectangle swept by one gesture.
type Rect struct {
	StartX     float64 `json:"start_x"`
	StartY     float64 `json:"start_y"`
	EndX       float64 `json:"end_x"`
	EndY       float64 `json:"end_y"`
	PageNumber int     `json:"page_number"`
}

func (r Rect) Width() float64  { return math.Abs(r.EndX - r.StartX) }
func (r Rect) Height() float64 { return math.Abs(r.EndY - r.StartY) }
func (r Rect) Area() float64   { return r.Width() * r.Height() }

// Bounds returns the normalized top-left corner and size, whichever way the
// pointer was dragged.
func (r Rect) Bounds() (left, top, width, height float64) {
	return math.Min(r.StartX, r.EndX), math.Min(r.StartY, r.EndY), r.Width(), r.Height()
}

// Box is the rectangle as the client draws it.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Box() Box {
	left, top, w, h := r.Bounds()
	return Box{Left: left, Top: top, Width: w, Height: h}
}
