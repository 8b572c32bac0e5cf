package selection

import (
	"context"
	"log"
	"math"
	"strings"
)

const (
	// NoTextPlaceholder is reported when the page has no text to offer.
	NoTextPlaceholder = "No text found in the selected area"
	// ErrorPlaceholder is reported when the page text could not be loaded.
	ErrorPlaceholder = "Error extracting text from the selected area"
)

// TextFragment is one run of text on a rendered page. Coordinates are
// optional; the area heuristic below only needs Text.
type TextFragment struct {
	Text   string  `json:"text"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// PageRenderer exposes the text content of one document's pages.
type PageRenderer interface {
	PageText(ctx context.Context, pageNumber int) ([]TextFragment, error)
}

// Policy sizes an extraction by rectangle area.
//
// MinChars:    lower clamp on the excerpt length.
// MaxChars:    upper clamp on the excerpt length.
// AreaPerChar: square pixels of selection worth one character.
type Policy struct {
	MinChars    int
	MaxChars    int
	AreaPerChar float64
}

// DefaultPolicy yields clamp(floor(area/100), 50, 500) characters.
var DefaultPolicy = Policy{MinChars: 50, MaxChars: 500, AreaPerChar: 100}

// Budget returns how many characters a rectangle of this size is worth.
// It is non-decreasing in r.Area().
func (p Policy) Budget(r Rect) int {
	per := p.AreaPerChar
	if per <= 0 {
		per = DefaultPolicy.AreaPerChar
	}
	n := int(math.Floor(r.Area() / per))
	if n < p.MinChars {
		n = p.MinChars
	}
	if p.MaxChars > 0 && n > p.MaxChars {
		n = p.MaxChars
	}
	return n
}

// ExtractText approximates the text under r. It does not intersect glyph
// boxes with the rectangle: it takes a prefix of the page text whose length
// is proportional to the rectangle's area. Failures become placeholders.
func (p Policy) ExtractText(ctx context.Context, renderer PageRenderer, r Rect) string {
	frags, err := renderer.PageText(ctx, r.PageNumber)
	if err != nil {
		log.Printf("selection: page %d text failed: %v", r.PageNumber, err)
		return ErrorPlaceholder
	}

	parts := make([]string, 0, len(frags))
	for _, f := range frags {
		parts = append(parts, f.Text)
	}
	// Collapse whitespace so the prefix never starts with blanks.
	all := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")

	excerpt := strings.TrimSpace(prefixRunes(all, p.Budget(r)))
	if excerpt == "" {
		return NoTextPlaceholder
	}
	return excerpt
}

// ExtractText runs DefaultPolicy.
func ExtractText(ctx context.Context, renderer PageRenderer, r Rect) string {
	return DefaultPolicy.ExtractText(ctx, renderer, r)
}

func prefixRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
