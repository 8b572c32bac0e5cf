package ingestion_engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Excerpta/internal/core"
)

// streamPages reads the document one page at a time and emits its text as
// fragments of at most maxLen runes, each tagged with its page number.
// Pages without text are skipped.
func (i *DocumentIngestor) streamPages(
	ctx context.Context,
	g *errgroup.Group,
	doc core.PageDocument,
	pageCount int,
	maxLen int,
) <-chan fragment {
	out := make(chan fragment, 32)

	g.Go(func() error {
		defer close(out)

		for page := 1; page <= pageCount; page++ {
			frags, err := doc.PageText(ctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			words := make([]string, 0, len(frags))
			for _, f := range frags {
				words = append(words, strings.Fields(f.Text)...)
			}
			for _, text := range splitWords(words, maxLen) {
				select {
				case out <- fragment{Page: page, Text: text}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	})

	return out
}

// splitWords packs words into space-joined runs of at most maxLen runes. A
// single word longer than maxLen becomes its own run.
func splitWords(words []string, maxLen int) []string {
	var (
		out []string
		b   strings.Builder
		n   int
	)
	for _, w := range words {
		wl := len([]rune(w))
		if n > 0 && n+1+wl > maxLen {
			out = append(out, b.String())
			b.Reset()
			n = 0
		}
		if n > 0 {
			b.WriteByte(' ')
			n++
		}
		b.WriteString(w)
		n += wl
	}
	if n > 0 {
		out = append(out, b.String())
	}
	return out
}
