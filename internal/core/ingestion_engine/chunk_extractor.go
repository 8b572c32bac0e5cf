package ingestion_engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// streamChunk groups incoming fragments into token-bounded chunks with optional overlap.
//
// frags:          upstream fragments channel.
// targetTokens:   approximate tokens per chunk.
// overlapTokens:  tokens to retain from the end of the previous chunk as seed of the next (e.g., 50).
// out:            receive-only channel of chunks; a chunk's Page is that of its first fragment.
func (i *DocumentIngestor) streamChunk(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan fragment,
	targetTokens int,
	overlapTokens int,
) <-chan chunk {
	out := make(chan chunk, 8)

	g.Go(func() error {
		defer close(out)

		var (
			buf    []fragment
			tokSum int
			pos    int
		)

		flush := func() error {
			if tokSum == 0 {
				return nil
			}
			texts := make([]string, len(buf))
			for k, f := range buf {
				texts[k] = f.Text
			}
			ch := chunk{Pos: pos, Page: buf[0].Page, Text: strings.Join(texts, "\n"), TokenCnt: tokSum}
			pos++

			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}

			if overlapTokens <= 0 {
				buf = buf[:0]
				tokSum = 0
				return nil
			}
			// Keep a tail whose token sum is about overlapTokens.
			start := len(buf)
			for remain := overlapTokens; start > 0 && remain > 0; {
				start--
				remain -= approxTokens(buf[start].Text)
			}
			if start == 0 {
				// The tail would be the whole chunk; emitting it again adds nothing.
				start = len(buf)
			}
			buf = append([]fragment(nil), buf[start:]...)
			tokSum = 0
			for _, f := range buf {
				tokSum += approxTokens(f.Text)
			}
			return nil
		}

		emittedTail := false
		for frag := range frags {
			if err := ctx.Err(); err != nil {
				return err
			}
			buf = append(buf, frag)
			tokSum += approxTokens(frag.Text)
			emittedTail = false

			if tokSum >= targetTokens {
				if err := flush(); err != nil {
					return err
				}
				emittedTail = true
			}
		}

		// A buffer holding only the overlap of the last chunk is not new text.
		if emittedTail {
			return nil
		}
		return flush()
	})

	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
