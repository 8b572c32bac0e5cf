package pagetext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/models"
)

// convertedDocument serves non-PDF uploads through docconv as one page.
type convertedDocument struct {
	src *Source
	doc *models.Document
}

func (d *convertedDocument) PageCount(context.Context) (int, error) {
	return 1, nil
}

func (d *convertedDocument) PageText(ctx context.Context, pageNumber int) ([]selection.TextFragment, error) {
	if pageNumber != 1 {
		return nil, fmt.Errorf("page %d of 1: %w", pageNumber, core.ErrPageOutOfRange)
	}
	v, err, _ := d.src.group.Do(d.doc.ID+"#1", func() (any, error) {
		data, err := d.src.fetch(ctx, d.doc)
		if err != nil {
			return nil, err
		}
		return convertLines(data, d.doc.ContentType)
	})
	if err != nil {
		return nil, err
	}
	return v.([]selection.TextFragment), nil
}

// convertLines runs docconv and returns each non-empty line as a fragment.
func convertLines(data []byte, contentType string) ([]selection.TextFragment, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return nil, fmt.Errorf("docconv: extraction failed for content type '%s': %w", contentType, err)
	}

	var out []selection.TextFragment
	for _, line := range strings.Split(res.Body, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		out = append(out, selection.TextFragment{Text: line})
	}
	return out, nil
}
