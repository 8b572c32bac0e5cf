package pagetext

import (
	"context"
	"fmt"

	"github.com/tsawler/tabula"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/models"
)

type pdfDocument struct {
	src *Source
	doc *models.Document
}

func (d *pdfDocument) PageCount(ctx context.Context) (int, error) {
	v, err, _ := d.src.group.Do(d.doc.ID+"#count", func() (any, error) {
		path, cleanup, err := d.src.spool(ctx, d.doc, ".pdf")
		if err != nil {
			return 0, err
		}
		defer cleanup()

		ext := tabula.Open(path)
		defer ext.Close()
		n, err := ext.PageCount()
		if err != nil {
			return 0, fmt.Errorf("count pages of %s: %w", d.doc.ID, err)
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (d *pdfDocument) PageText(ctx context.Context, pageNumber int) ([]selection.TextFragment, error) {
	if pageNumber < 1 {
		return nil, core.ErrPageOutOfRange
	}
	key := fmt.Sprintf("%s#%d", d.doc.ID, pageNumber)
	v, err, _ := d.src.group.Do(key, func() (any, error) {
		return d.pageText(ctx, pageNumber)
	})
	if err != nil {
		return nil, err
	}
	return v.([]selection.TextFragment), nil
}

func (d *pdfDocument) pageText(ctx context.Context, pageNumber int) ([]selection.TextFragment, error) {
	path, cleanup, err := d.src.spool(ctx, d.doc, ".pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := tabula.Open(path)
	count, err := ext.PageCount()
	if err != nil {
		_ = ext.Close()
		return nil, fmt.Errorf("count pages of %s: %w", d.doc.ID, err)
	}
	if pageNumber > count {
		_ = ext.Close()
		return nil, fmt.Errorf("page %d of %d: %w", pageNumber, count, core.ErrPageOutOfRange)
	}

	// Fragments is terminal and closes the shared reader.
	frags, _, err := ext.Pages(pageNumber).Fragments()
	if err != nil {
		return nil, fmt.Errorf("page %d of %s: %w", pageNumber, d.doc.ID, err)
	}

	out := make([]selection.TextFragment, 0, len(frags))
	for _, f := range frags {
		out = append(out, selection.TextFragment{
			Text:   f.Text,
			X:      f.X,
			Y:      f.Y,
			Width:  f.Width,
			Height: f.Height,
		})
	}
	return out, nil
}
