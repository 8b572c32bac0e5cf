package core

import (
	"context"
	"errors"

	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/models"
)

// ErrPageOutOfRange is returned for page numbers outside 1..PageCount.
var ErrPageOutOfRange = errors.New("page out of range")

// PageDocument is a stored document readable one page at a time.
// Page numbers are 1-based.
type PageDocument interface {
	selection.PageRenderer
	PageCount(ctx context.Context) (int, error)
}

// PageSource opens stored documents for page-level text access.
type PageSource interface {
	Open(doc *models.Document) PageDocument
}
