// Package pagetext reads the text of stored documents one page at a time.
//
// PDFs are parsed with tabula and keep their real pagination. Every other
// content type goes through docconv and is exposed as a single page.
package pagetext

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/markdave123-py/Excerpta/internal/core"
	objectclient "github.com/markdave123-py/Excerpta/internal/core/object-client"
	"github.com/markdave123-py/Excerpta/internal/models"
)

var _ core.PageSource = (*Source)(nil)

// Source opens documents kept in object storage.
//
// obj:    object storage holding the uploaded bytes.
// tmpDir: where PDFs are spooled for parsing ("" = os.TempDir()).
// group:  coalesces identical concurrent page lookups.
type Source struct {
	obj    core.ObjectClient
	tmpDir string
	group  singleflight.Group
}

func NewSource(obj core.ObjectClient, tmpDir string) *Source {
	return &Source{obj: obj, tmpDir: tmpDir}
}

// Open binds a document. It does no I/O; bytes are fetched on first use.
func (s *Source) Open(doc *models.Document) core.PageDocument {
	if doc.IsPDF() {
		return &pdfDocument{src: s, doc: doc}
	}
	return &convertedDocument{src: s, doc: doc}
}

// fetch downloads the document body.
func (s *Source) fetch(ctx context.Context, doc *models.Document) ([]byte, error) {
	bucket, key := objectclient.ParseS3URL(doc.StorageURL)
	data, err := s.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", doc.ID, err)
	}
	return data, nil
}

// spool writes the document to a temp file with the given extension and
// returns its path and a cleanup func.
func (s *Source) spool(ctx context.Context, doc *models.Document, ext string) (string, func(), error) {
	data, err := s.fetch(ctx, doc)
	if err != nil {
		return "", func() {}, err
	}
	f, err := os.CreateTemp(s.tmpDir, "excerpta-*"+ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("spool document %s: %w", doc.ID, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("spool document %s: %w", doc.ID, err)
	}
	return f.Name(), cleanup, nil
}
