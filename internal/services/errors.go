package services

import "errors"

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrViewerNotFound   = errors.New("viewer not found")
	ErrSnippetNotFound  = errors.New("context snippet not found")
	ErrEmptySnippet     = errors.New("context snippet is empty")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrUnknownAgent     = errors.New("unknown agent")
)
