package storage

import "errors"

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrMisaligned         = errors.New("rows and vectors are not aligned")
	ErrPaperNotFound      = errors.New("paper not found")
)
