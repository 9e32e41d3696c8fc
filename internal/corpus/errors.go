package corpus

import "errors"

var (
	ErrNotFound  = errors.New("corpus file not found")
	ErrNoPending = errors.New("no pending batches")
	ErrBadName   = errors.New("invalid batch name")
)
