package vectorindex

import "errors"

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMisaligned        = errors.New("index artifacts are not aligned")
	ErrEmpty             = errors.New("no vectors to index")
)
