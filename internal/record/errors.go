package record

import "errors"

var (
	ErrInvalidRecord = errors.New("invalid record")
	ErrMalformedLine = errors.New("malformed jsonl line")
)
