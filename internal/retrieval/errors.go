package retrieval

import "errors"

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrNotFound   = errors.New("paper not found in index")
)
