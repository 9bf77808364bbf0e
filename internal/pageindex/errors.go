package pageindex

import "errors"

var (
	// ErrNotFound reports a page id absent from the index.
	ErrNotFound = errors.New("page not found")

	// ErrInvalidPage reports a page missing its id or title.
	ErrInvalidPage = errors.New("invalid page")
)
