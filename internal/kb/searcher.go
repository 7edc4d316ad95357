// Package kb answers questions strictly from an internal knowledge base.
// The searcher never falls back to model world knowledge; an empty or
// missing store is a coded failure the capability reports to the user.
package kb

import (
	"context"
	"fmt"
)

// Error codes reported by searchers.
const (
	CodeEmptyQuery    = "EMPTY_QUERY"
	CodeNoVectorStore = "NO_VECTOR_STORE"
	CodeEmptyStore    = "EMPTY_STORE"
	CodeSearchFailed  = "SEARCH_FAILED"
)

// Answer is a successful knowledge-base reply.
type Answer struct {
	// ReplyMarkdown is the drafted answer with source titles woven in.
	ReplyMarkdown string

	// VectorStoreID identifies the store the answer was grounded on.
	VectorStoreID string
}

// SearchError is a coded knowledge-base failure.
type SearchError struct {
	Code string
	Hint string
	Err  error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kb search %s: %v", e.Code, e.Err)
	}
	return "kb search " + e.Code
}

func (e *SearchError) Unwrap() error { return e.Err }

// Searcher runs one grounded lookup.
type Searcher interface {
	Answer(ctx context.Context, query string) (*Answer, error)
}
