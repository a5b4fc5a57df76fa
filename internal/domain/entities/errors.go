package entities

import (
	"errors"
	"fmt"
)

// ErrIndexNotReady is returned by searches before the first successful index build.
var ErrIndexNotReady = errors.New("retrieval index not built")

// DataLoadError reports a missing, malformed or incomplete ledger file.
type DataLoadError struct {
	Path string
	Err  error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("loading ledger %q: %v", e.Path, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// RetrievalIndexError reports an embedding or index construction failure.
type RetrievalIndexError struct {
	Op  string // "embed" or "store"
	Err error
}

func (e *RetrievalIndexError) Error() string {
	return fmt.Sprintf("building retrieval index (%s): %v", e.Op, e.Err)
}

func (e *RetrievalIndexError) Unwrap() error { return e.Err }

// QueryError reports a failure while answering a single question.
type QueryError struct {
	Stage string // "retrieve" or "generate"
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("answering question (%s): %v", e.Stage, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
