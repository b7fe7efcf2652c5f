package pipeline

import "errors"

var (
	// ErrFatalConnectivity aborts a run: the source, store or embedder was unreachable at start.
	ErrFatalConnectivity = errors.New("fatal connectivity error")
	// ErrNotFound means the entity is absent or not visible.
	ErrNotFound = errors.New("entity not found")
	// ErrIndexMissing is returned by the single-entity path when no full run created the collection yet.
	ErrIndexMissing = errors.New("index missing")
	ErrRejected     = errors.New("record rejected")
	ErrEmbedding    = errors.New("embedding failed")
	ErrStoreWrite   = errors.New("store write failed")
)
