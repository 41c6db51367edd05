package db

import "errors"

// ErrCapacity reports that the durable store refused a write for lack of
// space. The cache layer reacts with an eviction pass and a single retry.
var ErrCapacity = errors.New("storage capacity exceeded")

// Backend is the durable namespace store shared by the local cache and the
// sync queue. Each namespace holds one JSON document with an ordered
// collection of records; writers always replace the whole document, so a
// reader never observes a partial mutation.
type Backend interface {
	// Read returns the stored document for a namespace, or (nil, nil)
	// when the namespace has never been written.
	Read(namespace string) ([]byte, error)
	// Write replaces the namespace document. Returns ErrCapacity when
	// the store is full.
	Write(namespace string, doc []byte) error
	// Namespaces lists every namespace currently stored.
	Namespaces() ([]string, error)
	Close() error
}
