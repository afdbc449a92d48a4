package store

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("document not found")

// Document is one stored record addressed by (collection, id).
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Snapshot is what subscribers receive on every change of a document path.
// Exists is false when the document has not been created yet (or the initial
// read found nothing).
type Snapshot struct {
	Document
	Exists bool
}

// Merges names the fields of an Update. A value of type ArrayUnion appends to
// an array field instead of replacing it; any other value replaces the field.
type Merges map[string]any

// ArrayUnion appends elements to an array-valued field as a single atomic
// document-level operation.
type ArrayUnion struct {
	Elems []any
}

// Append builds an ArrayUnion merge value.
func Append(elems ...any) ArrayUnion {
	return ArrayUnion{Elems: elems}
}

// Store is the document storage and change-notification collaborator. All
// mutating operations notify subscribers of the written path after the write
// commits. Subscriptions deliver notifications in arrival order per path;
// there is no ordering guarantee across paths.
type Store interface {
	// Get performs a point read. Returns ErrNotFound for a missing document.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set creates or fully overwrites a document.
	Set(ctx context.Context, collection, id string, value any) error
	// Update merges the named fields into an existing document. Returns
	// ErrNotFound when the document does not exist; callers that want
	// create-on-miss fall back to Set.
	Update(ctx context.Context, collection, id string, merges Merges) error
	// Query returns all documents of a collection whose field equals value.
	Query(ctx context.Context, collection, field, value string) ([]Document, error)
	// Subscribe registers a change listener for one document path and returns
	// a cancel function that stops delivery. The current state of the document
	// is delivered as the first snapshot.
	Subscribe(collection, id string, onChange func(Snapshot), onError func(error)) (cancel func())
}
