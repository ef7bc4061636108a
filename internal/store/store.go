// Package store defines the hierarchical key-value store the shop keeps its
// state in. Paths are slash-separated keys such as users/u1/cart/p1; every
// entry holds a JSON document and a version that increases on each write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// Op is the kind of a change.
type Op string

// Change kinds.
const (
	OpSet    Op = "set"
	OpPatch  Op = "patch"
	OpDelete Op = "delete"
)

// Entry is a stored document.
type Entry struct {
	Path    string          `json:"path"`
	Value   json.RawMessage `json:"value"`
	Version int64           `json:"version"`
}

// Change describes a committed mutation. Value is the document after the
// change and is empty for deletes.
type Change struct {
	Path    string          `json:"path"`
	Op      Op              `json:"op"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version int64           `json:"version"`
}

// Reader reads entries.
type Reader interface {
	// Read returns the entry at path or an error wrapping
	// apperrors.ErrNotFound.
	Read(ctx context.Context, path string) (*Entry, error)
	// List returns every entry strictly below prefix, sorted by path.
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// Writer mutates entries.
type Writer interface {
	// Write replaces the document at path with value encoded as JSON.
	Write(ctx context.Context, path string, value any) error
	// Patch merges fields into the top level of the object at path. A
	// missing path is not found.
	Patch(ctx context.Context, path string, fields map[string]any) error
	// Delete removes the entry at path. Deleting a missing path succeeds.
	Delete(ctx context.Context, path string) error
}

// Tx is a read-modify-write transaction. Reads observe the transaction's own
// pending writes.
type Tx interface {
	Reader
	Writer
}

// TxFunc is the body of a transaction. It may run more than once and must not
// call the Store it runs on.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the full store contract.
type Store interface {
	Reader
	Writer
	// Update runs fn atomically. Conflicting commits are retried; when
	// retries run out the error wraps apperrors.ErrConflict.
	Update(ctx context.Context, fn TxFunc) error
	// Subscribe calls onChange for every committed change at or below path
	// until the returned function is called or ctx ends.
	Subscribe(ctx context.Context, path string, onChange func(Change)) (func(), error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultMaxRetries bounds transaction retries when a backend is not told
// otherwise.
const DefaultMaxRetries = 10

var txRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mobileshop_store_tx_retries_total",
		Help: "Store transactions retried after a conflicting commit",
	},
	[]string{"backend"},
)

// ObserveRetry counts one retried transaction for backend.
func ObserveRetry(backend string) {
	txRetries.WithLabelValues(backend).Inc()
}

// ErrRetriesExhausted returns the conflict error for a transaction that kept
// losing to concurrent commits.
func ErrRetriesExhausted(attempts int) error {
	return apperrors.Conflict(fmt.Sprintf("transaction aborted after %d conflicting attempts", attempts))
}

// NotFound returns the error for a missing path.
func NotFound(path string) error {
	return apperrors.NotFound("entry", path)
}

// IsNotFound reports whether err means the path is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// Decode unmarshals the entry's document.
func Decode[T any](e *Entry) (T, error) {
	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", e.Path, err)
	}
	return v, nil
}

// Encode marshals a document for storage.
func Encode(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("encode: invalid raw JSON")
		}
		return append(json.RawMessage(nil), raw...), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}

// Merge applies fields to the top level of the JSON object doc.
func Merge(doc json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("patch target is not an object: %w", err)
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}

// Covers reports whether a change at changed is visible to a subscriber of
// path, that is changed equals path or lies below it.
func Covers(path, changed string) bool {
	return changed == path || strings.HasPrefix(changed, path+"/")
}

// Ancestors returns the proper ancestors of path, nearest last:
// "a/b/c" gives ["a", "a/b"].
func Ancestors(path string) []string {
	var out []string
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return out
}
