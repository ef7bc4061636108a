// Package memory is an in-process store. Transactions are serialized by a
// single lock, so they never conflict.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/utafrali/mobileshop/internal/store"
)

type record struct {
	value   json.RawMessage
	version int64
}

// Store keeps every entry in a map.
type Store struct {
	mu   sync.Mutex
	data map[string]record
	hub  *store.Hub
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string]record), hub: store.NewHub()}
}

// Read returns the entry at path.
func (s *Store) Read(ctx context.Context, path string) (*store.Entry, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{s: s}).Read(ctx, path)
}

// List returns the entries below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	if err := store.ValidatePath(prefix); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{s: s}).List(ctx, prefix)
}

// Write replaces the document at path.
func (s *Store) Write(ctx context.Context, path string, value any) error {
	return s.Update(ctx, func(ctx context.Context, t store.Tx) error {
		return t.Write(ctx, path, value)
	})
}

// Patch merges fields into the document at path.
func (s *Store) Patch(ctx context.Context, path string, fields map[string]any) error {
	return s.Update(ctx, func(ctx context.Context, t store.Tx) error {
		return t.Patch(ctx, path, fields)
	})
}

// Delete removes the entry at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Update(ctx, func(ctx context.Context, t store.Tx) error {
		return t.Delete(ctx, path)
	})
}

// Update runs fn under the store lock and applies its writes when it
// returns nil.
func (s *Store) Update(ctx context.Context, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	changes, err := s.apply(ctx, fn)
	if err != nil {
		return err
	}
	s.hub.Publish(changes...)
	return nil
}

// apply holds the lock only while fn runs and its writes commit; the lock
// is released even if fn panics.
func (s *Store) apply(ctx context.Context, fn store.TxFunc) ([]store.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s, pending: make(map[string]*pendingOp)}
	if err := fn(ctx, t); err != nil {
		return nil, err
	}
	return t.commit(), nil
}

// Subscribe registers onChange for changes at or below path.
func (s *Store) Subscribe(ctx context.Context, path string, onChange func(store.Change)) (func(), error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, path, onChange), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// pendingOp is a buffered write. A nil value marks a delete.
type pendingOp struct {
	op    store.Op
	value json.RawMessage
}

// tx reads through its pending writes to the committed map. The caller holds
// the store lock.
type tx struct {
	s       *Store
	pending map[string]*pendingOp
	order   []string
}

func (t *tx) lookup(path string) (json.RawMessage, bool) {
	if p, ok := t.pending[path]; ok {
		return p.value, p.value != nil
	}
	r, ok := t.s.data[path]
	return r.value, ok
}

func (t *tx) Read(_ context.Context, path string) (*store.Entry, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	value, ok := t.lookup(path)
	if !ok {
		return nil, store.NotFound(path)
	}
	return &store.Entry{Path: path, Value: clone(value), Version: t.version(path)}, nil
}

// version is the committed version, plus one when the tx has rewritten path.
func (t *tx) version(path string) int64 {
	v := t.s.data[path].version
	if p, ok := t.pending[path]; ok && p.value != nil {
		v++
	}
	return v
}

func (t *tx) List(_ context.Context, prefix string) ([]store.Entry, error) {
	if err := store.ValidatePath(prefix); err != nil {
		return nil, err
	}
	under := prefix + "/"
	seen := make(map[string]bool)
	var out []store.Entry
	add := func(path string) {
		if seen[path] || !strings.HasPrefix(path, under) {
			return
		}
		seen[path] = true
		if value, ok := t.lookup(path); ok {
			out = append(out, store.Entry{Path: path, Value: clone(value), Version: t.version(path)})
		}
	}
	for path := range t.pending {
		add(path)
	}
	for path := range t.s.data {
		add(path)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (t *tx) stage(path string, op store.Op, value json.RawMessage) {
	if _, ok := t.pending[path]; !ok {
		t.order = append(t.order, path)
	}
	t.pending[path] = &pendingOp{op: op, value: value}
}

func (t *tx) Write(_ context.Context, path string, value any) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	data, err := store.Encode(value)
	if err != nil {
		return err
	}
	t.stage(path, store.OpSet, data)
	return nil
}

func (t *tx) Patch(_ context.Context, path string, fields map[string]any) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	current, ok := t.lookup(path)
	if !ok {
		return store.NotFound(path)
	}
	merged, err := store.Merge(current, fields)
	if err != nil {
		return err
	}
	op := store.OpPatch
	if p, ok := t.pending[path]; ok && p.op == store.OpSet {
		op = store.OpSet
	}
	t.stage(path, op, merged)
	return nil
}

func (t *tx) Delete(_ context.Context, path string) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	if _, ok := t.lookup(path); !ok {
		return nil
	}
	t.stage(path, store.OpDelete, nil)
	return nil
}

// commit applies pending writes in first-touch order and returns the
// resulting changes.
func (t *tx) commit() []store.Change {
	changes := make([]store.Change, 0, len(t.order))
	for _, path := range t.order {
		p, ok := t.pending[path]
		if !ok {
			continue
		}
		if p.value == nil {
			if _, existed := t.s.data[path]; !existed {
				continue
			}
			delete(t.s.data, path)
			changes = append(changes, store.Change{Path: path, Op: store.OpDelete})
			continue
		}
		r := record{value: p.value, version: t.s.data[path].version + 1}
		t.s.data[path] = r
		changes = append(changes, store.Change{Path: path, Op: p.op, Value: clone(p.value), Version: r.version})
	}
	return changes
}

func clone(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
