// Package redis stores entries in Redis. Each entry is a string key holding
// a {version, document} envelope; every ancestor path keeps a set of the
// paths below it for listing. Transactions use WATCH/MULTI and changes are
// published on a channel per path.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/mobileshop/internal/store"
)

const backendName = "redis"

// Options configure the store.
type Options struct {
	// KeyPrefix namespaces every key and channel.
	KeyPrefix string
	// MaxRetries bounds optimistic transaction attempts.
	MaxRetries int
}

// Store is a Redis-backed store.Store.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

var _ store.Store = (*Store)(nil)

// New creates a store over client. The store owns the client and closes it.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = store.DefaultMaxRetries
	}
	return &Store{client: client, prefix: opts.KeyPrefix, maxRetries: opts.MaxRetries}
}

type envelope struct {
	Version int64           `json:"v"`
	Doc     json.RawMessage `json:"d"`
}

func (s *Store) dataKey(path string) string  { return s.prefix + "d:" + path }
func (s *Store) indexKey(path string) string { return s.prefix + "i:" + path }
func (s *Store) channel(path string) string  { return s.prefix + "c:" + path }

func decodeEnvelope(path string, raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode %s: %w", path, err)
	}
	return env, nil
}

// Read returns the entry at path.
func (s *Store) Read(ctx context.Context, path string) (*store.Entry, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.dataKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.NotFound(path)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", path, err)
	}
	env, err := decodeEnvelope(path, raw)
	if err != nil {
		return nil, err
	}
	return &store.Entry{Path: path, Value: env.Doc, Version: env.Version}, nil
}

// List returns the entries below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	if err := store.ValidatePath(prefix); err != nil {
		return nil, err
	}
	paths, err := s.client.SMembers(ctx, s.indexKey(prefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", prefix, err)
	}
	records, err := s.fetch(ctx, s.client, paths)
	if err != nil {
		return nil, err
	}
	out := make([]store.Entry, 0, len(records))
	for _, path := range paths {
		if env, ok := records[path]; ok {
			out = append(out, store.Entry{Path: path, Value: env.Doc, Version: env.Version})
		}
	}
	sortEntries(out)
	return out, nil
}

// mgetter is satisfied by both clients and *redis.Tx.
type mgetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// fetch loads paths with one MGET. Paths whose key is gone are omitted.
func (s *Store) fetch(ctx context.Context, c mgetter, paths []string) (map[string]envelope, error) {
	out := make(map[string]envelope, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = s.dataKey(p)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		env, err := decodeEnvelope(paths[i], []byte(str))
		if err != nil {
			return nil, err
		}
		out[paths[i]] = env
	}
	return out, nil
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

// Update runs fn optimistically: every key it reads is watched and the
// writes are committed with MULTI/EXEC. A concurrent change to a watched
// key aborts the commit and fn runs again.
func (s *Store) Update(ctx context.Context, fn store.TxFunc) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := newTx(s, rtx)
			if err := fn(ctx, t); err != nil {
				return err
			}
			return t.commit(ctx)
		})
		if errors.Is(err, redis.TxFailedErr) {
			store.ObserveRetry(backendName)
			continue
		}
		return err
	}
	return store.ErrRetriesExhausted(s.maxRetries)
}

// Subscribe listens on the channels of path and of every path below it.
func (s *Store) Subscribe(ctx context.Context, path string, onChange func(store.Change)) (func(), error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	ps := s.client.PSubscribe(ctx, s.channel(path), s.channel(path)+"/*")
	// Wait for both pattern confirmations so no change is missed after
	// Subscribe returns.
	for i := 0; i < 2; i++ {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("redis psubscribe %s: %w", path, err)
		}
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			var c store.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				continue
			}
			onChange(c)
		}
	}()

	var once sync.Once
	closeSub := func() { once.Do(func() { _ = ps.Close() }) }
	stop := context.AfterFunc(ctx, closeSub)
	return func() {
		stop()
		closeSub()
	}, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func sortEntries(entries []store.Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

type committed struct {
	env    envelope
	exists bool
}

type pendingOp struct {
	op    store.Op
	value json.RawMessage // nil deletes
}

type tx struct {
	s       *Store
	rtx     *redis.Tx
	seen    map[string]committed
	pending map[string]*pendingOp
	order   []string
}

func newTx(s *Store, rtx *redis.Tx) *tx {
	return &tx{
		s:       s,
		rtx:     rtx,
		seen:    make(map[string]committed),
		pending: make(map[string]*pendingOp),
	}
}

// load watches and reads the committed state of paths not read before.
func (t *tx) load(ctx context.Context, paths ...string) error {
	var missing []string
	for _, p := range paths {
		if _, ok := t.seen[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	keys := make([]string, len(missing))
	for i, p := range missing {
		keys[i] = t.s.dataKey(p)
	}
	if err := t.rtx.Watch(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis watch: %w", err)
	}
	records, err := t.s.fetch(ctx, t.rtx, missing)
	if err != nil {
		return err
	}
	for _, p := range missing {
		env, ok := records[p]
		t.seen[p] = committed{env: env, exists: ok}
	}
	return nil
}

// lookup returns the document at path as this tx sees it.
func (t *tx) lookup(ctx context.Context, path string) (json.RawMessage, int64, bool, error) {
	if err := t.load(ctx, path); err != nil {
		return nil, 0, false, err
	}
	c := t.seen[path]
	if p, ok := t.pending[path]; ok {
		if p.value == nil {
			return nil, 0, false, nil
		}
		return p.value, c.env.Version + 1, true, nil
	}
	return c.env.Doc, c.env.Version, c.exists, nil
}

func (t *tx) Read(ctx context.Context, path string) (*store.Entry, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	value, version, ok, err := t.lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.NotFound(path)
	}
	return &store.Entry{Path: path, Value: value, Version: version}, nil
}

func (t *tx) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	if err := store.ValidatePath(prefix); err != nil {
		return nil, err
	}
	idx := t.s.indexKey(prefix)
	if err := t.rtx.Watch(ctx, idx).Err(); err != nil {
		return nil, fmt.Errorf("redis watch: %w", err)
	}
	paths, err := t.rtx.SMembers(ctx, idx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", prefix, err)
	}
	under := prefix + "/"
	for p := range t.pending {
		if strings.HasPrefix(p, under) {
			paths = append(paths, p)
		}
	}
	if err := t.load(ctx, paths...); err != nil {
		return nil, err
	}

	dedup := make(map[string]bool, len(paths))
	out := make([]store.Entry, 0, len(paths))
	for _, p := range paths {
		if dedup[p] {
			continue
		}
		dedup[p] = true
		value, version, ok, err := t.lookup(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, store.Entry{Path: p, Value: value, Version: version})
		}
	}
	sortEntries(out)
	return out, nil
}

func (t *tx) stage(path string, op store.Op, value json.RawMessage) {
	if _, ok := t.pending[path]; !ok {
		t.order = append(t.order, path)
	}
	t.pending[path] = &pendingOp{op: op, value: value}
}

func (t *tx) Write(ctx context.Context, path string, value any) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	data, err := store.Encode(value)
	if err != nil {
		return err
	}
	if err := t.load(ctx, path); err != nil {
		return err
	}
	t.stage(path, store.OpSet, data)
	return nil
}

func (t *tx) Patch(ctx context.Context, path string, fields map[string]any) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	current, _, ok, err := t.lookup(ctx, path)
	if err != nil {
		return err
	}
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

func (t *tx) Delete(ctx context.Context, path string) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	_, _, ok, err := t.lookup(ctx, path)
	if err != nil {
		return err
	}
	if ok {
		t.stage(path, store.OpDelete, nil)
	}
	return nil
}

// commit queues every pending write and its change notification in one
// MULTI/EXEC block.
func (t *tx) commit(ctx context.Context) error {
	var changes []store.Change
	for _, path := range t.order {
		p := t.pending[path]
		c := t.seen[path]
		if p.value == nil {
			if c.exists {
				changes = append(changes, store.Change{Path: path, Op: store.OpDelete})
			}
			continue
		}
		changes = append(changes, store.Change{Path: path, Op: p.op, Value: p.value, Version: c.env.Version + 1})
	}
	if len(changes) == 0 {
		return nil
	}

	_, err := t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ch := range changes {
			ancestors := store.Ancestors(ch.Path)
			if ch.Op == store.OpDelete {
				pipe.Del(ctx, t.s.dataKey(ch.Path))
				for _, a := range ancestors {
					pipe.SRem(ctx, t.s.indexKey(a), ch.Path)
				}
			} else {
				data, err := json.Marshal(envelope{Version: ch.Version, Doc: ch.Value})
				if err != nil {
					return err
				}
				pipe.Set(ctx, t.s.dataKey(ch.Path), data, 0)
				for _, a := range ancestors {
					pipe.SAdd(ctx, t.s.indexKey(a), ch.Path)
				}
			}
			payload, err := json.Marshal(ch)
			if err != nil {
				return err
			}
			pipe.Publish(ctx, t.s.channel(ch.Path), payload)
		}
		return nil
	})
	return err
}
