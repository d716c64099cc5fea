// Package room is the shared-state collaborator: one canonical document,
// merge-style updates, and change broadcasts to every subscriber.
//
// Modify runs a check and its write as one transition, so a patch is always
// computed against the state it lands on. Update applies a fixed patch;
// concurrent patches to the same key are last-write-wins.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ninechan-dev/ninechan/shared/domain"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

// Persister stores the canonical document. Save is called under the room
// lock before the new state becomes visible; an error aborts the update.
type Persister interface {
	Load(ctx context.Context) (doc map[string]any, version int64, err error)
	Save(ctx context.Context, doc map[string]any, version int64) error
}

// Snapshot is an immutable view of one document version.
// Callers must not mutate Raw or anything reachable from Doc.
type Snapshot struct {
	Raw       map[string]any
	Doc       domain.Document
	HasBoards bool
	Version   int64
	UpdatedAt time.Time
}

// StateListener must not call Update synchronously.
type StateListener func(Snapshot)

type Room struct {
	persister Persister
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	doc      map[string]any
	version  int64
	snapshot Snapshot
	order    map[string]uint64
	seq      uint64

	// notifyMu keeps broadcasts in version order.
	notifyMu sync.Mutex

	subsMu    sync.RWMutex
	stateSubs map[int]StateListener
	presSubs  map[int]PresenceListener
	nextSub   int

	peersMu sync.RWMutex
	peers   map[domain.ClientId]domain.Identity
}

type Option func(*Room)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Room) { r.now = now }
}

// New creates an empty room. A nil persister keeps state in memory only.
func New(p Persister, opts ...Option) *Room {
	if p == nil {
		p = Memory{}
	}
	r := &Room{
		persister: p,
		log:       logger.Component("room"),
		now:       time.Now,
		doc:       map[string]any{},
		order:     map[string]uint64{},
		stateSubs: map[int]StateListener{},
		presSubs:  map[int]PresenceListener{},
		peers:     map[domain.ClientId]domain.Identity{},
	}
	for _, o := range opts {
		o(r)
	}
	r.snapshot = r.buildSnapshot()
	return r
}

// Load replaces the in-memory document with the persisted one.
func (r *Room) Load(ctx context.Context) error {
	doc, version, err := r.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load room state: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	r.mu.Lock()
	r.doc = doc
	r.version = version
	r.trackOrder()
	r.snapshot = r.buildSnapshot()
	r.mu.Unlock()

	roomVersion.Set(float64(version))
	r.log.Info("room state loaded", "version", version)
	return nil
}

// Snapshot returns the current document version.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// Update deep-merges patch into the canonical document, persists it and
// broadcasts the result to all state subscribers, the writer included.
// On error the canonical document is unchanged.
func (r *Room) Update(ctx context.Context, patch map[string]any) error {
	if patch == nil {
		patch = map[string]any{}
	}
	return r.Modify(ctx, func(Snapshot) (map[string]any, error) { return patch, nil })
}

// Modify calls fn with the current snapshot under the room lock and applies
// the patch it returns like Update. A nil patch writes nothing; an error
// from fn is returned as is. fn must not call back into the room.
func (r *Room) Modify(ctx context.Context, fn func(Snapshot) (map[string]any, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	patch, err := fn(r.snapshot)
	if err != nil || patch == nil {
		r.mu.Unlock()
		return err
	}
	next := deepCopy(r.doc)
	deepMerge(next, patch)
	nextVersion := r.version + 1

	if err := r.persister.Save(ctx, next, nextVersion); err != nil {
		r.mu.Unlock()
		roomUpdates.WithLabelValues("error").Inc()
		return fmt.Errorf("persist room state: %w", err)
	}

	r.doc = next
	r.version = nextVersion
	r.trackOrder()
	r.snapshot = r.buildSnapshot()
	snap := r.snapshot

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	roomUpdates.WithLabelValues("ok").Inc()
	roomVersion.Set(float64(snap.Version))
	r.broadcastState(snap)
	return nil
}

// Apply installs a document written by another instance sharing the same
// persister. Versions older than the current one are ignored.
func (r *Room) Apply(doc map[string]any, version int64) bool {
	r.mu.Lock()
	if version < r.version {
		r.mu.Unlock()
		return false
	}
	r.doc = deepCopy(doc)
	r.version = version
	r.trackOrder()
	r.snapshot = r.buildSnapshot()
	snap := r.snapshot

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	roomUpdates.WithLabelValues("remote").Inc()
	roomVersion.Set(float64(snap.Version))
	r.broadcastState(snap)
	return true
}

// SubscribeState registers fn for every accepted document change.
func (r *Room) SubscribeState(fn StateListener) (unsubscribe func()) {
	r.subsMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.stateSubs[id] = fn
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.stateSubs, id)
		r.subsMu.Unlock()
	}
}

func (r *Room) broadcastState(snap Snapshot) {
	r.subsMu.RLock()
	subs := make([]StateListener, 0, len(r.stateSubs))
	for _, fn := range r.stateSubs {
		subs = append(subs, fn)
	}
	r.subsMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// trackOrder assigns insertion sequence numbers to threads and replies seen
// for the first time. Keys present at load time are numbered by id.
// Caller holds r.mu.
func (r *Room) trackOrder() {
	boards, _ := r.doc["boards"].(map[string]any)
	seen := make(map[string]uint64, len(r.order))

	for _, board := range sortedKeys(boards) {
		threads, _ := boards[board].(map[string]any)
		for _, tid := range sortedKeys(threads) {
			tkey := board + "/" + tid
			seen[tkey] = r.orderOf(tkey)

			thread, _ := threads[tid].(map[string]any)
			replies, _ := thread["replies"].(map[string]any)
			for _, rid := range sortedKeys(replies) {
				rkey := tkey + "/" + rid
				seen[rkey] = r.orderOf(rkey)
			}
		}
	}
	r.order = seen
}

func (r *Room) orderOf(key string) uint64 {
	if o, ok := r.order[key]; ok {
		return o
	}
	r.seq++
	return r.seq
}

// buildSnapshot decodes the raw document. Thread entries that do not decode
// (legacy shapes awaiting migration) are left out of Doc but kept in Raw.
// Caller holds r.mu.
func (r *Room) buildSnapshot() Snapshot {
	snap := Snapshot{
		Raw:       r.doc,
		Doc:       domain.Document{Boards: map[domain.BoardName]domain.BoardThreads{}},
		Version:   r.version,
		UpdatedAt: r.now(),
	}

	rawBoards, ok := r.doc["boards"].(map[string]any)
	snap.HasBoards = ok
	for board, v := range rawBoards {
		rawThreads, ok := v.(map[string]any)
		if !ok {
			continue
		}
		threads := make(domain.BoardThreads, len(rawThreads))
		for tid, rt := range rawThreads {
			t, err := domain.DecodeThread(rt)
			if err != nil {
				r.log.Debug("skipping undecodable thread", "board", board, "thread", tid, "error", err)
				continue
			}
			tkey := board + "/" + tid
			t.Order = r.order[tkey]
			for rid, reply := range t.Replies {
				if reply != nil {
					reply.Order = r.order[tkey+"/"+rid]
				}
			}
			threads[tid] = t
		}
		snap.Doc.Boards[board] = threads
	}
	return snap
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Memory is the no-op persister.
type Memory struct{}

func (Memory) Load(context.Context) (map[string]any, int64, error) { return map[string]any{}, 0, nil }
func (Memory) Save(context.Context, map[string]any, int64) error { return nil }
