package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ninechan-dev/ninechan/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockPersister struct {
	loadFunc func(ctx context.Context) (map[string]any, int64, error)
	saveFunc func(ctx context.Context, doc map[string]any, version int64) error

	mu        sync.Mutex
	saveCalls int
	lastSaved map[string]any
}

func (m *mockPersister) Load(ctx context.Context) (map[string]any, int64, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx)
	}
	return map[string]any{}, 0, nil
}

func (m *mockPersister) Save(ctx context.Context, doc map[string]any, version int64) error {
	m.mu.Lock()
	m.saveCalls++
	m.lastSaved = doc
	m.mu.Unlock()
	if m.saveFunc != nil {
		return m.saveFunc(ctx, doc, version)
	}
	return nil
}

// --- Helpers ---

func threadRaw(id, ts string) map[string]any {
	return map[string]any{"id": id, "comment": id, "timestamp": ts, "replies": map[string]any{}}
}

// --- Tests ---

func TestUpdateBroadcastsToWriterAndOthers(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	var got []int64
	unsubscribe := r.SubscribeState(func(s Snapshot) { got = append(got, s.Version) })
	var other int
	r.SubscribeState(func(s Snapshot) { other++ })

	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{}}))
	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"random": map[string]any{}}}))

	assert.Equal(t, []int64{1, 2}, got)
	assert.Equal(t, 2, other)

	unsubscribe()
	require.NoError(t, r.Update(ctx, map[string]any{"x": 1}))
	assert.Len(t, got, 2, "unsubscribed listener must not fire")
	assert.Equal(t, 3, other)
}

func TestUpdatePersistFailureLeavesDocumentUntouched(t *testing.T) {
	p := &mockPersister{saveFunc: func(context.Context, map[string]any, int64) error {
		return errors.New("disk full")
	}}
	r := New(p)

	notified := false
	r.SubscribeState(func(Snapshot) { notified = true })

	err := r.Update(context.Background(), map[string]any{"boards": map[string]any{}})
	require.Error(t, err)

	snap := r.Snapshot()
	assert.False(t, snap.HasBoards)
	assert.Equal(t, int64(0), snap.Version)
	assert.False(t, notified)
}

func TestUpdateCancelledContext(t *testing.T) {
	p := &mockPersister{}
	r := New(p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.Update(ctx, map[string]any{"a": 1}), context.Canceled)
	assert.Equal(t, 0, p.saveCalls)
}

func TestSnapshotDecodesTypedDocument(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{
		"random": map[string]any{
			"T1":     threadRaw("T1", "2024-01-01T00:00:00Z"),
			"legacy": map[string]any{"id": "legacy", "replies": []any{map[string]any{"id": "r"}}},
		},
	}}))

	snap := r.Snapshot()
	assert.True(t, snap.HasBoards)
	assert.True(t, snap.Doc.HasBoard("random"))
	thread, ok := snap.Doc.Thread("random", "T1")
	require.True(t, ok)
	assert.Equal(t, "T1", thread.Comment)
	assert.NotNil(t, thread.Replies)

	_, ok = snap.Doc.Thread("random", "legacy")
	assert.False(t, ok, "legacy reply arrays are not decoded")
	assert.Contains(t, snap.Raw["boards"].(map[string]any)["random"], "legacy")
}

func TestSnapshotIsNotMutatedByLaterUpdates(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"random": map[string]any{}}}))
	before := r.Snapshot()

	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"random": map[string]any{
		"T1": threadRaw("T1", "2024-01-01T00:00:00Z"),
	}}}))

	assert.Empty(t, before.Raw["boards"].(map[string]any)["random"])
	assert.Empty(t, before.Doc.Boards["random"])
}

func TestInsertionOrderBreaksTimestampTies(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	ts := "2024-01-01T00:00:00Z"

	// "b" is written before "a"; equal timestamps must keep that order.
	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"random": map[string]any{"b": threadRaw("b", ts)}}}))
	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"random": map[string]any{"a": threadRaw("a", ts)}}}))
	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"random": map[string]any{"c": threadRaw("c", "2024-01-02T00:00:00Z")}}}))

	snap := r.Snapshot()
	var ids []string
	for _, th := range snap.Doc.Boards["random"].NewestFirst() {
		ids = append(ids, th.Id)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	// rendering twice yields identical ordering
	var again []string
	for _, th := range r.Snapshot().Doc.Boards["random"].NewestFirst() {
		again = append(again, th.Id)
	}
	assert.Equal(t, ids, again)
}

func TestLoad(t *testing.T) {
	p := &mockPersister{loadFunc: func(context.Context) (map[string]any, int64, error) {
		return map[string]any{"boards": map[string]any{"tech": map[string]any{}}}, 7, nil
	}}
	r := New(p)
	require.NoError(t, r.Load(context.Background()))

	snap := r.Snapshot()
	assert.Equal(t, int64(7), snap.Version)
	assert.True(t, snap.Doc.HasBoard("tech"))

	require.NoError(t, r.Update(context.Background(), map[string]any{"x": true}))
	assert.Equal(t, int64(8), r.Snapshot().Version)
}

func TestLoadError(t *testing.T) {
	p := &mockPersister{loadFunc: func(context.Context) (map[string]any, int64, error) {
		return nil, 0, errors.New("boom")
	}}
	assert.Error(t, New(p).Load(context.Background()))
}

func TestApply(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	require.NoError(t, r.Update(ctx, map[string]any{"a": 1}))
	require.NoError(t, r.Update(ctx, map[string]any{"a": 2}))

	var notified int
	r.SubscribeState(func(Snapshot) { notified++ })

	assert.False(t, r.Apply(map[string]any{"a": 0}, 1), "stale versions are ignored")
	assert.Equal(t, 2, r.Snapshot().Raw["a"])

	assert.True(t, r.Apply(map[string]any{"a": 3}, 3))
	assert.Equal(t, 3, r.Snapshot().Raw["a"])
	assert.Equal(t, 1, notified)
}

func TestPresence(t *testing.T) {
	r := New(nil)
	var calls []int
	r.SubscribePresence(func(peers map[domain.ClientId]domain.Identity) { calls = append(calls, len(peers)) })

	guest := domain.Identity{ClientId: "c1", Username: "Guest-abcd"}
	r.Join(guest)
	r.Join(guest) // no change, no broadcast
	r.Join(domain.Identity{ClientId: "c2", Username: "Guest-efgh"})

	id, ok := r.Peer("c1")
	require.True(t, ok)
	assert.Equal(t, "Guest-abcd", id.Username)

	assert.True(t, r.Replace(domain.Identity{ClientId: "c1", Username: "kozumis"}))
	id, _ = r.Peer("c1")
	assert.Equal(t, "kozumis", id.Username)

	assert.False(t, r.Replace(domain.Identity{ClientId: "no-socket", Username: "kozumis"}))
	_, ok = r.Peer("no-socket")
	assert.False(t, ok, "a client without a socket never becomes a peer")

	r.Leave("c2")
	r.Leave("nobody")

	assert.Equal(t, []int{1, 2, 2, 1}, calls)
	assert.Len(t, r.Peers(), 1)
}

func TestConcurrentUpdatesAllApplied(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"random": map[string]any{
				key: threadRaw(key, "2024-01-01T00:00:00Z"),
			}}}))
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, int64(20), snap.Version)
	assert.Len(t, snap.Doc.Boards["random"], 20, "disjoint keys merge without loss")
}

func TestSnapshotCarriesUpdateTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := New(nil, WithClock(func() time.Time { return at }))

	require.NoError(t, r.Update(context.Background(), map[string]any{"boards": map[string]any{}}))
	snap := r.Snapshot()
	assert.Equal(t, at, snap.UpdatedAt)
	assert.Equal(t, int64(1), snap.Version)
}

func TestModifySeesStateItWritesOn(t *testing.T) {
	p := &mockPersister{}
	r := New(p)
	ctx := context.Background()
	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"random": map[string]any{
		"T1": threadRaw("T1", "2024-01-01T00:00:00Z"),
	}}}))

	t.Run("nil patch writes nothing", func(t *testing.T) {
		before := r.Snapshot().Version
		require.NoError(t, r.Modify(ctx, func(Snapshot) (map[string]any, error) { return nil, nil }))
		assert.Equal(t, before, r.Snapshot().Version)
		assert.Equal(t, 1, p.saveCalls)
	})

	t.Run("error aborts", func(t *testing.T) {
		errGone := errors.New("gone")
		err := r.Modify(ctx, func(Snapshot) (map[string]any, error) { return map[string]any{"x": 1}, errGone })
		assert.ErrorIs(t, err, errGone)
		assert.NotContains(t, r.Snapshot().Raw, "x")
	})

	t.Run("check and write are one step", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, r.Modify(ctx, func(s Snapshot) (map[string]any, error) {
					if _, ok := s.Doc.Thread("random", "T1"); !ok {
						return nil, nil
					}
					mu.Lock()
					wins++
					mu.Unlock()
					return map[string]any{"boards": map[string]any{"random": map[string]any{"T1": nil}}}, nil
				}))
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins, "only one writer sees the thread")
		assert.Equal(t, 2, p.saveCalls)
	})
}
