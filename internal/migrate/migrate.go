// Package migrate upgrades legacy document shapes to the per-board layout.
// It runs once at startup, before anything renders.
package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/shared/domain"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

// Store is the part of the room the migration needs.
type Store interface {
	Snapshot() room.Snapshot
	Update(ctx context.Context, patch map[string]any) error
}

// Report lists which steps wrote to the document.
type Report struct {
	FoldedLegacyThreads int
	ConvertedReplies    int
	InitializedBoards   bool
}

// Changed reports whether any step wrote.
func (r Report) Changed() bool {
	return r.FoldedLegacyThreads > 0 || r.ConvertedReplies > 0 || r.InitializedBoards
}

type legacyKind int

const (
	legacyAbsent legacyKind = iota
	legacyList
	legacyMap
	legacyUnknown
)

// legacyThreads is the decoded top-level "threads" field.
type legacyThreads struct {
	kind legacyKind
	list []any
	byID map[string]any
}

func decodeLegacy(raw map[string]any) legacyThreads {
	v, ok := raw["threads"]
	if !ok || v == nil {
		return legacyThreads{kind: legacyAbsent}
	}
	switch t := v.(type) {
	case []any:
		return legacyThreads{kind: legacyList, list: t}
	case map[string]any:
		return legacyThreads{kind: legacyMap, byID: t}
	default:
		return legacyThreads{kind: legacyUnknown}
	}
}

// normalize keys every legacy thread by id. List entries without an id are dropped.
func (l legacyThreads) normalize() map[string]any {
	out := map[string]any{}
	switch l.kind {
	case legacyList:
		for _, entry := range l.list {
			t, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if id, _ := t["id"].(string); id != "" {
				out[id] = t
			}
		}
	case legacyMap:
		for id, t := range l.byID {
			out[id] = t
		}
	}
	return out
}

// Run applies the three migration steps in order. Each step that has work
// to do is one room update and observes the result of the previous step.
// Running it on an already migrated document writes nothing.
func Run(ctx context.Context, store Store, defaultBoard string) (Report, error) {
	var report Report

	n, err := foldLegacyThreads(ctx, store, defaultBoard)
	if err != nil {
		return report, fmt.Errorf("fold legacy threads: %w", err)
	}
	report.FoldedLegacyThreads = n

	n, err = convertReplyArrays(ctx, store)
	if err != nil {
		return report, fmt.Errorf("convert reply arrays: %w", err)
	}
	report.ConvertedReplies = n

	report.InitializedBoards, err = initializeBoards(ctx, store)
	if err != nil {
		return report, fmt.Errorf("initialize boards: %w", err)
	}

	if report.Changed() {
		logger.Log.Info("document migrated",
			"legacy_threads", report.FoldedLegacyThreads,
			"reply_arrays", report.ConvertedReplies,
			"boards_initialized", report.InitializedBoards)
	}
	return report, nil
}

func foldLegacyThreads(ctx context.Context, store Store, defaultBoard string) (int, error) {
	legacy := decodeLegacy(store.Snapshot().Raw)
	switch legacy.kind {
	case legacyAbsent:
		return 0, nil
	case legacyUnknown:
		logger.Log.Warn("ignoring legacy threads field of unexpected type", "component", "migrate")
		return 0, nil
	}

	threads := legacy.normalize()
	patch := map[string]any{
		"boards":  map[string]any{defaultBoard: threads},
		"threads": nil,
	}
	if err := store.Update(ctx, patch); err != nil {
		return 0, err
	}
	// The field is cleared even when it held nothing foldable.
	if len(threads) == 0 {
		return 1, nil
	}
	return len(threads), nil
}

func convertReplyArrays(ctx context.Context, store Store) (int, error) {
	boards, ok := store.Snapshot().Raw["boards"].(map[string]any)
	if !ok {
		return 0, nil
	}

	patch := map[string]any{}
	converted := 0
	for _, board := range sortedKeys(boards) {
		threads, _ := boards[board].(map[string]any)
		for _, tid := range sortedKeys(threads) {
			thread, _ := threads[tid].(map[string]any)
			list, isList := thread["replies"].([]any)
			if !isList {
				continue
			}

			replies := map[string]any{}
			for _, entry := range list {
				r, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				if id, _ := r["id"].(string); id != "" {
					replies[id] = r
				}
			}

			boardPatch, _ := patch[board].(map[string]any)
			if boardPatch == nil {
				boardPatch = map[string]any{}
				patch[board] = boardPatch
			}
			boardPatch[tid] = map[string]any{"replies": replies}
			converted++
		}
	}

	if converted == 0 {
		return 0, nil
	}
	if err := store.Update(ctx, map[string]any{"boards": patch}); err != nil {
		return 0, err
	}
	return converted, nil
}

func initializeBoards(ctx context.Context, store Store) (bool, error) {
	if store.Snapshot().HasBoards {
		return false, nil
	}
	if err := store.Update(ctx, map[string]any{"boards": map[string]any{}}); err != nil {
		return false, err
	}
	return true, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnsureBoards adds an empty entry for every listed board the document lacks,
// so navigation only ever links to known boards. The rules board is never
// stored. Existing boards are left untouched.
func EnsureBoards(ctx context.Context, store Store, names []string) ([]string, error) {
	raw, _ := store.Snapshot().Raw["boards"].(map[string]any)
	missing := map[string]any{}
	var added []string
	for _, name := range names {
		if name == "" || name == domain.RulesBoard {
			continue
		}
		if _, ok := raw[name]; ok {
			continue
		}
		if _, ok := missing[name]; ok {
			continue
		}
		missing[name] = map[string]any{}
		added = append(added, name)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := store.Update(ctx, map[string]any{"boards": missing}); err != nil {
		return nil, fmt.Errorf("ensure boards: %w", err)
	}
	logger.Log.Info("boards added to document", "boards", added)
	return added, nil
}
