package pg

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/shared/config"
)

var storage *Storage

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var container *postgres.PostgresContainer
	storage, container = mustSetup(ctx)
	exitCode := m.Run()
	teardown(ctx, storage, container)
	os.Exit(exitCode)
}

func mustSetup(ctx context.Context) (*Storage, *postgres.PostgresContainer) {
	dbName := "ninechan"
	dbUser := "user"
	dbPassword := "password"
	container, err := postgres.Run(ctx,
		"postgres:15.3-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			// The container restarts once after init, so readiness is logged twice.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start container: %s", err)
	}
	containerPort, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("failed to obtain container port: %s", err)
	}
	port, err := strconv.Atoi(containerPort.Port())
	if err != nil {
		log.Fatalf("failed to obtain int container port: %s", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("failed to obtain container host: %s", err)
	}

	s, err := New(ctx, config.Pg{Host: host, Port: port, User: dbUser, Password: dbPassword, Dbname: dbName}, "test")
	if err != nil {
		log.Fatalf("failed to connect to postgres container: %s", err)
	}
	return s, container
}

func teardown(ctx context.Context, s *Storage, container *postgres.PostgresContainer) {
	if err := s.Cleanup(); err != nil {
		log.Printf("failed to close storage connection: %s", err)
	}
	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
}

func requireStorage(t *testing.T) *Storage {
	t.Helper()
	if storage == nil {
		t.Skip("postgres container not started in -short mode")
	}
	return storage
}

func TestLoadSave(t *testing.T) {
	s := requireStorage(t)
	ctx := context.Background()
	key := t.Name()
	p := NewWithDB(s.db, key)

	doc, version, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc)
	assert.Zero(t, version)

	saved := map[string]any{"boards": map[string]any{"random": map[string]any{
		"T1": map[string]any{"id": "T1", "comment": "hello", "repliesDisabled": true},
	}}}
	require.NoError(t, p.Save(ctx, saved, 1))

	doc, version, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, saved, doc)

	t.Run("older version is rejected", func(t *testing.T) {
		err := p.Save(ctx, map[string]any{}, 1)
		assert.ErrorIs(t, err, ErrStaleVersion)

		doc, _, err := p.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, saved, doc)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := requireStorage(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestRoomRoundTrip(t *testing.T) {
	s := requireStorage(t)
	ctx := context.Background()
	p := NewWithDB(s.db, t.Name())

	r := room.New(p)
	require.NoError(t, r.Load(ctx))
	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"tech": map[string]any{}}}))
	require.NoError(t, r.Update(ctx, map[string]any{"boards": map[string]any{"tech": map[string]any{
		"T9": map[string]any{"id": "T9", "board": "tech", "comment": "persisted"},
	}}}))

	restarted := room.New(p)
	require.NoError(t, restarted.Load(ctx))
	snap := restarted.Snapshot()
	assert.Equal(t, int64(2), snap.Version)
	thread, ok := snap.Doc.Thread("tech", "T9")
	require.True(t, ok)
	assert.Equal(t, "persisted", thread.Comment)
}
