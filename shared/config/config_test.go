package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPublic = `http_addr: ":8080"
default_board: random
boards:
  - name: random
    title: Random
  - name: rules
    title: Rules
moderators: [kozumis]
guest_prefix: "Guest-"
id_length: 10
identity_ttl: 24h
max_upload_bytes: 1024
allowed_image_mime_types: [image/png]
subject_max_len: 100
comment_max_len: 2000
`

const validPrivate = "jwt_key: 'k'\n"

func writeConfig(t *testing.T, public, private string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "public.yaml"), []byte(public), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "private.yaml"), []byte(private), 0o600))
	return dir
}

func TestMustLoad(t *testing.T) {
	cfg := MustLoad(writeConfig(t, validPublic, validPrivate))

	assert.Equal(t, "random", cfg.Public.DefaultBoard)
	assert.Equal(t, 24*time.Hour, cfg.IdentityTTL())
	assert.Equal(t, "k", cfg.JwtKey())
	assert.Equal(t, "memory", cfg.Public.Storage.Backend, "storage backend defaults to memory")
	assert.Equal(t, "fs", cfg.Public.Upload.Backend)
	assert.Equal(t, "/media", cfg.Public.Upload.PublicBaseURL)
	assert.Equal(t, time.UTC, cfg.Public.Location())
}

func TestMustLoad_RequiredFields(t *testing.T) {
	// guest_prefix is missing
	public := `http_addr: ":8080"
default_board: random
boards: [{name: random, title: Random}]
id_length: 10
identity_ttl: 1h
max_upload_bytes: 1
allowed_image_mime_types: [image/png]
subject_max_len: 1
comment_max_len: 1
`
	dir := writeConfig(t, public, validPrivate)
	assert.Panics(t, func() { MustLoad(dir) })
}

func TestMustLoad_MissingFile(t *testing.T) {
	assert.Panics(t, func() { MustLoad(t.TempDir()) })
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := MustLoad(writeConfig(t, validPublic, validPrivate))
		return cfg
	}

	t.Run("default board must be listed", func(t *testing.T) {
		cfg := base()
		cfg.Public.DefaultBoard = "tech"
		assert.Error(t, Validate(cfg))
	})

	t.Run("default board cannot be rules", func(t *testing.T) {
		cfg := base()
		cfg.Public.DefaultBoard = "rules"
		assert.Error(t, Validate(cfg))
	})

	t.Run("redis storage needs url", func(t *testing.T) {
		cfg := base()
		cfg.Public.Storage.Backend = "redis"
		assert.Error(t, Validate(cfg))
		cfg.Private.RedisURL = "redis://localhost:6379"
		assert.NoError(t, Validate(cfg))
	})

	t.Run("pg storage needs host", func(t *testing.T) {
		cfg := base()
		cfg.Public.Storage.Backend = "pg"
		assert.Error(t, Validate(cfg))
	})

	t.Run("unknown storage backend", func(t *testing.T) {
		cfg := base()
		cfg.Public.Storage.Backend = "badger"
		assert.Error(t, Validate(cfg))
	})
}

func TestLocation(t *testing.T) {
	p := Public{Timezone: "Europe/London"}
	assert.Equal(t, "Europe/London", p.Location().String())

	p.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, p.Location())
}
