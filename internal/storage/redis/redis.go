// Package redis persists the room document in a redis hash and fans accepted
// versions out to other instances over pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

// ErrStaleVersion means another instance saved this version or a newer one first.
var ErrStaleVersion = errors.New("stored document is newer")

// Applier receives documents written by other instances.
type Applier interface {
	Apply(doc map[string]any, version int64) bool
}

// change is the pub/sub payload. The document itself is re-read from the hash.
type change struct {
	Origin  string `json:"origin"`
	Version int64  `json:"version"`
}

type Storage struct {
	client  *goredis.Client
	docKey  string
	channel string
	origin  string
}

var _ room.Persister = (*Storage)(nil)

// New connects to redisURL. prefix namespaces the document key and channel.
func New(ctx context.Context, redisURL, prefix string) (*Storage, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(client, prefix), nil
}

func NewWithClient(client *goredis.Client, prefix string) *Storage {
	return &Storage{
		client:  client,
		docKey:  prefix + ":document",
		channel: prefix + ":changes",
		origin:  uuid.NewString(),
	}
}

func (s *Storage) Load(ctx context.Context) (map[string]any, int64, error) {
	fields, err := s.client.HGetAll(ctx, s.docKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load document: %w", err)
	}
	if len(fields) == 0 {
		return map[string]any{}, 0, nil
	}

	doc := map[string]any{}
	if err := json.Unmarshal([]byte(fields["doc"]), &doc); err != nil {
		return nil, 0, fmt.Errorf("decode document: %w", err)
	}
	var version int64
	if _, err := fmt.Sscan(fields["version"], &version); err != nil {
		return nil, 0, fmt.Errorf("decode document version %q: %w", fields["version"], err)
	}
	return doc, version, nil
}

// Save writes the document if version is newer than the stored one and
// announces it on the changes channel in the same transaction.
func (s *Storage) Save(ctx context.Context, doc map[string]any, version int64) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	msg, err := json.Marshal(change{Origin: s.origin, Version: version})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		stored, err := tx.HGet(ctx, s.docKey, "version").Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if stored >= version {
			return ErrStaleVersion
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, s.docKey, "doc", raw, "version", version)
			pipe.Publish(ctx, s.channel, msg)
			return nil
		})
		return err
	}, s.docKey)

	if errors.Is(err, goredis.TxFailedErr) {
		err = ErrStaleVersion
	}
	if err != nil {
		if errors.Is(err, ErrStaleVersion) {
			logger.Log.Warn("document save rejected", "key", s.docKey, "version", version)
		}
		return fmt.Errorf("save document at version %d: %w", version, err)
	}
	return nil
}

// Watch applies versions announced by other instances to target until ctx
// is done. Announcements from this instance are skipped.
func (s *Storage) Watch(ctx context.Context, target Applier) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	logger.Log.Info("watching document changes", "channel", s.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var c change
			if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
				logger.Log.Warn("dropping malformed change", "payload", m.Payload, "error", err)
				continue
			}
			if c.Origin == s.origin {
				continue
			}
			doc, version, err := s.Load(ctx)
			if err != nil {
				logger.Log.Error("failed to load announced document", "version", c.Version, "error", err)
				continue
			}
			if !target.Apply(doc, version) {
				logger.Log.Debug("ignored stale document", "version", version)
			}
		}
	}
}

func (s *Storage) Cleanup() error {
	return s.client.Close()
}
