// Package service holds the mutation handlers. Each one turns a user action
// into a single room update, or into no update at all.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/internal/upload"
	"github.com/ninechan-dev/ninechan/shared/domain"
	internal_errors "github.com/ninechan-dev/ninechan/shared/errors"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

// Store is the shared-state collaborator as seen by the mutation handlers.
// Every handler checks and writes inside one Modify, and writes only the
// entry it creates or removes.
type Store interface {
	Modify(ctx context.Context, fn func(room.Snapshot) (map[string]any, error)) error
}

type BoardService interface {
	NewThread(ctx context.Context, in ThreadInput) (*domain.Thread, error)
	NewReply(ctx context.Context, in ReplyInput) (*domain.Reply, error)
	DeleteThread(ctx context.Context, in DeleteInput) error
	DeleteReply(ctx context.Context, in DeleteInput) error
}

// Post is what every submission carries.
type Post struct {
	Author   domain.Identity
	Comment  string
	ImageURL string
	// ImageFile takes precedence over ImageURL when set.
	ImageFile *upload.File
}

type ThreadInput struct {
	Post
	Board           domain.BoardName
	Subject         string
	RepliesDisabled bool
}

type ReplyInput struct {
	Post
	Board    domain.BoardName
	ThreadId domain.ThreadId
}

type DeleteInput struct {
	Board     domain.BoardName
	ThreadId  domain.ThreadId
	ReplyId   domain.ReplyId
	Confirmed bool
}

type Limits struct {
	SubjectMaxLen int
	CommentMaxLen int
}

type Board struct {
	store    Store
	uploader upload.Uploader
	newId    func() string
	now      func() time.Time
	limits   Limits
	validate *validator.Validate
}

func NewBoard(store Store, uploader upload.Uploader, newId func() string, now func() time.Time, limits Limits) *Board {
	return &Board{
		store:    store,
		uploader: uploader,
		newId:    newId,
		now:      now,
		limits:   limits,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

var _ BoardService = (*Board)(nil)

func (b *Board) NewThread(ctx context.Context, in ThreadInput) (*domain.Thread, error) {
	if in.Board == domain.RulesBoard {
		return nil, internal_errors.ErrRulesBoard
	}
	subject := strings.TrimSpace(in.Subject)
	if err := b.validate.Var(subject, fmt.Sprintf("max=%d", b.limits.SubjectMaxLen)); err != nil {
		return nil, &internal_errors.ValidationError{Message: fmt.Sprintf("Subject must be at most %d characters.", b.limits.SubjectMaxLen)}
	}
	comment, image, err := b.preparePost(ctx, in.Post)
	if err != nil {
		return nil, err
	}

	var thread *domain.Thread
	err = b.store.Modify(ctx, func(snap room.Snapshot) (map[string]any, error) {
		thread = &domain.Thread{
			Id:              b.uniqueId(snap.Doc),
			Board:           in.Board,
			Subject:         subject,
			Name:            in.Author.Username,
			AvatarURL:       in.Author.AvatarURL,
			Comment:         comment,
			Image:           image,
			Timestamp:       b.timestamp(),
			Replies:         map[domain.ReplyId]*domain.Reply{},
			RepliesDisabled: in.RepliesDisabled,
		}
		raw, err := domain.ToRaw(thread)
		if err != nil {
			return nil, fmt.Errorf("encode thread: %w", err)
		}
		return boardPatch(in.Board, map[string]any{thread.Id: raw}), nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("thread created", "board", in.Board, "thread", thread.Id)
	return thread, nil
}

func (b *Board) NewReply(ctx context.Context, in ReplyInput) (*domain.Reply, error) {
	comment, image, err := b.preparePost(ctx, in.Post)
	if err != nil {
		return nil, err
	}

	// Checked against the state the reply lands on: the thread may have been
	// deleted since render.
	var reply *domain.Reply
	err = b.store.Modify(ctx, func(snap room.Snapshot) (map[string]any, error) {
		current, ok := snap.Doc.Thread(in.Board, in.ThreadId)
		if !ok {
			logger.Log.Warn("reply to missing thread dropped", "board", in.Board, "thread", in.ThreadId)
			return nil, internal_errors.ErrThreadNotFound
		}
		if current.RepliesDisabled {
			return nil, &internal_errors.ErrorWithStatusCode{Message: "Replies are disabled for this thread.", StatusCode: 403}
		}

		reply = &domain.Reply{
			Id:        b.uniqueId(snap.Doc),
			Name:      in.Author.Username,
			AvatarURL: in.Author.AvatarURL,
			Comment:   comment,
			Image:     image,
			Timestamp: b.timestamp(),
		}
		raw, err := domain.ToRaw(reply)
		if err != nil {
			return nil, fmt.Errorf("encode reply: %w", err)
		}
		return boardPatch(in.Board, map[string]any{
			in.ThreadId: map[string]any{"replies": map[string]any{reply.Id: raw}},
		}), nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("reply created", "board", in.Board, "thread", in.ThreadId, "reply", reply.Id)
	return reply, nil
}

func (b *Board) DeleteThread(ctx context.Context, in DeleteInput) error {
	if !in.Confirmed {
		return internal_errors.ErrNotConfirmed
	}
	deleted := false
	err := b.store.Modify(ctx, func(snap room.Snapshot) (map[string]any, error) {
		if _, ok := snap.Doc.Thread(in.Board, in.ThreadId); !ok {
			return nil, nil
		}
		deleted = true
		return boardPatch(in.Board, map[string]any{in.ThreadId: nil}), nil
	})
	if err != nil {
		return fmt.Errorf("delete thread %s: %w", in.ThreadId, err)
	}
	if !deleted {
		logger.Log.Warn("thread already deleted", "board", in.Board, "thread", in.ThreadId)
		return nil
	}
	logger.Log.Info("thread deleted", "board", in.Board, "thread", in.ThreadId)
	return nil
}

// DeleteReply tombstones one reply. The thread must still exist when the
// tombstone lands, otherwise the merge would recreate it as an empty shell.
func (b *Board) DeleteReply(ctx context.Context, in DeleteInput) error {
	if !in.Confirmed {
		return internal_errors.ErrNotConfirmed
	}
	deleted := false
	err := b.store.Modify(ctx, func(snap room.Snapshot) (map[string]any, error) {
		thread, ok := snap.Doc.Thread(in.Board, in.ThreadId)
		if !ok {
			return nil, nil
		}
		if _, ok := thread.Replies[in.ReplyId]; !ok {
			return nil, nil
		}
		deleted = true
		return boardPatch(in.Board, map[string]any{
			in.ThreadId: map[string]any{"replies": map[string]any{in.ReplyId: nil}},
		}), nil
	})
	if err != nil {
		return fmt.Errorf("delete reply %s: %w", in.ReplyId, err)
	}
	if !deleted {
		logger.Log.Warn("reply already deleted", "board", in.Board, "thread", in.ThreadId, "reply", in.ReplyId)
		return nil
	}
	logger.Log.Info("reply deleted", "board", in.Board, "thread", in.ThreadId, "reply", in.ReplyId)
	return nil
}

// preparePost trims and checks the comment, then resolves the image. An
// uploaded file wins over a typed URL. Nothing is written on error.
func (b *Board) preparePost(ctx context.Context, p Post) (comment, image string, err error) {
	comment = strings.TrimSpace(p.Comment)
	if comment == "" {
		return "", "", internal_errors.ErrEmptyComment
	}
	if err := b.validate.Var(comment, fmt.Sprintf("max=%d", b.limits.CommentMaxLen)); err != nil {
		return "", "", &internal_errors.ValidationError{Message: fmt.Sprintf("Comment must be at most %d characters.", b.limits.CommentMaxLen)}
	}

	if p.ImageFile != nil {
		url, err := b.uploader.Upload(ctx, *p.ImageFile)
		if err != nil {
			logger.Log.Error("image upload failed", "file", p.ImageFile.Name, "error", err)
			return "", "", fmt.Errorf("%w: %v", internal_errors.ErrUploadFailed, err)
		}
		return comment, url, nil
	}

	image = strings.TrimSpace(p.ImageURL)
	if image != "" {
		if err := b.validate.Var(image, "http_url"); err != nil {
			return "", "", &internal_errors.ValidationError{Message: "Image URL must be an http(s) link."}
		}
	}
	return comment, image, nil
}

func boardPatch(board domain.BoardName, threads map[string]any) map[string]any {
	return map[string]any{"boards": map[string]any{board: threads}}
}

// uniqueId draws ids until one is unused by any thread or reply in doc.
func (b *Board) uniqueId(doc domain.Document) string {
	for {
		id := b.newId()
		if !idInUse(doc, id) {
			return id
		}
	}
}

func idInUse(doc domain.Document, id string) bool {
	for _, threads := range doc.Boards {
		for tid, t := range threads {
			if tid == id {
				return true
			}
			if t == nil {
				continue
			}
			if _, ok := t.Replies[id]; ok {
				return true
			}
		}
	}
	return false
}

func (b *Board) timestamp() string {
	return b.now().UTC().Format(time.RFC3339Nano)
}
