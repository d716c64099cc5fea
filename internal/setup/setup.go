package setup

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ninechan-dev/ninechan/internal/format"
	"github.com/ninechan-dev/ninechan/internal/handler"
	"github.com/ninechan-dev/ninechan/internal/identity"
	"github.com/ninechan-dev/ninechan/internal/live"
	"github.com/ninechan-dev/ninechan/internal/markdown"
	"github.com/ninechan-dev/ninechan/internal/migrate"
	"github.com/ninechan-dev/ninechan/internal/nav"
	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/internal/rules"
	"github.com/ninechan-dev/ninechan/internal/service"
	"github.com/ninechan-dev/ninechan/internal/storage/pg"
	redisstore "github.com/ninechan-dev/ninechan/internal/storage/redis"
	"github.com/ninechan-dev/ninechan/internal/upload"
	"github.com/ninechan-dev/ninechan/shared/config"
	"github.com/ninechan-dev/ninechan/shared/domain"
	"github.com/ninechan-dev/ninechan/shared/jwt"
	"github.com/ninechan-dev/ninechan/shared/logger"
	"github.com/ninechan-dev/ninechan/shared/middleware"
	rl "github.com/ninechan-dev/ninechan/shared/middleware/ratelimiter"
	"github.com/ninechan-dev/ninechan/shared/utils"
)

// Limiters are shared by every route that uses them, so each needs one
// cleanup loop.
type Limiters struct {
	Posts   *rl.KeyedLimiter // per client id
	Connect *rl.KeyedLimiter // per IP
	Sockets *rl.KeyedLimiter // per IP
}

func newLimiters() Limiters {
	return Limiters{
		Posts:   rl.New(1.0/5, 5, time.Hour),
		Connect: rl.New(1.0/10, 3, time.Hour),
		Sockets: rl.New(1, 10, time.Hour),
	}
}

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Config      *config.Config
	Room        *room.Room
	Handler     *handler.Handler
	Live        *live.Hub
	Auth        *middleware.Auth
	IsModerator func(domain.Identity) bool
	Limiters    Limiters
	// Media serves uploaded files; nil when uploads live in object storage.
	Media http.Handler

	watchers []func(ctx context.Context) error
	closers  []func() error
}

// SetupDependencies initializes all dependencies required for the application.
// The shared document is loaded and migrated before it returns.
func SetupDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Limiters: newLimiters()}

	r, err := deps.setupRoom(ctx)
	if err != nil {
		deps.Cleanup()
		return nil, err
	}
	deps.Room = r

	uploader, err := deps.setupUploads(ctx)
	if err != nil {
		deps.Cleanup()
		return nil, err
	}

	rulesSource, err := rules.New(markdown.New(), cfg.Public.RulesFile)
	if err != nil {
		deps.Cleanup()
		return nil, err
	}
	deps.watchers = append(deps.watchers, rulesSource.Watch)

	prefix := cfg.Public.GuestPrefix
	moderators := format.NewModerators(cfg.Public.Moderators)
	deps.IsModerator = func(id domain.Identity) bool { return moderators.IsModeratorIdentity(id, prefix) }

	jwtService := jwt.New(cfg.JwtKey(), cfg.IdentityTTL())
	deps.Auth = middleware.NewAuth(jwtService, identity.NewGuests(prefix), deps.IsModerator, cfg.Public.SecureCookies)

	renderer := render.New(moderators, cfg.Public.Location())
	controller := nav.NewController(renderer, rulesSource, cfg.Public.DefaultBoard)

	board := service.NewBoard(r, uploader, func() string { return utils.NewId(cfg.Public.IdLength) }, time.Now, service.Limits{
		SubjectMaxLen: cfg.Public.SubjectMaxLen,
		CommentMaxLen: cfg.Public.CommentMaxLen,
	})
	identitySvc := service.NewIdentity(identity.NewAccounts(cfg.Private.Accounts), r, prefix)

	links := make([]render.NavLink, 0, len(cfg.Public.Boards))
	for _, b := range cfg.Public.Boards {
		links = append(links, render.NavLink{Name: b.Name, Title: b.Title})
	}

	deps.Live = live.NewHub(r, controller, renderer, deps.IsModerator, live.Config{
		GuestPrefix: prefix,
		ConnectPath: handler.ConnectPath,
	})
	rulesSource.OnReload(func() { deps.Live.RepaintBoard(domain.RulesBoard) })
	deps.Handler = handler.New(board, identitySvc, r, controller, renderer, deps.Auth, deps.IsModerator, handler.Config{
		Boards:        links,
		GuestPrefix:   prefix,
		SecureCookies: cfg.Public.SecureCookies,
	})
	return deps, nil
}

func (d *Dependencies) setupRoom(ctx context.Context) (*room.Room, error) {
	storageCfg := d.Config.Public.Storage
	var (
		persister room.Persister = room.Memory{}
		watched   *redisstore.Storage
	)
	switch storageCfg.Backend {
	case "pg":
		s, err := pg.New(ctx, d.Config.Private.Pg, storageCfg.Key)
		if err != nil {
			return nil, fmt.Errorf("pg storage: %w", err)
		}
		d.closers = append(d.closers, s.Cleanup)
		persister = s
	case "redis":
		s, err := redisstore.New(ctx, d.Config.Private.RedisURL, storageCfg.Key)
		if err != nil {
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		d.closers = append(d.closers, s.Cleanup)
		persister = s
		watched = s
	}
	logger.Log.Info("document storage selected", "backend", storageCfg.Backend, "key", storageCfg.Key)

	r := room.New(persister)
	if err := r.Load(ctx); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if watched != nil {
		d.watchers = append(d.watchers, func(ctx context.Context) error { return watched.Watch(ctx, r) })
	}

	if _, err := migrate.Run(ctx, r, d.Config.Public.DefaultBoard); err != nil {
		return nil, fmt.Errorf("migrate document: %w", err)
	}
	listed := make([]string, 0, len(d.Config.Public.Boards))
	for _, b := range d.Config.Public.Boards {
		listed = append(listed, b.Name)
	}
	if _, err := migrate.EnsureBoards(ctx, r, listed); err != nil {
		return nil, err
	}
	return r, nil
}

func (d *Dependencies) setupUploads(ctx context.Context) (*upload.Service, error) {
	pub := d.Config.Public
	validator := upload.NewValidator(pub.MaxUploadBytes, pub.AllowedImageMimeTypes)

	var backend upload.Backend
	switch pub.Upload.Backend {
	case "s3":
		s3cfg := d.Config.Private.S3
		s, err := upload.NewS3(ctx, upload.S3Config{
			Bucket:          s3cfg.Bucket,
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			PublicBaseURL:   pub.Upload.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		backend = s
	default:
		fs, err := upload.NewFS(pub.Upload.FsRoot, pub.Upload.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		d.Media = fs.Handler()
		backend = fs
	}
	return upload.NewService(validator, backend, uuid.NewString), nil
}

// Start runs the background loops until ctx is done: limiter cleanup, rules
// reloading and, with redis storage, the cross-instance change feed.
func (d *Dependencies) Start(ctx context.Context) {
	for _, l := range []*rl.KeyedLimiter{d.Limiters.Posts, d.Limiters.Connect, d.Limiters.Sockets} {
		l.StartCleanup(ctx, 10*time.Minute)
	}
	for _, watch := range d.watchers {
		go func() {
			if err := watch(ctx); err != nil {
				logger.Log.Error("background watcher stopped", "error", err)
			}
		}()
	}
}

func (d *Dependencies) Cleanup() {
	for _, c := range d.closers {
		if err := c(); err != nil {
			logger.Log.Error("cleanup failed", "error", err)
		}
	}
}
