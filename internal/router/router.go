package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ninechan-dev/ninechan/internal/handler"
	"github.com/ninechan-dev/ninechan/internal/setup"
	"github.com/ninechan-dev/ninechan/shared/middleware"
	"github.com/ninechan-dev/ninechan/shared/middleware/metrics"
	"github.com/ninechan-dev/ninechan/web"
)

// Pages load scripts and styles only from /static, talk back over the live
// socket and show images hot-linked from anywhere.
var siteCSP = middleware.ContentSecurityPolicy(
	"default-src 'self'",
	"script-src 'self'",
	"style-src 'self'",
	"img-src * data:",
	"connect-src 'self' ws: wss:",
	"form-action 'self'",
	"frame-ancestors 'none'",
)

// New creates the chi router with all the routes.
// IMPORTANT! a limiter passed to .Use is shared by every route of that group.
func New(deps *setup.Dependencies) *chi.Mux {
	cfg := deps.Config.Public
	h := deps.Handler
	auth := deps.Auth
	csrfCfg := middleware.CSRFConfig{SecureCookies: cfg.SecureCookies, MaxMemory: cfg.MaxUploadBytes}
	moderatorBypass := func(r *http.Request) bool {
		id, ok := middleware.GetIdentityFromContext(r)
		return ok && deps.IsModerator(id)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.SecurityHeadersWithCSP(cfg.SecureCookies, siteCSP))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", web.Static()))
	if deps.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media", deps.Media))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))
		api.Get("/document", h.Document)
	})

	r.Group(func(site chi.Router) {
		site.Use(auth.ResolveIdentity())
		site.Use(middleware.GenerateCSRFToken(csrfCfg))

		site.Get("/", h.Index)
		site.With(middleware.RateLimit(deps.Limiters.Sockets, middleware.GetIP, nil)).
			Get("/ws/{board}", deps.Live.ServeHTTP)

		site.Get(handler.ConnectPath, h.ConnectGet)
		site.With(
			middleware.ValidateCSRFToken(csrfCfg),
			middleware.RateLimit(deps.Limiters.Connect, middleware.GetIP, nil),
		).Post(handler.ConnectPath, h.ConnectPost)

		site.Get("/{board}", h.BoardGet)

		// Posting
		site.Group(func(posts chi.Router) {
			// room for the form fields on top of the largest image
			posts.Use(chimw.RequestSize(cfg.MaxUploadBytes + 1<<20))
			posts.Use(middleware.ValidateCSRFToken(csrfCfg))
			posts.Use(middleware.RateLimit(deps.Limiters.Posts, middleware.GetClientID, moderatorBypass))
			posts.Post("/{board}/threads", h.CreateThread)
			posts.Post("/{board}/threads/{thread}/replies", h.CreateReply)
		})

		// Moderation
		site.Group(func(mod chi.Router) {
			mod.Use(auth.ModeratorOnly())
			mod.Use(middleware.ValidateCSRFToken(csrfCfg))
			mod.Get("/{board}/threads/{thread}/delete", h.DeleteThreadConfirm)
			mod.Post("/{board}/threads/{thread}/delete", h.DeleteThread)
			mod.Get("/{board}/threads/{thread}/replies/{reply}/delete", h.DeleteReplyConfirm)
			mod.Post("/{board}/threads/{thread}/replies/{reply}/delete", h.DeleteReply)
		})
	})

	return r
}
