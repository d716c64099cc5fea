package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninechan-dev/ninechan/internal/setup"
	"github.com/ninechan-dev/ninechan/shared/config"
	"github.com/ninechan-dev/ninechan/shared/csrf"
	"github.com/ninechan-dev/ninechan/shared/middleware"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Public: config.Public{
			HttpAddr:     ":0",
			DefaultBoard: "random",
			Boards: []config.BoardLink{
				{Name: "random", Title: "Random"},
				{Name: "rules", Title: "Rules"},
			},
			Moderators:            []string{"kozumis"},
			GuestPrefix:           "Guest-",
			IdLength:              10,
			IdentityTTL:           time.Hour,
			MaxUploadBytes:        1 << 20,
			AllowedImageMimeTypes: []string{"image/png"},
			SubjectMaxLen:         100,
			CommentMaxLen:         2000,
			Storage:               config.Storage{Backend: "memory", Key: "test"},
			Upload:                config.Upload{Backend: "fs", FsRoot: t.TempDir(), PublicBaseURL: "/media"},
		},
		Private: config.Private{JwtKey: "test-key"},
	}
}

func newTestRouter(t *testing.T) (*setup.Dependencies, http.Handler) {
	t.Helper()
	deps, err := setup.SetupDependencies(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(deps.Cleanup)
	return deps, New(deps)
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// visit performs a GET so the caller holds identity and CSRF cookies.
func visit(t *testing.T, h http.Handler) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/random", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	id, token := cookieNamed(rec, middleware.IdentityCookieName), cookieNamed(rec, csrf.CookieName)
	require.NotNil(t, id)
	require.NotNil(t, token)
	return []*http.Cookie{id, token}
}

func post(h http.Handler, target string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	_, h := newTestRouter(t)

	cases := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/static/live.js", http.StatusOK},
		{"/random", http.StatusOK},
		{"/", http.StatusSeeOther},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "connect-src 'self' ws: wss:")
		})
	}
}

func TestDocumentAPI(t *testing.T) {
	_, h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/document", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	var body struct {
		Document map[string]any `json:"document"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Contains(t, body.Document, "boards", "startup migration initializes boards")
	boards := body.Document["boards"].(map[string]any)
	assert.Contains(t, boards, "random", "listed boards exist from the start")
	assert.NotContains(t, boards, "rules")
}

func TestPostingNeedsCSRF(t *testing.T) {
	deps, h := newTestRouter(t)
	cookies := visit(t, h)
	form := url.Values{"subject": {"hello"}, "comment": {"first post"}}

	rec := post(h, "/random/threads", form, cookies[:1])
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, deps.Room.Snapshot().Doc.Boards["random"])

	form.Set(csrf.FormField, cookies[1].Value)
	rec = post(h, "/random/threads", form, cookies)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Len(t, deps.Room.Snapshot().Doc.Boards["random"], 1)
}

func TestPostingIsRateLimited(t *testing.T) {
	_, h := newTestRouter(t)
	cookies := visit(t, h)
	form := url.Values{"comment": {"spam"}, csrf.FormField: {cookies[1].Value}}

	limited := false
	for i := 0; i < 10; i++ {
		if post(h, "/random/threads", form, cookies).Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

func TestDeleteIsModeratorOnly(t *testing.T) {
	_, h := newTestRouter(t)
	cookies := visit(t, h)

	req := httptest.NewRequest(http.MethodGet, "/random/threads/T1/delete", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = post(h, "/random/threads/T1/delete", url.Values{"confirmed": {"true"}, csrf.FormField: {cookies[1].Value}}, cookies)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLiveSocket(t *testing.T) {
	_, h := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/random", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "board", msg["type"])
	assert.Equal(t, "random", msg["board"])
}
