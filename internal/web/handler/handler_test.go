package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freekieb7/go-polls/internal/api"
	"github.com/freekieb7/go-polls/internal/cache"
	"github.com/freekieb7/go-polls/internal/config"
	"github.com/freekieb7/go-polls/internal/health"
	"github.com/freekieb7/go-polls/internal/inflight"
	"github.com/freekieb7/go-polls/internal/poll"
	"github.com/freekieb7/go-polls/internal/session"
	"github.com/freekieb7/go-polls/internal/web/middleware"
	"github.com/freekieb7/go-polls/internal/web/view"
	"github.com/freekieb7/go-polls/web"
)

const (
	testEmail      = "ada@example.com"
	testPassword   = "secret"
	testCredential = "cred-1"
)

// fakeRemote is an in-memory polls API.
type fakeRemote struct {
	mu       sync.Mutex
	polls    map[string]poll.Poll
	owned    []string
	creates  int
	votes    []string
	signouts int
	nextID   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		polls: map[string]poll.Poll{
			"abc123": {
				ID:       "abc123",
				Question: "Old news?",
				Options: []poll.Option{
					{ID: "a1", Text: "Yes", Position: 1},
					{ID: "a2", Text: "No", Position: 2},
				},
				ExpiresAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				CreatedAt: time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC),
			},
			"live1": {
				ID:       "live1",
				Question: "Tabs or spaces?",
				Options: []poll.Option{
					{ID: "o1", Text: "Tabs", Position: 1, Count: 3},
					{ID: "o2", Text: "Spaces", Position: 2, Count: 1},
				},
				ExpiresAt: time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
				CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		owned: []string{"live1"},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func signedIn(r *http.Request) bool {
	cookie, err := r.Cookie("token")
	return err == nil && cookie.Value == testCredential
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var body api.SignupRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case body.Username == "":
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"type":   "validation_error",
				"title":  "Validation failed",
				"errors": map[string][]string{"username": {"Username is required", "Username is too short"}},
			})
		case body.Email == "taken@example.com":
			writeJSON(w, http.StatusConflict, map[string]string{"type": "email_already_exists", "title": "Email already exists"})
		default:
			writeJSON(w, http.StatusCreated, map[string]string{"id": "u1"})
		}
	})

	mux.HandleFunc("POST /api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var body api.SigninRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email != testEmail || body.Password != testPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"type": "invalid_credentials", "title": "Invalid email or password."})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "token", Value: testCredential, HttpOnly: true})
		writeJSON(w, http.StatusOK, map[string]string{"token": "jwt-1"})
	})

	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !signedIn(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "jwt-1"})
	})

	mux.HandleFunc("POST /api/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.signouts++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/polls", func(w http.ResponseWriter, r *http.Request) {
		if !signedIn(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		list := []poll.Poll{}
		for _, id := range f.owned {
			list = append(list, f.polls[id])
		}
		writeJSON(w, http.StatusOK, list)
	})

	mux.HandleFunc("POST /api/polls", func(w http.ResponseWriter, r *http.Request) {
		if !signedIn(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Question  string   `json:"question"`
			Options   []string `json:"options"`
			ExpiresAt string   `json:"expiresAt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		expiresAt, err := time.Parse(time.RFC3339, body.ExpiresAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"type": "invalid_request_body"})
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.creates++
		f.nextID++
		created := poll.Poll{
			ID:        "new" + strconv.Itoa(f.nextID),
			Question:  body.Question,
			ExpiresAt: expiresAt,
			CreatedAt: time.Now().UTC(),
		}
		for i, text := range body.Options {
			created.Options = append(created.Options, poll.Option{ID: created.ID + "-" + text, Text: text, Position: i + 1})
		}
		f.polls[created.ID] = created
		f.owned = append(f.owned, created.ID)
		writeJSON(w, http.StatusCreated, created)
	})

	mux.HandleFunc("GET /api/polls/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		p, ok := f.polls[r.PathValue("id")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"type": "not_found", "title": "Poll not found"})
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	mux.HandleFunc("DELETE /api/polls/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !signedIn(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		delete(f.polls, id)
		kept := f.owned[:0]
		for _, owned := range f.owned {
			if owned != id {
				kept = append(kept, owned)
			}
		}
		f.owned = kept
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/polls/{id}/vote", func(w http.ResponseWriter, r *http.Request) {
		var body api.VoteRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Header.Get(api.TurnstileHeader) == "bad" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"type": "turnstile_verification_failed", "title": "Verification failed"})
			return
		}
		f.mu.Lock()
		f.votes = append(f.votes, body.OptionID+"|"+r.Header.Get(api.TurnstileHeader))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func (f *fakeRemote) voteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.votes)
}

type testApp struct {
	remote *fakeRemote
	server *httptest.Server
	client *http.Client
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	remote := newFakeRemote()
	remoteServer := httptest.NewServer(remote.handler())
	t.Cleanup(remoteServer.Close)

	cfg := &config.Config{
		Server: config.Server{Environment: config.EnvTesting},
		API: config.API{
			BaseURL:         remoteServer.URL,
			Timeout:         2 * time.Second,
			BreakerFailures: 5,
			BreakerReset:    time.Minute,
			CookieName:      "token",
		},
		Session:   config.Session{Backend: config.SessionBackendMemory, TTL: time.Hour, HydrationWait: 2 * time.Second},
		Cache:     config.Cache{QueryTTL: time.Minute, PollTTL: time.Minute, InMemoryMaxSize: 1000},
		Turnstile: config.Turnstile{SiteKey: "site-key"},
		Location:  time.UTC,
	}

	manager, err := cache.NewManager(&cache.ManagerConfig{
		RedisConfig:     &cache.Config{Enabled: false},
		InMemoryMaxSize: cfg.Cache.InMemoryMaxSize,
		CleanupInterval: time.Hour,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	client := api.NewClient(cfg.API, logger)
	store := session.NewMemoryStore(cfg.Session.TTL)
	authenticator := session.NewAuthenticator(client, session.NewMirror(manager, cfg.Session.TTL), logger)
	views, err := view.New(web.TemplateFS(), logger)
	require.NoError(t, err)

	ui := NewUIHandler(cfg, logger, store, authenticator, cache.NewQuery(manager, logger), inflight.NewGuard(), client, views)
	limiter := middleware.NewInMemoryRateLimiter(time.Hour)
	t.Cleanup(func() { _ = limiter.Close() })

	router := NewRouter(ui, NewHealthHandler(health.NewChecker(nil, manager, client, logger)), limiter)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testApp{
		remote: remote,
		server: server,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func (a *testApp) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.Get(a.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// post submits form from the page at from, carrying its CSRF token.
func (a *testApp) post(t *testing.T, from, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	_, page := a.get(t, from)
	match := csrfPattern.FindStringSubmatch(page)
	require.Len(t, match, 2, "page %s has no csrf token", from)

	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFFieldName, match[1])

	resp, err := a.client.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (a *testApp) signin(t *testing.T) {
	t.Helper()
	resp, _ := a.post(t, "/signin", "/signin", url.Values{"email": {testEmail}, "password": {testPassword}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/home", resp.Header.Get("Location"))
}

func TestRoot_RedirectsHome(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.get(t, "/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/home", resp.Header.Get("Location"))
}

func TestHome_RedirectsWhenSignedOut(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.get(t, "/home")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/signin", resp.Header.Get("Location"))
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		contains   []string
		absent     []string
	}{
		{
			name:       "email already exists",
			form:       url.Values{"username": {"ada"}, "email": {"taken@example.com"}, "password": {"pw"}},
			wantStatus: http.StatusUnprocessableEntity,
			contains:   []string{"Email already exists", `value="ada"`, `value="taken@example.com"`},
		},
		{
			name:       "validation shows the first message",
			form:       url.Values{"username": {""}, "email": {"new@example.com"}, "password": {"pw"}},
			wantStatus: http.StatusUnprocessableEntity,
			contains:   []string{"Username is required"},
			absent:     []string{"Username is too short"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			app := newTestApp(t)

			resp, body := app.post(t, "/signup", "/signup", test.form)

			assert.Equal(t, test.wantStatus, resp.StatusCode)
			for _, s := range test.contains {
				assert.Contains(t, body, s)
			}
			for _, s := range test.absent {
				assert.NotContains(t, body, s)
			}
			assert.NotContains(t, body, `value="pw"`, "the password is never echoed")
		})
	}
}

func TestSignup_SuccessRedirectsToSignin(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.post(t, "/signup", "/signup", url.Values{"username": {"ada"}, "email": {"new@example.com"}, "password": {"pw"}})

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/signin", resp.Header.Get("Location"))
}

func TestSignin_InvalidCredentials(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.post(t, "/signin", "/signin", url.Values{"email": {testEmail}, "password": {"wrong"}})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Invalid email or password")
	assert.Contains(t, body, `value="ada@example.com"`)
	assert.NotContains(t, body, "field-error")
}

func TestSignin_ThenHomeListsPolls(t *testing.T) {
	app := newTestApp(t)
	app.signin(t)

	resp, body := app.get(t, "/home")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Tabs or spaces?")
	assert.Contains(t, body, `href="/polls/live1"`)
	assert.Contains(t, body, "3 votes · 75%")
	assert.Contains(t, body, "Total votes: 4")
}

func TestCSRF_MissingTokenIsForbidden(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/signin")

	resp, err := app.client.PostForm(app.server.URL+"/signin", url.Values{"email": {testEmail}, "password": {testPassword}})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreatePoll(t *testing.T) {
	app := newTestApp(t)
	app.signin(t)

	t.Run("create form", func(t *testing.T) {
		_, body := app.get(t, "/home?create=1")
		assert.Equal(t, 2, strings.Count(body, `name="options"`))
		assert.Contains(t, body, `name="expiresAt"`)
	})

	t.Run("add option re-renders", func(t *testing.T) {
		resp, body := app.post(t, "/home?create=1", "/home/polls", url.Values{
			"action":  {"add_option"},
			"options": {"a", "b"},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 3, strings.Count(body, `name="options"`))
		assert.Contains(t, body, `value="remove_option:2"`)
	})

	t.Run("remove option re-renders", func(t *testing.T) {
		resp, body := app.post(t, "/home?create=1", "/home/polls", url.Values{
			"action":  {"remove_option:0"},
			"options": {"a", "b", "c"},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, strings.Count(body, `name="options"`))
		assert.NotContains(t, body, `value="a"`)
	})

	t.Run("fewer than two options sends nothing", func(t *testing.T) {
		resp, body := app.post(t, "/home?create=1", "/home/polls", url.Values{
			"action":    {"create"},
			"question":  {"Lunch?"},
			"options":   {"Pizza"},
			"expiresAt": {"2099-01-01T12:00"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, body, "At least 2 options are required")
		assert.Zero(t, app.remote.creates)
	})

	t.Run("success refreshes the list", func(t *testing.T) {
		app.get(t, "/home")

		resp, _ := app.post(t, "/home?create=1", "/home/polls", url.Values{
			"action":    {"create"},
			"question":  {"Lunch?"},
			"options":   {"Pizza", "Salad"},
			"expiresAt": {"2099-01-01T12:00"},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/home", resp.Header.Get("Location"))

		_, body := app.get(t, "/home")
		assert.Contains(t, body, "Lunch?")
		assert.Contains(t, body, "Poll created.")
		assert.Equal(t, 1, app.remote.creates)
	})
}

func TestDeletePoll_RemovesFromList(t *testing.T) {
	app := newTestApp(t)
	app.signin(t)

	_, body := app.get(t, "/home?confirm=live1")
	assert.Contains(t, body, `action="/home/polls/live1/delete"`)

	resp, _ := app.post(t, "/home?confirm=live1", "/home/polls/live1/delete", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = app.get(t, "/home")
	assert.NotContains(t, body, "Tabs or spaces?")
	assert.Contains(t, body, "Poll deleted.")
	assert.Contains(t, body, "You haven't created any polls yet.")
}

func TestVote_ExpiredPoll(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/polls/abc123")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "This poll has expired and is no longer accepting votes.")
	assert.NotContains(t, body, `name="optionId"`)

	resp, _ = app.post(t, "/polls/live1", "/polls/abc123/vote", url.Values{
		"optionId":     {"a1"},
		TurnstileField: {"token"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Zero(t, app.remote.voteCount())
}

func TestVote_RefusedWithoutCallingRemote(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"no selection", url.Values{TurnstileField: {"token"}}, "Please select an option."},
		{"unknown option", url.Values{"optionId": {"zz"}, TurnstileField: {"token"}}, "Please select an option."},
		{"no verification token", url.Values{"optionId": {"o1"}}, "Please complete the verification."},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			app := newTestApp(t)

			resp, body := app.post(t, "/polls/live1", "/polls/live1/vote", test.form)

			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			assert.Contains(t, body, test.want)
			assert.Zero(t, app.remote.voteCount())
		})
	}
}

func TestVote_Success(t *testing.T) {
	app := newTestApp(t)

	_, body := app.get(t, "/polls/live1")
	assert.Contains(t, body, `data-sitekey="site-key"`)
	assert.Less(t, strings.Index(body, "Tabs"), strings.Index(body, "Spaces"))

	resp, _ := app.post(t, "/polls/live1", "/polls/live1/vote", url.Values{
		"optionId":     {"o2"},
		TurnstileField: {"widget-token"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/polls/live1", resp.Header.Get("Location"))
	assert.Equal(t, []string{"o2|widget-token"}, app.remote.votes)

	_, body = app.get(t, "/polls/live1")
	assert.Contains(t, body, "Thank you for voting!")

	_, body = app.get(t, "/polls/live1")
	assert.NotContains(t, body, "Thank you for voting!", "the voted flash is shown once")
}

func TestVote_RemoteFailureRendersBallot(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.post(t, "/polls/live1", "/polls/live1/vote", url.Values{
		"optionId":     {"o1"},
		TurnstileField: {"bad"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Verification failed")
	assert.Contains(t, body, `value="o1" checked`)
}

func TestVote_UnknownPoll(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/polls/missing")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Failed to load poll. Please try again later.")
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.signin(t)

	resp, _ := app.post(t, "/home", "/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/signin", resp.Header.Get("Location"))
	assert.Equal(t, 1, app.remote.signouts)

	resp, _ = app.get(t, "/home")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/signin", resp.Header.Get("Location"))
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/nowhere")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found.")
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, body := app.get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"), path)
		assert.Contains(t, body, `"status"`, path)
	}
}

func TestStatic(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/static/app.js")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=604800", resp.Header.Get("Cache-Control"))
	assert.Contains(t, body, "onTurnstileSuccess")
}
