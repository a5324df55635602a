package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/freekieb7/go-polls/internal/api"
	"github.com/freekieb7/go-polls/internal/cache"
	"github.com/freekieb7/go-polls/internal/config"
	apperrors "github.com/freekieb7/go-polls/internal/errors"
	"github.com/freekieb7/go-polls/internal/inflight"
	"github.com/freekieb7/go-polls/internal/poll"
	"github.com/freekieb7/go-polls/internal/session"
	"github.com/freekieb7/go-polls/internal/web/view"
)

const (
	routeHome   = "/home"
	routeSignin = "/signin"
	routeSignup = "/signup"
)

const msgNotPerformed = "Your session was still loading, so that action was not performed. Please try again."

// PollsAPI is the remote API as the views use it.
type PollsAPI interface {
	Signup(ctx context.Context, req api.SignupRequest) error
	Signin(ctx context.Context, req api.SigninRequest) (api.SigninResult, error)
	ListPolls(ctx context.Context, credential string) ([]poll.Poll, error)
	CreatePoll(ctx context.Context, credential string, req api.CreatePollRequest) (poll.Poll, error)
	GetPoll(ctx context.Context, id string) (poll.Poll, error)
	DeletePoll(ctx context.Context, credential, id string) error
	Vote(ctx context.Context, id string, req api.VoteRequest, verificationToken string) error
}

// UIHandler serves the server-rendered views.
type UIHandler struct {
	Config        *config.Config
	Logger        *slog.Logger
	SessionStore  session.Store
	Authenticator *session.Authenticator
	Query         *cache.Query
	Guard         *inflight.Guard
	API           PollsAPI
	Views         *view.Renderer

	now func() time.Time
}

func NewUIHandler(cfg *config.Config, logger *slog.Logger, sessionStore session.Store, authenticator *session.Authenticator, query *cache.Query, guard *inflight.Guard, pollsAPI PollsAPI, views *view.Renderer) *UIHandler {
	return &UIHandler{
		Config:        cfg,
		Logger:        logger,
		SessionStore:  sessionStore,
		Authenticator: authenticator,
		Query:         query,
		Guard:         guard,
		API:           pollsAPI,
		Views:         views,
		now:           time.Now,
	}
}

// currentSession returns the session the Session middleware loaded. Its
// absence is a wiring error.
func (h *UIHandler) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.fail(w, r, apperrors.InternalError("Session not found in context", nil))
	}
	return sess, ok
}

// saveSession persists sess before the response is written. A failure is
// logged; the page still renders.
func (h *UIHandler) saveSession(ctx context.Context, sess *session.Session) {
	saved, err := h.SessionStore.SaveSession(ctx, *sess)
	if err != nil {
		h.Logger.ErrorContext(ctx, "Failed to save session", "error", err)
		return
	}
	*sess = saved
}

func (h *UIHandler) page(sess *session.Session, title string) view.Page {
	return view.Page{
		Title:     title,
		CSRFToken: sess.CSRFToken(),
	}
}

func (h *UIHandler) location() *time.Location {
	if h.Config.Location != nil {
		return h.Config.Location
	}
	return time.UTC
}

// HandleLoading is shown while the session's token is being hydrated. It
// reloads the requested page; unsafe requests are not performed and land on
// the home view with a notice.
func (h *UIHandler) HandleLoading(w http.ResponseWriter, r *http.Request) {
	target := routeHome
	if r.Method == http.MethodGet {
		target = r.URL.RequestURI()
	} else if sess, ok := session.FromContext(r.Context()); ok {
		h.Logger.InfoContext(r.Context(), "Dropped request during session hydration", "method", r.Method, "path", r.URL.Path)
		sess.SetFlash(flashHomeError, msgNotPerformed)
		h.saveSession(r.Context(), sess)
	}
	h.Views.Render(w, r, http.StatusOK, "loading.html", view.LoadingPage{
		Page:           view.Page{Title: "Loading"},
		Target:         target,
		RefreshSeconds: 1,
	})
}

func (h *UIHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.Views.Render(w, r, http.StatusNotFound, "error.html", view.ErrorPage{Message: "Page not found."})
}

func (h *UIHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, routeHome, http.StatusSeeOther)
}
