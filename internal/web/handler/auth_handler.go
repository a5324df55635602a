package handler

import (
	"net/http"
	"strings"

	"github.com/freekieb7/go-polls/internal/api"
	apperrors "github.com/freekieb7/go-polls/internal/errors"
	"github.com/freekieb7/go-polls/internal/forms"
	"github.com/freekieb7/go-polls/internal/inflight"
	"github.com/freekieb7/go-polls/internal/web/middleware"
	"github.com/freekieb7/go-polls/internal/web/view"
)

const msgBusy = "A request is already in progress. Please wait."

func (h *UIHandler) HandleSigninGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	h.Views.Render(w, r, http.StatusOK, "signin.html", view.SigninPage{
		Page: h.page(sess, "Sign in"),
		Busy: h.Guard.Pending(sess.Key(), inflight.KeySignin),
	})
}

func (h *UIHandler) HandleSigninPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}

	data := view.SigninPage{
		Page:  h.page(sess, "Sign in"),
		Email: strings.TrimSpace(r.PostFormValue("email")),
	}

	release, acquired := h.Guard.TryAcquire(sess.Key(), inflight.KeySignin)
	if !acquired {
		data.Busy = true
		data.Errors = forms.Errors{Root: msgBusy}
		h.Views.Render(w, r, http.StatusConflict, "signin.html", data)
		return
	}
	defer release()

	result, err := h.API.Signin(ctx, api.SigninRequest{
		Email:    data.Email,
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		problem := api.AsProblem(err)
		h.Logger.InfoContext(ctx, "Sign-in rejected", "type", problem.Type, "status", problem.Status)
		data.Errors = forms.FromSigninProblem(problem)
		h.Views.Render(w, r, failureStatus(problem), "signin.html", data)
		return
	}

	regenerated, err := h.SessionStore.RegenerateSession(ctx, *sess)
	if err != nil {
		h.fail(w, r, apperrors.Wrap(err, apperrors.CodeDatabaseError, "Failed to regenerate session"))
		return
	}
	*sess = regenerated

	h.Authenticator.Adopt(sess, result.Credential)
	h.Query.InvalidateSession(ctx, sess.Key())
	h.saveSession(ctx, sess)
	middleware.SetSessionCookie(w, h.Config, *sess)

	h.Logger.InfoContext(ctx, "User signed in", "session_id", sess.Key())
	http.Redirect(w, r, routeHome, http.StatusSeeOther)
}

func (h *UIHandler) HandleSignupGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	h.Views.Render(w, r, http.StatusOK, "signup.html", view.SignupPage{
		Page: h.page(sess, "Sign up"),
		Busy: h.Guard.Pending(sess.Key(), inflight.KeySignup),
	})
}

func (h *UIHandler) HandleSignupPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}

	data := view.SignupPage{
		Page:     h.page(sess, "Sign up"),
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
	}

	release, acquired := h.Guard.TryAcquire(sess.Key(), inflight.KeySignup)
	if !acquired {
		data.Busy = true
		data.Errors = forms.Errors{Root: msgBusy}
		h.Views.Render(w, r, http.StatusConflict, "signup.html", data)
		return
	}
	defer release()

	err := h.API.Signup(ctx, api.SignupRequest{
		Username: data.Username,
		Email:    data.Email,
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		problem := api.AsProblem(err)
		h.Logger.InfoContext(ctx, "Sign-up rejected", "type", problem.Type, "status", problem.Status)
		data.Errors = forms.FromSignupProblem(problem)
		h.Views.Render(w, r, failureStatus(problem), "signup.html", data)
		return
	}

	h.Logger.InfoContext(ctx, "User signed up")
	http.Redirect(w, r, routeSignin, http.StatusSeeOther)
}

// HandleLogout drops the mirrored token, signs out remotely and forgets the
// browser session.
func (h *UIHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}

	h.Authenticator.SignOut(ctx, sess)
	h.Query.InvalidateSession(ctx, sess.Key())

	if err := h.SessionStore.DeleteSession(ctx, sess.Token); err != nil {
		h.Logger.ErrorContext(ctx, "Failed to delete session during logout", "error", err)
	}
	middleware.ClearSessionCookie(w, h.Config)

	h.Logger.InfoContext(ctx, "User signed out", "session_id", sess.Key())
	http.Redirect(w, r, routeSignin, http.StatusSeeOther)
}
