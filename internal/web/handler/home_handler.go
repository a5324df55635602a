package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/freekieb7/go-polls/internal/api"
	"github.com/freekieb7/go-polls/internal/cache"
	"github.com/freekieb7/go-polls/internal/forms"
	"github.com/freekieb7/go-polls/internal/inflight"
	"github.com/freekieb7/go-polls/internal/poll"
	"github.com/freekieb7/go-polls/internal/session"
	"github.com/freekieb7/go-polls/internal/web/view"
)

const (
	actionCreate       = "create"
	actionAddOption    = "add_option"
	actionRemoveOption = "remove_option:"

	flashHome      = "home"
	flashHomeError = "home_error"

	msgListFailed   = "Failed to load polls. Please try again later."
	msgCreateFailed = "Failed to create poll. Please try again."
	msgDeleteFailed = "Failed to delete poll. Please try again."
	msgDeleteBusy   = "A delete is already in progress."
	msgPollCreated  = "Poll created."
	msgPollDeleted  = "Poll deleted."
)

// HandleHome renders the signed-in user's polls.
func (h *UIHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}

	data := h.homePage(sess)
	data.Flash, _ = sess.PopFlash(flashHome)
	data.FlashError, _ = sess.PopFlash(flashHomeError)
	if data.Flash != "" || data.FlashError != "" {
		h.saveSession(ctx, sess)
	}

	query := r.URL.Query()
	if query.Get("create") == "1" {
		data.ShowCreate = true
		data.Create = view.NewCreateFormView(poll.NewCreateForm(h.now().In(h.location())), forms.Errors{})
		h.Views.Render(w, r, http.StatusOK, "home.html", data)
		return
	}
	data.ConfirmID = query.Get("confirm")

	h.loadPolls(ctx, sess, &data)
	h.Views.Render(w, r, http.StatusOK, "home.html", data)
}

// HandleCreatePoll handles every button of the create form. Option edits
// re-render the form; only the create action reaches the remote API.
func (h *UIHandler) HandleCreatePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}

	form := poll.CreateForm{
		Question:  r.PostFormValue("question"),
		Options:   r.PostForm["options"],
		ExpiresAt: r.PostFormValue("expiresAt"),
	}
	data := h.homePage(sess)
	data.ShowCreate = true

	action := r.PostFormValue("action")
	switch {
	case action == actionAddOption:
		form.AddOption()
		data.Create = view.NewCreateFormView(form, forms.Errors{})
		h.Views.Render(w, r, http.StatusOK, "home.html", data)
		return
	case strings.HasPrefix(action, actionRemoveOption):
		if i, err := strconv.Atoi(strings.TrimPrefix(action, actionRemoveOption)); err == nil {
			form.RemoveOption(i)
		}
		data.Create = view.NewCreateFormView(form, forms.Errors{})
		h.Views.Render(w, r, http.StatusOK, "home.html", data)
		return
	}

	input, fieldErrs := form.Validate(h.location())
	if len(fieldErrs) > 0 {
		data.Create = view.NewCreateFormView(form, forms.FromFields(fieldErrs))
		h.Views.Render(w, r, http.StatusUnprocessableEntity, "home.html", data)
		return
	}

	created, err := h.API.CreatePoll(ctx, sess.Credential, api.CreatePollRequest{
		Question:  input.Question,
		Options:   input.Options,
		ExpiresAt: input.ExpiresAt,
	})
	if err != nil {
		problem := api.AsProblem(err)
		h.Logger.ErrorContext(ctx, "Failed to create poll", "type", problem.Type, "status", problem.Status, "error", err)
		data.Create = view.NewCreateFormView(form, forms.FromProblem(problem, msgCreateFailed))
		h.Views.Render(w, r, failureStatus(problem), "home.html", data)
		return
	}

	h.Query.Invalidate(ctx, cache.UserPollsKey(sess.Key()))
	sess.SetFlash(flashHome, msgPollCreated)
	h.saveSession(ctx, sess)

	h.Logger.InfoContext(ctx, "Poll created", "poll_id", created.ID)
	http.Redirect(w, r, routeHome, http.StatusSeeOther)
}

// HandleDeletePoll deletes a poll after the confirmation step. At most one
// delete runs per session.
func (h *UIHandler) HandleDeletePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	pollID := chi.URLParam(r, "pollId")

	release, acquired := h.Guard.TryAcquire(sess.Key(), inflight.KeyDeletePoll)
	if !acquired {
		sess.SetFlash(flashHomeError, msgDeleteBusy)
		h.saveSession(ctx, sess)
		http.Redirect(w, r, routeHome, http.StatusSeeOther)
		return
	}
	defer release()

	if err := h.API.DeletePoll(ctx, sess.Credential, pollID); err != nil {
		problem := api.AsProblem(err)
		h.Logger.WarnContext(ctx, "Failed to delete poll", "poll_id", pollID, "type", problem.Type, "error", err)
		msg := forms.FromProblem(problem, msgDeleteFailed).Root
		if msg == "" {
			msg = msgDeleteFailed
		}
		sess.SetFlash(flashHomeError, msg)
		h.saveSession(ctx, sess)
		http.Redirect(w, r, routeHome, http.StatusSeeOther)
		return
	}

	h.Query.Invalidate(ctx, cache.UserPollsKey(sess.Key()), cache.PollKey(pollID))
	sess.SetFlash(flashHome, msgPollDeleted)
	h.saveSession(ctx, sess)

	h.Logger.InfoContext(ctx, "Poll deleted", "poll_id", pollID)
	http.Redirect(w, r, routeHome, http.StatusSeeOther)
}

func (h *UIHandler) homePage(sess *session.Session) view.HomePage {
	page := h.page(sess, "My Polls")
	page.Authenticated = true
	return view.HomePage{
		Page:          page,
		DeletePending: h.Guard.Pending(sess.Key(), inflight.KeyDeletePoll),
	}
}

// loadPolls fills the list through the query cache. A failure is not
// retried; the view shows it inline.
func (h *UIHandler) loadPolls(ctx context.Context, sess *session.Session, data *view.HomePage) {
	credential := sess.Credential
	polls, err := cache.Fetch(ctx, h.Query, cache.UserPollsKey(sess.Key()), h.Config.Cache.QueryTTL,
		func(ctx context.Context) ([]poll.Poll, error) {
			return h.API.ListPolls(ctx, credential)
		})
	if err != nil {
		h.Logger.WarnContext(ctx, "Failed to load polls", "error", err)
		data.ListError = msgListFailed
		return
	}
	data.Polls = view.NewPollCards(polls, h.now())
}
