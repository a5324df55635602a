package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/freekieb7/go-polls/internal/api"
	"github.com/freekieb7/go-polls/internal/cache"
	apperrors "github.com/freekieb7/go-polls/internal/errors"
	"github.com/freekieb7/go-polls/internal/forms"
	"github.com/freekieb7/go-polls/internal/inflight"
	"github.com/freekieb7/go-polls/internal/poll"
	"github.com/freekieb7/go-polls/internal/session"
	"github.com/freekieb7/go-polls/internal/web/view"
)

const (
	// TurnstileField is the form field the challenge widget writes its
	// token to.
	TurnstileField = "cf-turnstile-response"

	msgLoadPollFailed = "Failed to load poll. Please try again later."
	msgVoteFailed     = "Failed to submit vote. Please try again."
	msgSelectOption   = "Please select an option."
	msgVerifyFirst    = "Please complete the verification."
	msgVoteBusy       = "Your vote is being submitted."
)

func votedFlash(pollID string) string {
	return "voted:" + pollID
}

// HandleVoteGet renders the public ballot of one poll.
func (h *UIHandler) HandleVoteGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	pollID := chi.URLParam(r, "pollId")

	data := h.votePage(sess, pollID)
	if _, voted := sess.PopFlash(votedFlash(pollID)); voted {
		data.Voted = true
		h.saveSession(ctx, sess)
	}

	p, err := h.loadPoll(ctx, pollID)
	if err != nil {
		problem := api.AsProblem(err)
		h.Logger.WarnContext(ctx, "Failed to load poll", "poll_id", pollID, "type", problem.Type, "error", err)
		data.LoadError = msgLoadPollFailed
		h.Views.Render(w, r, apperrors.GetHTTPCode(upstreamError(problem)), "vote.html", data)
		return
	}

	card := view.NewPollCard(p, h.now())
	data.Poll = &card
	h.Views.Render(w, r, http.StatusOK, "vote.html", data)
}

// HandleVotePost submits a ballot. Submissions that cannot succeed are
// refused here and never reach the remote API.
func (h *UIHandler) HandleVotePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	pollID := chi.URLParam(r, "pollId")

	data := h.votePage(sess, pollID)
	data.Selected = strings.TrimSpace(r.PostFormValue("optionId"))
	verification := strings.TrimSpace(r.PostFormValue(TurnstileField))

	p, err := h.loadPoll(ctx, pollID)
	if err != nil {
		problem := api.AsProblem(err)
		h.Logger.WarnContext(ctx, "Failed to load poll for vote", "poll_id", pollID, "type", problem.Type, "error", err)
		data.LoadError = msgLoadPollFailed
		h.Views.Render(w, r, apperrors.GetHTTPCode(upstreamError(problem)), "vote.html", data)
		return
	}
	card := view.NewPollCard(p, h.now())
	data.Poll = &card

	switch {
	case card.Expired:
		h.Views.Render(w, r, http.StatusUnprocessableEntity, "vote.html", data)
		return
	case data.Selected == "" || !p.HasOption(data.Selected):
		data.Selected = ""
		data.Error = msgSelectOption
		h.Views.Render(w, r, http.StatusUnprocessableEntity, "vote.html", data)
		return
	case verification == "":
		data.Error = msgVerifyFirst
		h.Views.Render(w, r, http.StatusUnprocessableEntity, "vote.html", data)
		return
	}

	release, acquired := h.Guard.TryAcquire(sess.Key(), inflight.VoteKey(pollID))
	if !acquired {
		data.Pending = true
		data.Error = msgVoteBusy
		h.Views.Render(w, r, http.StatusConflict, "vote.html", data)
		return
	}
	defer release()

	if err := h.API.Vote(ctx, pollID, api.VoteRequest{OptionID: data.Selected}, verification); err != nil {
		problem := api.AsProblem(err)
		h.Logger.WarnContext(ctx, "Vote rejected", "poll_id", pollID, "type", problem.Type, "status", problem.Status)
		errs := forms.FromProblem(problem, msgVoteFailed)
		data.Error = errs.Root
		if data.Error == "" {
			data.Error = msgVoteFailed
		}
		h.Views.Render(w, r, failureStatus(problem), "vote.html", data)
		return
	}

	h.Query.Invalidate(ctx, cache.PollKey(pollID))
	sess.SetFlash(votedFlash(pollID), "1")
	h.saveSession(ctx, sess)

	h.Logger.InfoContext(ctx, "Vote submitted", "poll_id", pollID)
	http.Redirect(w, r, "/polls/"+url.PathEscape(pollID), http.StatusSeeOther)
}

func (h *UIHandler) votePage(sess *session.Session, pollID string) view.VotePage {
	return view.VotePage{
		Page:    h.page(sess, "Vote"),
		PollID:  pollID,
		SiteKey: h.Config.Turnstile.SiteKey,
		Pending: h.Guard.Pending(sess.Key(), inflight.VoteKey(pollID)),
	}
}

func (h *UIHandler) loadPoll(ctx context.Context, pollID string) (poll.Poll, error) {
	return cache.Fetch(ctx, h.Query, cache.PollKey(pollID), h.Config.Cache.PollTTL,
		func(ctx context.Context) (poll.Poll, error) {
			return h.API.GetPoll(ctx, pollID)
		})
}
