package handler

import (
	"net/http"

	"github.com/freekieb7/go-polls/internal/api"
	apperrors "github.com/freekieb7/go-polls/internal/errors"
	"github.com/freekieb7/go-polls/internal/web/view"
)

const msgInternal = "Something went wrong. Please try again."

// upstreamError classifies a remote API failure that left a page without
// its data.
func upstreamError(p *api.Problem) *apperrors.AppError {
	switch p.Status {
	case http.StatusNotFound:
		return apperrors.NotFoundError(p.Title, p)
	case http.StatusServiceUnavailable:
		return apperrors.UpstreamUnavailableError(p.Title, p)
	}
	return apperrors.UpstreamError(p.Title, p)
}

// submitError classifies a remote API failure answering a submitted form.
// A request the remote refused re-renders the form as unprocessable.
func submitError(p *api.Problem) *apperrors.AppError {
	switch {
	case p.Type == api.TypeNetworkError, p.Type == api.TypeInvalidResponse:
		return apperrors.UpstreamError(p.Title, p)
	case p.Status == http.StatusNotFound:
		return upstreamError(p)
	case p.Status >= 400 && p.Status < 500:
		return apperrors.ValidationError(p.Title, p)
	}
	return upstreamError(p)
}

// failureStatus is the status a re-rendered form answers with.
func failureStatus(p *api.Problem) int {
	return apperrors.GetHTTPCode(submitError(p))
}

// fail renders the error page with the status err maps to.
func (h *UIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	h.Views.Render(w, r, apperrors.GetHTTPCode(err), "error.html", view.ErrorPage{
		Page:    view.Page{Title: "Error"},
		Message: msgInternal,
	})
}
