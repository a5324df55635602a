package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/freekieb7/go-polls/internal/poll"
)

// TurnstileHeader carries the challenge widget's verification token.
const TurnstileHeader = "X-CF-Turnstile-Token"

type CreatePollRequest struct {
	Question  string
	Options   []string
	ExpiresAt time.Time
}

type createPollBody struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	ExpiresAt string   `json:"expiresAt"`
}

type VoteRequest struct {
	OptionID string `json:"optionId"`
}

// ListPolls returns the polls owned by the credential's user.
func (c *Client) ListPolls(ctx context.Context, credential string) ([]poll.Poll, error) {
	var polls []poll.Poll
	if _, err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/api/polls",
		credential: credential,
	}, &polls); err != nil {
		return nil, err
	}
	if polls == nil {
		polls = []poll.Poll{}
	}
	return polls, nil
}

func (c *Client) CreatePoll(ctx context.Context, credential string, req CreatePollRequest) (poll.Poll, error) {
	var created poll.Poll
	_, err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       "/api/polls",
		credential: credential,
		body: createPollBody{
			Question:  req.Question,
			Options:   req.Options,
			ExpiresAt: req.ExpiresAt.UTC().Format(time.RFC3339),
		},
	}, &created)
	return created, err
}

// GetPoll is public and sends no credential.
func (c *Client) GetPoll(ctx context.Context, id string) (poll.Poll, error) {
	var p poll.Poll
	_, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/polls/" + url.PathEscape(id),
	}, &p)
	return p, err
}

func (c *Client) DeletePoll(ctx context.Context, credential, id string) error {
	_, err := c.do(ctx, request{
		method:     http.MethodDelete,
		path:       "/api/polls/" + url.PathEscape(id),
		credential: credential,
	}, nil)
	return err
}

// Vote records a vote for req.OptionID. verificationToken is the single-use
// token issued by the challenge widget.
func (c *Client) Vote(ctx context.Context, id string, req VoteRequest, verificationToken string) error {
	header := http.Header{}
	header.Set(TurnstileHeader, verificationToken)

	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/polls/" + url.PathEscape(id) + "/vote",
		header: header,
		body:   req,
	}, nil)
	return err
}
