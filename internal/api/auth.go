package api

import (
	"context"
	"net/http"
)

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninResult carries the session token from the body and the credential
// cookie the remote set. Credential falls back to Token when no cookie came.
type SigninResult struct {
	Token      string
	Credential string
}

// MeResult is the hydration answer. Credential is the refreshed cookie, or the
// credential that was sent when the remote did not refresh it.
type MeResult struct {
	Token      string
	Credential string
}

type tokenBody struct {
	Token string `json:"token"`
}

// Signup registers a new user. The created user is not needed by any view.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/signup",
		body:   req,
	}, nil)
	return err
}

func (c *Client) Signin(ctx context.Context, req SigninRequest) (SigninResult, error) {
	var body tokenBody
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/signin",
		body:   req,
	}, &body)
	if err != nil {
		return SigninResult{}, err
	}

	result := SigninResult{Token: body.Token, Credential: body.Token}
	if credential, found := c.credentialFrom(resp); found && credential != "" {
		result.Credential = credential
	}
	return result, nil
}

// Me asks the remote who the credential belongs to.
func (c *Client) Me(ctx context.Context, credential string) (MeResult, error) {
	var body tokenBody
	resp, err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/api/auth/me",
		credential: credential,
	}, &body)
	if err != nil {
		return MeResult{}, err
	}

	result := MeResult{Token: body.Token, Credential: credential}
	if refreshed, found := c.credentialFrom(resp); found {
		result.Credential = refreshed
	}
	return result, nil
}

func (c *Client) Signout(ctx context.Context, credential string) error {
	_, err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       "/api/auth/signout",
		credential: credential,
	}, nil)
	return err
}
