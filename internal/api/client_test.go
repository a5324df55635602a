package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freekieb7/go-polls/internal/breaker"
	"github.com/freekieb7/go-polls/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.API{
		BaseURL:         srv.URL,
		Timeout:         2 * time.Second,
		BreakerFailures: 3,
		BreakerReset:    time.Minute,
		CookieName:      "token",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_SigninCapturesCredentialCookie(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/signin", r.URL.Path)

		var body SigninRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body.Email)

		http.SetCookie(w, &http.Cookie{Name: "token", Value: "cookie-jwt", HttpOnly: true})
		writeJSON(w, http.StatusOK, map[string]string{"token": "body-jwt"})
	}))

	result, err := client.Signin(context.Background(), SigninRequest{Email: "a@b.c", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "body-jwt", result.Token)
	assert.Equal(t, "cookie-jwt", result.Credential)
}

func TestClient_SigninFallsBackToBodyToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"token": "body-jwt"})
	}))

	result, err := client.Signin(context.Background(), SigninRequest{})
	require.NoError(t, err)
	assert.Equal(t, "body-jwt", result.Credential)
}

func TestClient_DecodesProblems(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Problem
	}{
		{
			name:   "typed problem",
			status: http.StatusUnauthorized,
			body:   `{"type":"invalid_credentials","title":"Invalid email or password."}`,
			want:   Problem{Status: 401, Type: TypeInvalidCredentials, Title: "Invalid email or password."},
		},
		{
			name:   "validation errors",
			status: http.StatusUnprocessableEntity,
			body:   `{"type":"validation_error","errors":{"email":["Email is invalid","Email is required"]}}`,
			want: Problem{Status: 422, Type: TypeValidationError, Errors: map[string][]string{
				"email": {"Email is invalid", "Email is required"},
			}},
		},
		{
			name:   "empty body",
			status: http.StatusUnauthorized,
			body:   "",
			want:   Problem{Status: 401, Type: "http_401", Title: "Unauthorized"},
		},
		{
			name:   "not json",
			status: http.StatusBadGateway,
			body:   "<html>bad gateway</html>",
			want:   Problem{Status: 502, Type: "http_502", Title: "Bad Gateway"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				_, _ = io.WriteString(w, test.body)
			}))

			err := client.Signup(context.Background(), SignupRequest{})
			require.Error(t, err)

			p := AsProblem(err)
			assert.Equal(t, test.want.Status, p.Status)
			assert.Equal(t, test.want.Type, p.Type)
			assert.Equal(t, test.want.Title, p.Title)
			assert.Equal(t, test.want.Errors, p.Errors)
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(config.API{BaseURL: srv.URL, Timeout: time.Second}, nil)

	_, err := client.GetPoll(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, IsType(err, TypeNetworkError))
	assert.NotNil(t, AsProblem(err).Err)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusInternalServerError, map[string]string{"type": "internal_server_error"})
	}))

	for i := 0; i < 3; i++ {
		_, err := client.ListPolls(context.Background(), "cred")
		assert.True(t, IsType(err, TypeInternalServerError))
	}
	assert.Equal(t, breaker.StateOpen, client.BreakerState())

	_, err := client.ListPolls(context.Background(), "cred")
	assert.True(t, IsType(err, TypeServiceUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, AsProblem(err).Status)
	assert.Equal(t, 3, calls)
}

func TestClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	for i := 0; i < 5; i++ {
		_, _ = client.Me(context.Background(), "cred")
	}
	assert.Equal(t, breaker.StateClosed, client.BreakerState())
}

func TestClient_MeRefreshesCredential(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("token")
		require.NoError(t, err)
		assert.Equal(t, "old", cookie.Value)

		http.SetCookie(w, &http.Cookie{Name: "token", Value: "new"})
		writeJSON(w, http.StatusOK, map[string]string{"token": "jwt"})
	}))

	result, err := client.Me(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "jwt", result.Token)
	assert.Equal(t, "new", result.Credential)
}

func TestClient_MeKeepsCredentialWithoutCookie(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	}))

	result, err := client.Me(context.Background(), "cred")
	require.NoError(t, err)
	assert.Empty(t, result.Token)
	assert.Equal(t, "cred", result.Credential)
}

func TestClient_Polls(t *testing.T) {
	var created createPollBody
	var voteHeader string
	var vote map[string]string
	deleted := ""

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/polls", func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie("token")
		assert.NoError(t, err)
		_, _ = io.WriteString(w, "null")
	})
	mux.HandleFunc("POST /api/polls", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		writeJSON(w, http.StatusCreated, map[string]any{"id": "p1", "question": created.Question})
	})
	mux.HandleFunc("GET /api/polls/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie("token")
		assert.ErrorIs(t, err, http.ErrNoCookie, "public endpoint gets no credential")
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        r.PathValue("id"),
			"question":  "Q",
			"expiresAt": "2020-01-01T00:00:00Z",
			"options":   []map[string]any{{"id": "o1", "pollID": "p1", "text": "A", "position": 0, "count": 3}},
		})
	})
	mux.HandleFunc("DELETE /api/polls/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/polls/{id}/vote", func(w http.ResponseWriter, r *http.Request) {
		voteHeader = r.Header.Get(TurnstileHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&vote))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Vote recorded successfully"})
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	polls, err := client.ListPolls(ctx, "cred")
	require.NoError(t, err)
	assert.NotNil(t, polls)
	assert.Empty(t, polls)

	amsterdam := time.FixedZone("CEST", 2*60*60)
	p, err := client.CreatePoll(ctx, "cred", CreatePollRequest{
		Question:  "Lunch?",
		Options:   []string{"Pizza", "Sushi"},
		ExpiresAt: time.Date(2030, 7, 1, 12, 0, 0, 0, amsterdam),
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "2030-07-01T10:00:00Z", created.ExpiresAt)
	assert.Equal(t, []string{"Pizza", "Sushi"}, created.Options)

	got, err := client.GetPoll(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.ID)
	assert.True(t, got.IsExpired(time.Now()))
	require.Len(t, got.Options, 1)
	assert.Equal(t, 3, got.Options[0].Count)

	require.NoError(t, client.DeletePoll(ctx, "cred", "p1"))
	assert.Equal(t, "p1", deleted)

	require.NoError(t, client.Vote(ctx, "p1", VoteRequest{OptionID: "o1"}, "turnstile-token"))
	assert.Equal(t, "turnstile-token", voteHeader)
	assert.Equal(t, map[string]string{"optionId": "o1"}, vote)
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	assert.NoError(t, client.Ping(context.Background()))

	failing := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	assert.Error(t, failing.Ping(context.Background()))
}
