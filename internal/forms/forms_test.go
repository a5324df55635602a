package forms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freekieb7/go-polls/internal/api"
)

func TestFromSigninProblem(t *testing.T) {
	t.Run("invalid credentials set root only", func(t *testing.T) {
		errs := FromSigninProblem(&api.Problem{
			Type:   api.TypeInvalidCredentials,
			Title:  "Invalid email or password.",
			Errors: map[string][]string{"email": {"ignored"}},
		})

		assert.Equal(t, "Invalid email or password", errs.Root)
		assert.Empty(t, errs.Fields)
	})

	t.Run("validation error shows first message per field", func(t *testing.T) {
		errs := FromSigninProblem(&api.Problem{
			Type: api.TypeValidationError,
			Errors: map[string][]string{
				"email":    {"Email is invalid", "Email is too long"},
				"password": {"Password is required"},
				"empty":    {},
			},
		})

		assert.Empty(t, errs.Root)
		assert.Equal(t, map[string]string{
			"email":    "Email is invalid",
			"password": "Password is required",
		}, errs.Fields)
	})

	t.Run("validation error without field messages sets root", func(t *testing.T) {
		errs := FromSigninProblem(&api.Problem{Type: api.TypeValidationError, Title: "Request validation failed."})
		assert.Equal(t, "Request validation failed.", errs.Root)
		assert.Empty(t, errs.Fields)

		errs = FromSigninProblem(&api.Problem{Type: api.TypeValidationError, Errors: map[string][]string{"email": {}}})
		assert.Equal(t, "An error occurred during signin", errs.Root)
		assert.False(t, errs.Empty())
	})

	t.Run("fallback uses server title", func(t *testing.T) {
		errs := FromSigninProblem(&api.Problem{Type: api.TypeInternalServerError, Title: "We could not process your request."})
		assert.Equal(t, "We could not process your request.", errs.Root)
	})

	t.Run("fallback without title", func(t *testing.T) {
		errs := FromSigninProblem(&api.Problem{Type: "http_500", Status: 500, Title: "Internal Server Error"})
		assert.Equal(t, "An error occurred during signin", errs.Root)

		errs = FromSigninProblem(api.AsProblem(errors.New("connection refused")))
		assert.Equal(t, "An error occurred during signin", errs.Root)
	})
}

func TestFromSignupProblem(t *testing.T) {
	tests := []struct {
		name    string
		problem *api.Problem
		want    Errors
	}{
		{
			name:    "email already exists",
			problem: &api.Problem{Type: api.TypeEmailAlreadyExists},
			want:    Errors{Fields: map[string]string{"email": "Email already exists"}},
		},
		{
			name:    "username already exists",
			problem: &api.Problem{Type: api.TypeUsernameAlreadyExists},
			want:    Errors{Fields: map[string]string{"username": "Username already exists"}},
		},
		{
			name: "validation error",
			problem: &api.Problem{Type: api.TypeValidationError, Errors: map[string][]string{
				"username": {"Username must be at least 3 characters"},
			}},
			want: Errors{Fields: map[string]string{"username": "Username must be at least 3 characters"}},
		},
		{
			name:    "validation error without field messages",
			problem: &api.Problem{Type: api.TypeValidationError, Title: "Request validation failed."},
			want:    Errors{Root: "Request validation failed."},
		},
		{
			name:    "validation error with empty messages",
			problem: &api.Problem{Type: api.TypeValidationError, Errors: map[string][]string{"email": {}}},
			want:    Errors{Root: "An error occurred during signup"},
		},
		{
			name:    "unknown",
			problem: &api.Problem{Type: "something_else"},
			want:    Errors{Root: "An error occurred during signup"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, FromSignupProblem(test.problem))
		})
	}
}

func TestFromProblem(t *testing.T) {
	errs := FromProblem(&api.Problem{Type: api.TypeValidationError, Errors: map[string][]string{
		"question": {"Question is required"},
	}}, "Failed to create poll")
	assert.Equal(t, "Question is required", errs.Field("question"))
	assert.Empty(t, errs.Root)

	errs = FromProblem(&api.Problem{Type: api.TypeValidationError}, "Failed to create poll")
	assert.Equal(t, "Failed to create poll", errs.Root)

	errs = FromProblem(&api.Problem{Type: api.TypeTurnstileVerificationFailed, Title: "Verification failed"}, "Failed to vote")
	assert.Equal(t, "Verification failed", errs.Root)

	assert.True(t, FromProblem(nil, "x").Empty())
}
