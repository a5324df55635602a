// Package forms maps remote API problems to the messages a form shows.
package forms

import (
	"strings"

	"github.com/freekieb7/go-polls/internal/api"
)

// Errors is what a form renders: one message above the form and one message
// per field.
type Errors struct {
	Root   string
	Fields map[string]string
}

func (e Errors) Empty() bool {
	return e.Root == "" && len(e.Fields) == 0
}

// Field returns the message for name, or "".
func (e Errors) Field(name string) string {
	return e.Fields[name]
}

// FromFields wraps client-side validation messages.
func FromFields(fields map[string]string) Errors {
	return Errors{Fields: fields}
}

func FromSigninProblem(p *api.Problem) Errors {
	if p == nil {
		return Errors{}
	}
	switch p.Type {
	case api.TypeInvalidCredentials:
		return Errors{Root: "Invalid email or password"}
	case api.TypeValidationError:
		if fields := firstMessages(p); len(fields) > 0 {
			return Errors{Fields: fields}
		}
	}
	return Errors{Root: titleOr(p, "An error occurred during signin")}
}

func FromSignupProblem(p *api.Problem) Errors {
	if p == nil {
		return Errors{}
	}
	switch p.Type {
	case api.TypeEmailAlreadyExists:
		return Errors{Fields: map[string]string{"email": "Email already exists"}}
	case api.TypeUsernameAlreadyExists:
		return Errors{Fields: map[string]string{"username": "Username already exists"}}
	case api.TypeValidationError:
		if fields := firstMessages(p); len(fields) > 0 {
			return Errors{Fields: fields}
		}
	}
	return Errors{Root: titleOr(p, "An error occurred during signup")}
}

// FromProblem is the mapping shared by the poll forms. Validation errors keep
// their fields; anything else becomes a root message.
func FromProblem(p *api.Problem, fallback string) Errors {
	if p == nil {
		return Errors{}
	}
	if p.Type == api.TypeValidationError {
		if fields := firstMessages(p); len(fields) > 0 {
			return Errors{Fields: fields}
		}
	}
	return Errors{Root: titleOr(p, fallback)}
}

// firstMessages keeps the first message of every field that has one.
func firstMessages(p *api.Problem) map[string]string {
	fields := make(map[string]string, len(p.Errors))
	for field := range p.Errors {
		if msg := p.FirstError(field); msg != "" {
			fields[field] = msg
		}
	}
	return fields
}

// titleOr returns the server title. Titles synthesized by the client for
// network and status-only failures are replaced by fallback.
func titleOr(p *api.Problem, fallback string) string {
	switch {
	case p.Title == "":
		return fallback
	case p.Type == api.TypeNetworkError, p.Type == api.TypeInvalidResponse:
		return fallback
	case strings.HasPrefix(p.Type, "http_"):
		return fallback
	}
	return p.Title
}
