package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Problem types reported by the remote API, plus the ones the client
// synthesizes for failures that never produced a JSON body.
const (
	TypeInvalidCredentials          = "invalid_credentials"
	TypeEmailAlreadyExists          = "email_already_exists"
	TypeUsernameAlreadyExists       = "username_already_exists"
	TypeValidationError             = "validation_error"
	TypeInvalidRequestBody          = "invalid_request_body"
	TypeInvalidRequest              = "invalid_request"
	TypeNotFound                    = "not_found"
	TypeMissingTurnstileToken       = "missing_turnstile_token"
	TypeTurnstileVerificationFailed = "turnstile_verification_failed"
	TypeInternalServerError         = "internal_server_error"

	TypeNetworkError       = "network_error"
	TypeServiceUnavailable = "service_unavailable"
	TypeInvalidResponse    = "invalid_response"
)

// Problem is the decoded form of every failed remote call.
type Problem struct {
	Status int                 `json:"-"`
	Type   string              `json:"type"`
	Title  string              `json:"title,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
	Err    error               `json:"-"`
}

func (p *Problem) Error() string {
	msg := p.Type
	if p.Title != "" {
		msg += ": " + p.Title
	}
	if p.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, p.Status)
	}
	if p.Err != nil {
		msg += ": " + p.Err.Error()
	}
	return msg
}

func (p *Problem) Unwrap() error {
	return p.Err
}

// FirstError returns the first message reported for field.
func (p *Problem) FirstError(field string) string {
	if messages := p.Errors[field]; len(messages) > 0 {
		return messages[0]
	}
	return ""
}

// AsProblem returns the Problem carried by err. Errors that are not a Problem
// are reported as network errors.
func AsProblem(err error) *Problem {
	if err == nil {
		return nil
	}
	var p *Problem
	if errors.As(err, &p) {
		return p
	}
	return &Problem{Type: TypeNetworkError, Title: "Network error", Err: err}
}

// IsType reports whether err is a Problem of the given type.
func IsType(err error, problemType string) bool {
	var p *Problem
	return errors.As(err, &p) && p.Type == problemType
}

// decodeProblem builds a Problem from a non-2xx response body. Bodies that are
// empty or carry no type fall back to http_<status>.
func decodeProblem(status int, body []byte) *Problem {
	p := &Problem{}
	if len(body) > 0 {
		_ = json.Unmarshal(body, p)
	}
	p.Status = status
	if p.Type == "" {
		p.Type = "http_" + strconv.Itoa(status)
		if p.Title == "" {
			p.Title = http.StatusText(status)
		}
	}
	return p
}
