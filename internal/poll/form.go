package poll

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinOptions        = 2
	MaxOptions        = 6
	MaxQuestionLength = 255

	// DateTimeLocalLayout is the value format of an HTML datetime-local input.
	DateTimeLocalLayout = "2006-01-02T15:04"

	DefaultLifetime = 24 * time.Hour
)

// FieldErrors maps a form field to the message shown next to it.
type FieldErrors map[string]string

// CreateForm is the state of the create-poll form as the browser submitted it.
type CreateForm struct {
	Question  string
	Options   []string
	ExpiresAt string
}

// CreateInput is a validated create-poll submission.
type CreateInput struct {
	Question  string
	Options   []string
	ExpiresAt time.Time
}

// NewCreateForm returns an empty form with two options, expiring 24 hours
// after now.
func NewCreateForm(now time.Time) CreateForm {
	return CreateForm{
		Options:   make([]string, MinOptions),
		ExpiresAt: now.Add(DefaultLifetime).Format(DateTimeLocalLayout),
	}
}

func (f CreateForm) CanAddOption() bool {
	return len(f.Options) < MaxOptions
}

func (f CreateForm) CanRemoveOption() bool {
	return len(f.Options) > MinOptions
}

func (f *CreateForm) AddOption() {
	if f.CanAddOption() {
		f.Options = append(f.Options, "")
	}
}

func (f *CreateForm) RemoveOption(i int) {
	if !f.CanRemoveOption() || i < 0 || i >= len(f.Options) {
		return
	}
	f.Options = append(f.Options[:i:i], f.Options[i+1:]...)
}

// Validate checks the form and converts the expiration, interpreted in loc,
// to an absolute instant. Options keep their submitted order.
func (f CreateForm) Validate(loc *time.Location) (CreateInput, FieldErrors) {
	errs := FieldErrors{}
	input := CreateInput{
		Question: strings.TrimSpace(f.Question),
		Options:  make([]string, len(f.Options)),
	}

	switch {
	case input.Question == "":
		errs["question"] = "Question is required"
	case utf8.RuneCountInString(input.Question) > MaxQuestionLength:
		errs["question"] = "Question cannot be longer than 255 characters"
	}

	switch {
	case len(f.Options) < MinOptions:
		errs["options"] = "At least 2 options are required"
	case len(f.Options) > MaxOptions:
		errs["options"] = "A maximum of 6 options are allowed"
	}

	for i, option := range f.Options {
		input.Options[i] = strings.TrimSpace(option)
		if input.Options[i] == "" {
			errs[OptionField(i)] = "Option is required"
		}
	}

	if strings.TrimSpace(f.ExpiresAt) == "" {
		errs["expiresAt"] = "Expiration time is required"
	} else if expiresAt, err := parseExpiration(f.ExpiresAt, loc); err != nil {
		errs["expiresAt"] = "Expiration time is invalid"
	} else {
		input.ExpiresAt = expiresAt
	}

	if len(errs) > 0 {
		return CreateInput{}, errs
	}
	return input, nil
}

// OptionField is the field key of the i-th option.
func OptionField(i int) string {
	return "options." + strconv.Itoa(i)
}

func parseExpiration(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(DateTimeLocalLayout, value, loc); err == nil {
		return t.UTC(), nil
	}
	// Browsers may include seconds in datetime-local values
	if t, err := time.ParseInLocation(DateTimeLocalLayout+":05", value, loc); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
