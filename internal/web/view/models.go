package view

import (
	"time"

	"github.com/freekieb7/go-polls/internal/forms"
	"github.com/freekieb7/go-polls/internal/poll"
)

// Page is embedded by every page model.
type Page struct {
	Title         string
	CSRFToken     string
	Authenticated bool
}

type SigninPage struct {
	Page
	Email  string
	Errors forms.Errors
	Busy   bool
}

type SignupPage struct {
	Page
	Username string
	Email    string
	Errors   forms.Errors
	Busy     bool
}

type OptionView struct {
	ID      string
	Text    string
	Count   int
	Percent float64
}

// PollCard is a poll prepared for display with its options in position
// order.
type PollCard struct {
	ID         string
	Question   string
	Options    []OptionView
	TotalVotes int
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Expired    bool
}

func NewPollCard(p poll.Poll, now time.Time) PollCard {
	card := PollCard{
		ID:         p.ID,
		Question:   p.Question,
		TotalVotes: p.TotalVotes(),
		CreatedAt:  p.CreatedAt,
		ExpiresAt:  p.ExpiresAt,
		Expired:    p.IsExpired(now),
	}
	for _, option := range p.SortedOptions() {
		card.Options = append(card.Options, OptionView{
			ID:      option.ID,
			Text:    option.Text,
			Count:   option.Count,
			Percent: p.Percentage(option),
		})
	}
	return card
}

func NewPollCards(polls []poll.Poll, now time.Time) []PollCard {
	cards := make([]PollCard, 0, len(polls))
	for _, p := range polls {
		cards = append(cards, NewPollCard(p, now))
	}
	return cards
}

// CreateFormView is the create-poll form with its per-field messages.
type CreateFormView struct {
	Form    poll.CreateForm
	Errors  forms.Errors
	Options []CreateOptionView
}

type CreateOptionView struct {
	Index     int
	Value     string
	Error     string
	Removable bool
}

func NewCreateFormView(form poll.CreateForm, errs forms.Errors) CreateFormView {
	v := CreateFormView{Form: form, Errors: errs}
	for i, value := range form.Options {
		v.Options = append(v.Options, CreateOptionView{
			Index:     i,
			Value:     value,
			Error:     errs.Field(poll.OptionField(i)),
			Removable: form.CanRemoveOption(),
		})
	}
	return v
}

type HomePage struct {
	Page
	Polls         []PollCard
	ListError     string
	ShowCreate    bool
	Create        CreateFormView
	ConfirmID     string
	DeletePending bool
	Flash         string
	FlashError    string
}

type VotePage struct {
	Page
	PollID    string
	Poll      *PollCard
	LoadError string
	Voted     bool
	Selected  string
	Error     string
	Pending   bool
	SiteKey   string
}

// LoadingPage refreshes itself until the session settles.
type LoadingPage struct {
	Page
	Target         string
	RefreshSeconds int
}

type ErrorPage struct {
	Page
	Message string
}
