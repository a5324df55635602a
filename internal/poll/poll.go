package poll

import (
	"slices"
	"time"
)

type Option struct {
	ID       string `json:"id"`
	PollID   string `json:"pollID,omitempty"`
	Text     string `json:"text"`
	Position int    `json:"position"`
	Count    int    `json:"count"`
}

type Poll struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Options   []Option  `json:"options"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsExpired reports whether the poll's expiration is strictly before now.
func (p Poll) IsExpired(now time.Time) bool {
	return p.ExpiresAt.Before(now)
}

func (p Poll) TotalVotes() int {
	total := 0
	for _, option := range p.Options {
		total += option.Count
	}
	return total
}

// Percentage returns the share of the total held by option, 0 when nobody voted.
func (p Poll) Percentage(option Option) float64 {
	total := p.TotalVotes()
	if total <= 0 {
		return 0
	}
	return float64(option.Count) / float64(total) * 100
}

// SortedOptions returns a copy of the options ordered by ascending position.
func (p Poll) SortedOptions() []Option {
	options := slices.Clone(p.Options)
	slices.SortStableFunc(options, func(a, b Option) int {
		return a.Position - b.Position
	})
	return options
}

// HasOption reports whether id names one of the poll's options.
func (p Poll) HasOption(id string) bool {
	return slices.ContainsFunc(p.Options, func(option Option) bool {
		return option.ID == id
	})
}
