package domain

import (
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const (
	// DefaultDollarRate seeds a fresh document before the first rate refresh.
	DefaultDollarRate = 5.00

	dateLayout = "2006-01-02"
)

// Defaults returns the state a brand-new document starts from.
func Defaults(now time.Time) ApplicationState {
	today := now.Format(dateLayout)
	s := ApplicationState{
		DollarRate:   DefaultDollarRate,
		Transactions: []Transaction{},
		Accounts:     make(map[AccountID]Progress, len(Accounts)),
		Drafts:       defaultDrafts(today),
	}
	for _, id := range Accounts {
		s.Accounts[id] = defaultProgress(today)
	}
	return s
}

func defaultProgress(today string) Progress {
	return Progress{
		StartDate:    today,
		CurrentDate:  today,
		DailyHistory: []DailyRecord{},
	}
}

// Decode parses a stored document on top of Defaults so fields introduced
// after the document was written come back with their default values.
func Decode(data []byte, now time.Time) (ApplicationState, error) {
	s := Defaults(now)
	if err := s.UnmarshalJSON(data); err != nil {
		return ApplicationState{}, fmt.Errorf("decode application state: %w", err)
	}
	return s, nil
}

// Backfill fills the gaps of an already decoded state with defaults:
// missing accounts, nil lists, a zero rate and every known draft field.
func Backfill(s ApplicationState, now time.Time) ApplicationState {
	base := Defaults(now)
	out := s.Clone()
	if out.DollarRate == 0 {
		out.DollarRate = base.DollarRate
	}
	if out.Transactions == nil {
		out.Transactions = []Transaction{}
	}
	for _, id := range Accounts {
		p, ok := out.Accounts[id]
		if !ok {
			out.setAccount(id, base.Accounts[id])
			continue
		}
		if p.DailyHistory == nil {
			p.DailyHistory = []DailyRecord{}
		}
		if p.StartDate == "" {
			p.StartDate = base.Accounts[id].StartDate
		}
		if p.CurrentDate == "" {
			p.CurrentDate = base.Accounts[id].CurrentDate
		}
		out.setAccount(id, p)
	}
	out.Drafts = base.Drafts.Merge(out.Drafts)
	return out
}

// Normalize strips the advisory timestamp so it never takes part in comparisons.
func Normalize(s ApplicationState) ApplicationState {
	s.LastUpdated = 0
	return s
}

var equalOpts = []cmp.Option{cmpopts.EquateEmpty()}

// Equal reports whether two states carry the same content, ignoring
// lastUpdated and treating nil and empty collections alike.
func Equal(a, b ApplicationState) bool {
	return cmp.Equal(Normalize(a), Normalize(b), equalOpts...)
}

// Diff renders the content difference between two states, for logging.
func Diff(a, b ApplicationState) string {
	return cmp.Diff(Normalize(a), Normalize(b), equalOpts...)
}
