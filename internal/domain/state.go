package domain

import (
	"encoding/json"
	"fmt"
)

// AccountID names one of the tracked forex sub-accounts.
type AccountID string

const (
	AccountJAR  AccountID = "jar"
	AccountJM   AccountID = "jm"
	AccountJ200 AccountID = "j200"
)

// Accounts lists the tracked sub-accounts in display order.
var Accounts = []AccountID{AccountJAR, AccountJM, AccountJ200}

// documentSuffix is appended to every progress key of an account in the
// stored document, e.g. startDate_jm.
var documentSuffix = map[AccountID]string{
	AccountJAR:  "",
	AccountJM:   "_jm",
	AccountJ200: "_j200",
}

// ParseAccount validates an account identifier.
func ParseAccount(s string) (AccountID, error) {
	id := AccountID(s)
	if _, ok := documentSuffix[id]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAccount, s)
	}
	return id, nil
}

// Progress tracks the growth of one sub-account.
type Progress struct {
	StartDate         string        `json:"startDate"`
	StartDepositUSD   float64       `json:"startDepositUsd"`
	CurrentDate       string        `json:"currentDate"`
	CurrentBalanceUSD float64       `json:"currentBalanceUsd"`
	DailyHistory      []DailyRecord `json:"dailyHistory"`
	ValuationBaseBRL  float64       `json:"valuationBaseBrl"`
}

// ApplicationState is the single document shared by every client.
type ApplicationState struct {
	DollarRate   float64
	Transactions []Transaction
	Accounts     map[AccountID]Progress
	Drafts       Drafts
	// LastUpdated is epoch milliseconds. It is advisory and never takes part
	// in equality.
	LastUpdated int64
}

// Account returns the progress of one sub-account.
func (s *ApplicationState) Account(id AccountID) (Progress, error) {
	if _, ok := documentSuffix[id]; !ok {
		return Progress{}, fmt.Errorf("%w: %q", ErrUnknownAccount, id)
	}
	return s.Accounts[id], nil
}

func (s *ApplicationState) setAccount(id AccountID, p Progress) {
	if s.Accounts == nil {
		s.Accounts = make(map[AccountID]Progress, len(Accounts))
	}
	s.Accounts[id] = p
}

// Clone returns a deep copy that shares no slices or maps with s.
func (s ApplicationState) Clone() ApplicationState {
	out := s
	if s.Transactions != nil {
		out.Transactions = append([]Transaction(nil), s.Transactions...)
	}
	if s.Accounts != nil {
		out.Accounts = make(map[AccountID]Progress, len(s.Accounts))
		for id, p := range s.Accounts {
			if p.DailyHistory != nil {
				p.DailyHistory = cloneRecords(p.DailyHistory)
			}
			out.Accounts[id] = p
		}
	}
	out.Drafts = s.Drafts.Clone()
	return out
}

func cloneRecords(in []DailyRecord) []DailyRecord {
	out := make([]DailyRecord, len(in))
	for i, r := range in {
		if r.InvestedUSD != nil {
			v := *r.InvestedUSD
			r.InvestedUSD = &v
		}
		out[i] = r
	}
	return out
}

// MarshalJSON writes the flat document layout used by every client.
// Keys are emitted in sorted order so the encoding is stable.
func (s ApplicationState) MarshalJSON() ([]byte, error) {
	doc := map[string]interface{}{
		"dollarRate":   s.DollarRate,
		"transactions": nonNilTransactions(s.Transactions),
		"drafts":       s.Drafts,
		"lastUpdated":  s.LastUpdated,
	}
	for _, id := range Accounts {
		p := s.Accounts[id]
		sfx := documentSuffix[id]
		history := p.DailyHistory
		if history == nil {
			history = []DailyRecord{}
		}
		doc["startDate"+sfx] = p.StartDate
		doc["startDepositUsd"+sfx] = p.StartDepositUSD
		doc["currentDate"+sfx] = p.CurrentDate
		doc["currentBalanceUsd"+sfx] = p.CurrentBalanceUSD
		doc["dailyHistory"+sfx] = history
		doc["valuationBaseBrl"+sfx] = p.ValuationBaseBRL
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes onto the receiver's existing values: keys absent
// from data keep whatever the receiver already holds. Decoding onto
// Defaults is how older documents get backfilled.
func (s *ApplicationState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decode := func(key string, dst interface{}) error {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return nil
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		return nil
	}

	if err := decode("dollarRate", &s.DollarRate); err != nil {
		return err
	}
	if present(raw, "transactions") {
		var txs []Transaction
		if err := decode("transactions", &txs); err != nil {
			return err
		}
		s.Transactions = txs
	}
	// lastUpdated is advisory; older writers stored it as a float or a
	// server timestamp, so anything that is not a number is ignored.
	var lastUpdated float64
	if err := decode("lastUpdated", &lastUpdated); err == nil && lastUpdated > 0 {
		s.LastUpdated = int64(lastUpdated)
	}

	var drafts Drafts
	if err := decode("drafts", &drafts); err != nil {
		return err
	}
	if drafts != nil {
		s.Drafts = s.Drafts.Merge(drafts)
	}

	for _, id := range Accounts {
		p := s.Accounts[id]
		sfx := documentSuffix[id]
		if present(raw, "dailyHistory"+sfx) {
			// Never decode into a backing array another state may share.
			p.DailyHistory = nil
		}
		fields := []struct {
			key string
			dst interface{}
		}{
			{"startDate", &p.StartDate},
			{"startDepositUsd", &p.StartDepositUSD},
			{"currentDate", &p.CurrentDate},
			{"currentBalanceUsd", &p.CurrentBalanceUSD},
			{"dailyHistory", &p.DailyHistory},
			{"valuationBaseBrl", &p.ValuationBaseBRL},
		}
		for _, f := range fields {
			if err := decode(f.key+sfx, f.dst); err != nil {
				return err
			}
		}
		s.setAccount(id, p)
	}
	return nil
}

func present(raw map[string]json.RawMessage, key string) bool {
	v, ok := raw[key]
	return ok && string(v) != "null"
}

func nonNilTransactions(in []Transaction) []Transaction {
	if in == nil {
		return []Transaction{}
	}
	return in
}
