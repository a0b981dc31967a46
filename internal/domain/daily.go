package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DailyRecord is a point-in-time snapshot of one sub-account.
type DailyRecord struct {
	Date       string  `json:"date"`
	BalanceUSD float64 `json:"balanceUsd"`
	Rate       float64 `json:"rate"`
	// CentsBRL is the derived score: profit in USD cents valued in BRL.
	CentsBRL    float64  `json:"centsBrl"`
	InvestedUSD *float64 `json:"investedUsd,omitempty"`
}

// Score values a balance's profit over the invested amount, read as
// cents, in local currency.
func Score(balanceUSD, startDepositUSD, rate decimal.Decimal) decimal.Decimal {
	return balanceUSD.Sub(startDepositUSD).Div(decimal.NewFromInt(100)).Mul(rate)
}

// RegisterDay snapshots the account's current balance under its current
// date. A date that already has a record is only overwritten when confirm
// is set; the entry is replaced in place.
func (s *ApplicationState) RegisterDay(id AccountID, confirm bool) (DailyRecord, error) {
	p, err := s.Account(id)
	if err != nil {
		return DailyRecord{}, err
	}
	if _, err := time.Parse(dateLayout, p.CurrentDate); err != nil {
		return DailyRecord{}, fmt.Errorf("%w: %q", ErrInvalidDate, p.CurrentDate)
	}

	invested := p.StartDepositUSD
	rec := DailyRecord{
		Date:       p.CurrentDate,
		BalanceUSD: p.CurrentBalanceUSD,
		Rate:       s.DollarRate,
		CentsBRL: Score(
			decimal.NewFromFloat(p.CurrentBalanceUSD),
			decimal.NewFromFloat(p.StartDepositUSD),
			decimal.NewFromFloat(s.DollarRate),
		).InexactFloat64(),
		InvestedUSD: &invested,
	}

	history := cloneRecords(p.DailyHistory)
	replaced := false
	for i := range history {
		if history[i].Date == rec.Date {
			if !confirm {
				return DailyRecord{}, fmt.Errorf("%w: %s", ErrDailyRecordExists, rec.Date)
			}
			history[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		history = append(history, rec)
	}
	sortHistory(history)

	p.DailyHistory = history
	s.setAccount(id, p)
	return rec, nil
}

// DeleteDailyRecord removes the snapshot registered for date.
func (s *ApplicationState) DeleteDailyRecord(id AccountID, date string) error {
	p, err := s.Account(id)
	if err != nil {
		return err
	}
	kept := make([]DailyRecord, 0, len(p.DailyHistory))
	for _, r := range p.DailyHistory {
		if r.Date != date {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(p.DailyHistory) {
		return fmt.Errorf("%w: %s", ErrDailyRecordNotFound, date)
	}
	p.DailyHistory = kept
	s.setAccount(id, p)
	return nil
}

// AccountPatch carries the editable fields of a progress form. Nil fields
// are left alone.
type AccountPatch struct {
	StartDate         *string  `json:"startDate,omitempty"`
	StartDepositUSD   *float64 `json:"startDepositUsd,omitempty"`
	CurrentDate       *string  `json:"currentDate,omitempty"`
	CurrentBalanceUSD *float64 `json:"currentBalanceUsd,omitempty"`
	ValuationBaseBRL  *float64 `json:"valuationBaseBrl,omitempty"`
}

// UpdateAccount applies a patch to one account.
func (s *ApplicationState) UpdateAccount(id AccountID, patch AccountPatch) error {
	p, err := s.Account(id)
	if err != nil {
		return err
	}
	for _, d := range []*string{patch.StartDate, patch.CurrentDate} {
		if d == nil {
			continue
		}
		if _, err := time.Parse(dateLayout, *d); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, *d)
		}
	}
	if patch.StartDate != nil {
		p.StartDate = *patch.StartDate
	}
	if patch.StartDepositUSD != nil {
		p.StartDepositUSD = *patch.StartDepositUSD
	}
	if patch.CurrentDate != nil {
		p.CurrentDate = *patch.CurrentDate
	}
	if patch.CurrentBalanceUSD != nil {
		p.CurrentBalanceUSD = *patch.CurrentBalanceUSD
	}
	if patch.ValuationBaseBRL != nil {
		p.ValuationBaseBRL = *patch.ValuationBaseBRL
	}
	s.setAccount(id, p)
	return nil
}

// AddToStartDeposit books the amount typed in the account's additional
// deposit draft onto both the invested total and the current balance, then
// clears the draft.
func (s *ApplicationState) AddToStartDeposit(id AccountID) (decimal.Decimal, error) {
	p, err := s.Account(id)
	if err != nil {
		return decimal.Zero, err
	}
	bucket := ProgressDraftBucket(id)
	amount := ParseCurrency(s.Drafts.Get(bucket, DraftAdditionalDeposit))
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	p.StartDepositUSD = decimal.NewFromFloat(p.StartDepositUSD).Add(amount).InexactFloat64()
	p.CurrentBalanceUSD = decimal.NewFromFloat(p.CurrentBalanceUSD).Add(amount).InexactFloat64()
	s.setAccount(id, p)
	if err := s.Drafts.Set(bucket, DraftAdditionalDeposit, ""); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// sortHistory orders records newest first. Dates are YYYY-MM-DD so string
// order is chronological.
func sortHistory(h []DailyRecord) {
	sort.SliceStable(h, func(i, j int) bool { return h[i].Date > h[j].Date })
}
