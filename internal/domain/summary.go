package domain

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GoalUSD is the balance every account is racing towards.
var GoalUSD = decimal.NewFromInt(1_000_000)

// AccountStats summarizes the profit of one sub-account. ROIPercent is the
// growth of the balance over the start deposit; DailyYieldPercent spreads it
// over the registered days.
type AccountStats struct {
	Account           AccountID       `json:"account"`
	ProfitUSD         decimal.Decimal `json:"profitUsd"`
	ProfitBRL         decimal.Decimal `json:"profitBrl"`
	CentsBRL          decimal.Decimal `json:"centsBrl"`
	DailyAvgBRL       decimal.Decimal `json:"dailyAvgBrl"`
	ROIPercent        decimal.Decimal `json:"roiPercent"`
	DailyYieldPercent decimal.Decimal `json:"dailyYieldPercent"`
	HistoryCount      int             `json:"historyCount"`

	GoalProgressPercent decimal.Decimal `json:"goalProgressPercent"`
	GoalRemainingUSD    decimal.Decimal `json:"goalRemainingUsd"`
	GoalReached         bool            `json:"goalReached"`
}

// Summary is the dashboard overview.
type Summary struct {
	Accounts       []AccountStats              `json:"accounts"`
	TotalProfitBRL decimal.Decimal             `json:"totalProfitBrl"`
	Withdrawn      map[Partner]decimal.Decimal `json:"withdrawn"`
}

// Stats computes the profit figures of one account at the current rate.
func (s *ApplicationState) Stats(id AccountID) (AccountStats, error) {
	p, err := s.Account(id)
	if err != nil {
		return AccountStats{}, err
	}
	rate := decimal.NewFromFloat(s.DollarRate)
	deposit := decimal.NewFromFloat(p.StartDepositUSD)
	balance := decimal.NewFromFloat(p.CurrentBalanceUSD)
	profitUSD := balance.Sub(deposit)
	profitBRL := profitUSD.Mul(rate)

	days := len(p.DailyHistory)
	if days == 0 {
		days = 1
	}
	nDays := decimal.NewFromInt(int64(days))
	st := AccountStats{
		Account:           id,
		ProfitUSD:         profitUSD,
		ProfitBRL:         profitBRL,
		CentsBRL:          profitUSD.Div(hundred).Mul(rate),
		DailyAvgBRL:       profitBRL.Div(nDays),
		ROIPercent:        decimal.Zero,
		DailyYieldPercent: decimal.Zero,
		HistoryCount:      len(p.DailyHistory),

		GoalProgressPercent: decimal.Min(balance.Div(GoalUSD).Mul(hundred), hundred),
		GoalRemainingUSD:    GoalUSD.Sub(balance),
		GoalReached:         balance.GreaterThanOrEqual(GoalUSD),
	}
	if deposit.IsPositive() {
		st.ROIPercent = profitUSD.Div(deposit).Mul(hundred)
		st.DailyYieldPercent = st.ROIPercent.Div(nDays)
	}
	return st, nil
}

// Summarize builds the overview across every account and partner.
func (s *ApplicationState) Summarize() Summary {
	out := Summary{
		TotalProfitBRL: decimal.Zero,
		Withdrawn:      make(map[Partner]decimal.Decimal, len(Partners)),
	}
	for _, id := range Accounts {
		st, _ := s.Stats(id)
		out.Accounts = append(out.Accounts, st)
		out.TotalProfitBRL = out.TotalProfitBRL.Add(st.ProfitBRL)
	}
	for _, p := range Partners {
		out.Withdrawn[p] = s.WithdrawnBy(p)
	}
	return out
}

// WithdrawalQuote splits a gross withdrawal after income tax.
type WithdrawalQuote struct {
	Amount       decimal.Decimal `json:"amount"`
	Tax          decimal.Decimal `json:"tax"`
	Net          decimal.Decimal `json:"net"`
	PerPerson    decimal.Decimal `json:"perPerson"`
	CentsToDebit decimal.Decimal `json:"centsToDebit"`
}

// QuoteWithdrawal evaluates the withdrawal calculator drafts.
func (s *ApplicationState) QuoteWithdrawal() WithdrawalQuote {
	amount := ParseCurrency(s.Drafts.Get(DraftWithdrawals, DraftCalcAmount))
	irpf, err := decimal.NewFromString(strings.TrimSpace(s.Drafts.Get(DraftWithdrawals, DraftCalcIRPF)))
	if err != nil {
		irpf = decimal.Zero
	}
	people, err := strconv.Atoi(strings.TrimSpace(s.Drafts.Get(DraftWithdrawals, DraftCalcPeople)))
	if err != nil || people == 0 {
		people = 1
	}

	tax := amount.Mul(irpf).Div(hundred)
	net := amount.Sub(tax)
	q := WithdrawalQuote{
		Amount:       amount,
		Tax:          tax,
		Net:          net,
		PerPerson:    decimal.Zero,
		CentsToDebit: AmountInCents(amount, decimal.NewFromFloat(s.DollarRate)),
	}
	if people > 0 {
		q.PerPerson = net.Div(decimal.NewFromInt(int64(people)))
	}
	return q
}
