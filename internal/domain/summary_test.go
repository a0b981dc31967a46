package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	s := Defaults(testNow)
	s.DollarRate = 5
	require.NoError(t, s.UpdateAccount(AccountJM, AccountPatch{
		StartDepositUSD:   floatPtr(1000),
		CurrentBalanceUSD: floatPtr(1100),
	}))
	_, err := s.RegisterDay(AccountJM, false)
	require.NoError(t, err)

	st, err := s.Stats(AccountJM)
	require.NoError(t, err)

	assert.Equal(t, "100", st.ProfitUSD.String())
	assert.Equal(t, "500", st.ProfitBRL.String())
	assert.Equal(t, "500", st.DailyAvgBRL.String())
	assert.Equal(t, "10", st.ROIPercent.String())
	assert.Equal(t, "10", st.DailyYieldPercent.String())
	assert.Equal(t, "5", st.CentsBRL.String())
	assert.Equal(t, 1, st.HistoryCount)
	assert.Equal(t, "0.11", st.GoalProgressPercent.String())
	assert.Equal(t, "998900", st.GoalRemainingUSD.String())
	assert.False(t, st.GoalReached)

	empty, err := s.Stats(AccountJ200)
	require.NoError(t, err)
	assert.True(t, empty.ROIPercent.IsZero())
	assert.True(t, empty.DailyYieldPercent.IsZero())

	sum := s.Summarize()
	assert.Len(t, sum.Accounts, 3)
	assert.Equal(t, "500", sum.TotalProfitBRL.String())
}

func TestStats_Goal(t *testing.T) {
	s := Defaults(testNow)
	require.NoError(t, s.UpdateAccount(AccountJAR, AccountPatch{
		StartDepositUSD:   floatPtr(500000),
		CurrentBalanceUSD: floatPtr(1250000),
	}))
	for _, day := range []string{"2025-03-12", "2025-03-13", "2025-03-14"} {
		require.NoError(t, s.UpdateAccount(AccountJAR, AccountPatch{CurrentDate: &day}))
		_, err := s.RegisterDay(AccountJAR, false)
		require.NoError(t, err)
	}

	st, err := s.Stats(AccountJAR)
	require.NoError(t, err)
	assert.True(t, st.GoalReached)
	assert.Equal(t, "100", st.GoalProgressPercent.String())
	assert.Equal(t, "-250000", st.GoalRemainingUSD.String())
	assert.Equal(t, "150", st.ROIPercent.String())
	assert.Equal(t, "50", st.DailyYieldPercent.String())
}

func TestQuoteWithdrawal(t *testing.T) {
	s := Defaults(testNow)
	s.DollarRate = 5
	require.NoError(t, s.Drafts.Set(DraftWithdrawals, DraftCalcAmount, "1.000,00"))

	q := s.QuoteWithdrawal()

	assert.True(t, decimal.NewFromInt(150).Equal(q.Tax), q.Tax.String())
	assert.True(t, decimal.NewFromInt(850).Equal(q.Net), q.Net.String())
	assert.Equal(t, "283.33", q.PerPerson.StringFixed(2))
	assert.True(t, decimal.NewFromInt(20000).Equal(q.CentsToDebit), q.CentsToDebit.String())

	require.NoError(t, s.Drafts.Set(DraftWithdrawals, DraftCalcPeople, "x"))
	assert.True(t, decimal.NewFromInt(850).Equal(s.QuoteWithdrawal().PerPerson))
}
