package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWithBalance(date string, balance float64) ApplicationState {
	s := Defaults(testNow)
	p := s.Accounts[AccountJAR]
	p.StartDepositUSD = 1000
	p.CurrentBalanceUSD = balance
	p.CurrentDate = date
	s.Accounts[AccountJAR] = p
	return s
}

func TestRegisterDay_AppendsNewDate(t *testing.T) {
	s := stateWithBalance("2025-03-10", 1500)
	s.DollarRate = 5

	rec, err := s.RegisterDay(AccountJAR, false)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", rec.Date)
	assert.Equal(t, 25.0, rec.CentsBRL)
	require.NotNil(t, rec.InvestedUSD)
	assert.Equal(t, 1000.0, *rec.InvestedUSD)

	require.NoError(t, s.UpdateAccount(AccountJAR, AccountPatch{CurrentDate: strPtr("2025-03-11")}))
	_, err = s.RegisterDay(AccountJAR, false)
	require.NoError(t, err)

	h := s.Accounts[AccountJAR].DailyHistory
	require.Len(t, h, 2)
	assert.Equal(t, "2025-03-11", h[0].Date, "newest first")
}

func TestRegisterDay_ExistingDateNeedsConfirmation(t *testing.T) {
	s := stateWithBalance("2025-03-10", 1500)
	_, err := s.RegisterDay(AccountJAR, false)
	require.NoError(t, err)
	require.NoError(t, s.UpdateAccount(AccountJAR, AccountPatch{CurrentDate: strPtr("2025-03-09")}))
	_, err = s.RegisterDay(AccountJAR, false)
	require.NoError(t, err)
	require.NoError(t, s.UpdateAccount(AccountJAR, AccountPatch{
		CurrentDate:       strPtr("2025-03-10"),
		CurrentBalanceUSD: floatPtr(1800),
	}))

	_, err = s.RegisterDay(AccountJAR, false)
	assert.ErrorIs(t, err, ErrDailyRecordExists)
	assert.Equal(t, 1500.0, s.Accounts[AccountJAR].DailyHistory[0].BalanceUSD)

	_, err = s.RegisterDay(AccountJAR, true)
	require.NoError(t, err)

	h := s.Accounts[AccountJAR].DailyHistory
	require.Len(t, h, 2, "length unchanged on replace")
	assert.Equal(t, "2025-03-10", h[0].Date)
	assert.Equal(t, 1800.0, h[0].BalanceUSD)
	assert.Equal(t, "2025-03-09", h[1].Date)
}

func TestRegisterDay_OtherAccountsUntouched(t *testing.T) {
	s := stateWithBalance("2025-03-10", 1500)
	_, err := s.RegisterDay(AccountJAR, false)
	require.NoError(t, err)

	assert.Empty(t, s.Accounts[AccountJM].DailyHistory)
	assert.Empty(t, s.Accounts[AccountJ200].DailyHistory)
}

func TestRegisterDay_InvalidDate(t *testing.T) {
	s := stateWithBalance("14/03/2025", 1)
	_, err := s.RegisterDay(AccountJAR, false)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDeleteDailyRecord(t *testing.T) {
	s := stateWithBalance("2025-03-10", 1500)
	_, err := s.RegisterDay(AccountJAR, false)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteDailyRecord(AccountJAR, "2020-01-01"), ErrDailyRecordNotFound)
	require.NoError(t, s.DeleteDailyRecord(AccountJAR, "2025-03-10"))
	assert.Empty(t, s.Accounts[AccountJAR].DailyHistory)
}

func TestAddToStartDeposit(t *testing.T) {
	s := stateWithBalance("2025-03-10", 1500)
	bucket := ProgressDraftBucket(AccountJAR)
	require.NoError(t, s.Drafts.Set(bucket, DraftAdditionalDeposit, "250,50"))

	amount, err := s.AddToStartDeposit(AccountJAR)
	require.NoError(t, err)

	assert.Equal(t, "250.5", amount.String())
	assert.Equal(t, 1250.5, s.Accounts[AccountJAR].StartDepositUSD)
	assert.Equal(t, 1750.5, s.Accounts[AccountJAR].CurrentBalanceUSD)
	assert.Equal(t, "", s.Drafts.Get(bucket, DraftAdditionalDeposit))

	_, err = s.AddToStartDeposit(AccountJAR)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDraftsSet_RejectsUnknownFields(t *testing.T) {
	d := Defaults(testNow).Drafts
	assert.NoError(t, d.Set(DraftWithdrawals, DraftCalcAmount, "10"))
	assert.ErrorIs(t, d.Set(DraftWithdrawals, "bogus", "1"), ErrUnknownDraft)
	assert.ErrorIs(t, d.Set("nope", DraftCalcAmount, "1"), ErrUnknownDraft)
}

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64 { return &f }
