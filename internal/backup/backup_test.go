package backup

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func TestFileName(t *testing.T) {
	assert.Equal(t, "jar_backup_2025-03-14.json", FileName(testNow))
}

func TestExportImportRoundTrip(t *testing.T) {
	s := domain.Defaults(testNow)
	s.DollarRate = 5.37
	_, err := s.AddTransaction(domain.NewTransaction{
		Type:      domain.TransactionWithdrawal,
		Partner:   domain.PartnerAlex,
		AmountBRL: domain.ParseCurrency("1.234,56"),
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, s.Drafts.Set(domain.DraftWithdrawals, domain.DraftRegJoey, "50"))

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, s))

	later := testNow.Add(time.Hour)
	got, err := Import(&buf, later)
	require.NoError(t, err)

	assert.True(t, domain.Equal(s, got), domain.Diff(s, got))
	assert.Equal(t, later.UnixMilli(), got.LastUpdated)
}

func TestExportUsesDocumentLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, domain.Defaults(testNow)))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	for _, key := range []string{"dollarRate", "transactions", "drafts", "startDate", "dailyHistory_jm", "valuationBaseBrl_j200"} {
		assert.Contains(t, doc, key)
	}
}

func TestImportBackfillsOldExport(t *testing.T) {
	got, err := Import(strings.NewReader(`{"dollarRate": 5.9, "transactions": []}`), testNow)
	require.NoError(t, err)

	assert.Equal(t, 5.9, got.DollarRate)
	assert.Equal(t, "3", got.Drafts.Get(domain.DraftWithdrawals, domain.DraftCalcPeople))
	assert.Len(t, got.Accounts, len(domain.Accounts))
}

func TestImportMalformed(t *testing.T) {
	for _, payload := range []string{"", "not json", `{"transactions": "nope"}`, `[1,2]`} {
		_, err := Import(strings.NewReader(payload), testNow)
		assert.ErrorIs(t, err, ErrMalformedImport, payload)
	}
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://jar-backups/backups/jar_backup_2025-03-14.json")
	require.NoError(t, err)
	assert.Equal(t, "jar-backups", bucket)
	assert.Equal(t, "backups/jar_backup_2025-03-14.json", object)
	assert.Equal(t, "jar_backup_2025-03-14.json", BaseName("gs://jar-backups/backups/jar_backup_2025-03-14.json"))

	for _, bad := range []string{"s3://x/y", "gs://bucket", "gs:///obj"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}
