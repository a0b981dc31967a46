package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func sampleState() domain.ApplicationState {
	s := domain.Defaults(testNow)
	s.DollarRate = 5.37
	s.LastUpdated = testNow.UnixMilli()
	s.Transactions = append(s.Transactions, domain.Transaction{
		ID: "t1", Type: domain.TransactionDeposit, Partner: domain.PartnerJoey, AmountBRL: 100,
	})
	return s
}

func caches(t *testing.T) map[string]Cache {
	t.Helper()
	dir := t.TempDir()
	sq, err := NewSQLite(filepath.Join(dir, "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Cache{
		"file":   NewFile(filepath.Join(dir, "files"), zerolog.Nop()),
		"sqlite": sq,
	}
}

func TestCache_ReadEmpty(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			_, ok := c.Read()
			assert.False(t, ok)
		})
	}
}

func TestCache_WriteRead(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleState()
			c.Write(want)

			got, ok := c.Read()
			require.True(t, ok)
			assert.True(t, domain.Equal(want, got), domain.Diff(want, got))
			assert.Equal(t, want.LastUpdated, got.LastUpdated)

			want.DollarRate = 6
			c.Write(want)
			got, ok = c.Read()
			require.True(t, ok)
			assert.Equal(t, 6.0, got.DollarRate)
		})
	}
}

func TestFile_CorruptEntryIsIgnored(t *testing.T) {
	dir := t.TempDir()
	c := NewFile(dir, zerolog.Nop())
	require.NoError(t, os.WriteFile(c.Path(), []byte("{broken"), 0o644))

	_, ok := c.Read()
	assert.False(t, ok)
}

func TestFile_WriteFailureIsSilent(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	c := NewFile(blocker, zerolog.Nop())
	assert.NotPanics(t, func() { c.Write(sampleState()) })
	_, ok := c.Read()
	assert.False(t, ok)
}
