package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

const dateFormat = "2006-01-02"

// LedgerRow is one transaction in the ledger_transactions table.
type LedgerRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	Type          string `bigquery:"type"`           // REQUIRED
	Partner       string `bigquery:"partner"`        // REQUIRED

	AmountBRL      *big.Rat `bigquery:"amount_brl"`       // REQUIRED NUMERIC
	AmountUSDCents float64  `bigquery:"amount_usd_cents"` // REQUIRED
	RateSnapshot   float64  `bigquery:"rate_snapshot"`    // REQUIRED

	TransactionDate civil.Date             `bigquery:"transaction_date"` // REQUIRED
	BookedTS        bigquery.NullTimestamp `bigquery:"booked_ts"`        // NULLABLE, from the client timestamp

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// SnapshotRow is one daily record in the daily_snapshots table.
type SnapshotRow struct {
	Account      string     `bigquery:"account"`       // REQUIRED
	SnapshotDate civil.Date `bigquery:"snapshot_date"` // REQUIRED

	BalanceUSD  float64              `bigquery:"balance_usd"`
	Rate        float64              `bigquery:"rate"`
	CentsBRL    float64              `bigquery:"cents_brl"`
	InvestedUSD bigquery.NullFloat64 `bigquery:"invested_usd"` // NULLABLE, older records lack it

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// NewLedgerRow converts a transaction. Transactions with an unreadable date
// are rejected; BigQuery requires transaction_date.
func NewLedgerRow(tx domain.Transaction, exportedAt time.Time) (*LedgerRow, error) {
	date, err := parseDate(tx.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	row := &LedgerRow{
		TransactionID:   tx.ID,
		Type:            string(tx.Type),
		Partner:         string(tx.Partner),
		AmountBRL:       decimal.NewFromFloat(tx.AmountBRL).Rat(),
		AmountUSDCents:  tx.AmountCents,
		RateSnapshot:    tx.RateSnapshot,
		TransactionDate: date,
		ExportedTS:      exportedAt,
	}
	if tx.Timestamp > 0 {
		row.BookedTS = bigquery.NullTimestamp{Timestamp: time.UnixMilli(tx.Timestamp).UTC(), Valid: true}
	}
	return row, nil
}

// NewSnapshotRow converts a daily record of one account.
func NewSnapshotRow(id domain.AccountID, rec domain.DailyRecord, exportedAt time.Time) (*SnapshotRow, error) {
	date, err := civil.ParseDate(rec.Date)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s/%s: %w", id, rec.Date, err)
	}
	row := &SnapshotRow{
		Account:      string(id),
		SnapshotDate: date,
		BalanceUSD:   rec.BalanceUSD,
		Rate:         rec.Rate,
		CentsBRL:     rec.CentsBRL,
		ExportedTS:   exportedAt,
	}
	if rec.InvestedUSD != nil {
		row.InvestedUSD = bigquery.NullFloat64{Float64: *rec.InvestedUSD, Valid: true}
	}
	return row, nil
}

// InsertID de-duplicates streaming inserts of the same snapshot. A
// re-registered day with a new balance gets a new id.
func (r *SnapshotRow) InsertID() string {
	return fmt.Sprintf("%s:%s:%g:%g", r.Account, r.SnapshotDate, r.BalanceUSD, r.Rate)
}

// parseDate reads RFC 3339 timestamps and bare dates.
func parseDate(s string) (civil.Date, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return civil.DateOf(t.UTC()), nil
	}
	if t, err := time.Parse(dateFormat, s); err == nil {
		return civil.DateOf(t), nil
	}
	return civil.Date{}, fmt.Errorf("invalid date %q", s)
}
