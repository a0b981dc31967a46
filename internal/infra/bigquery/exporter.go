// Package bigquery appends the ledger and daily snapshots to BigQuery for
// reporting.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/logger"
)

const (
	ledgerTable    = "ledger_transactions"
	snapshotsTable = "daily_snapshots"
)

// ExportResult counts the rows written by one export.
type ExportResult struct {
	Transactions int `json:"transactions"`
	Skipped      int `json:"skipped"`
	Snapshots    int `json:"snapshots"`
}

func (r ExportResult) String() string {
	return fmt.Sprintf("transactions=%d skipped=%d snapshots=%d", r.Transactions, r.Skipped, r.Snapshots)
}

// LedgerExporter exports application state for reporting.
type LedgerExporter interface {
	Export(ctx context.Context, state domain.ApplicationState, now time.Time) (ExportResult, error)
	Close() error
}

// Exporter is the BigQuery implementation of LedgerExporter. It holds a
// shared client for all operations.
type Exporter struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewExporter creates a BigQuery client for projectID writing to datasetID.
func NewExporter(ctx context.Context, projectID, datasetID string) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	return &Exporter{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Export appends ledger entries not exported before and streams every
// daily snapshot with an insert id.
func (e *Exporter) Export(ctx context.Context, state domain.ApplicationState, now time.Time) (ExportResult, error) {
	log := logger.FromContext(ctx)
	var res ExportResult

	exported, err := e.ExportedTransactionIDs(ctx)
	if err != nil {
		return res, err
	}

	ledger, skipped := PendingLedgerRows(state.Transactions, exported, now, log)
	res.Skipped = skipped
	if len(ledger) > 0 {
		if err := e.table(ledgerTable).Inserter().Put(ctx, ledger); err != nil {
			return res, fmt.Errorf("Export: inserting ledger rows: %w", err)
		}
	}
	res.Transactions = len(ledger)

	snapshots := SnapshotSavers(state, now, log)
	if len(snapshots) > 0 {
		if err := e.table(snapshotsTable).Inserter().Put(ctx, snapshots); err != nil {
			return res, fmt.Errorf("Export: inserting snapshots: %w", err)
		}
	}
	res.Snapshots = len(snapshots)

	log.Info().
		Int("transactions", res.Transactions).
		Int("skipped", res.Skipped).
		Int("snapshots", res.Snapshots).
		Msg("BigQuery export completed")
	return res, nil
}

func (e *Exporter) table(name string) *bigquery.Table {
	return e.client.DatasetInProject(e.projectID, e.datasetID).Table(name)
}

// ExportedTransactionIDs lists the transaction ids already in the ledger table.
func (e *Exporter) ExportedTransactionIDs(ctx context.Context) (map[string]bool, error) {
	q := e.client.Query(fmt.Sprintf("SELECT transaction_id FROM `%s.%s.%s`", e.projectID, e.datasetID, ledgerTable))
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ExportedTransactionIDs: query read: %w", err)
	}

	ids := make(map[string]bool)
	for {
		var row struct {
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ExportedTransactionIDs: iter next: %w", err)
		}
		ids[row.TransactionID] = true
	}
	return ids, nil
}

// PendingLedgerRows converts the transactions missing from exported.
// Entries with unreadable dates are logged and counted as skipped.
func PendingLedgerRows(txs []domain.Transaction, exported map[string]bool, now time.Time, log zerolog.Logger) ([]*LedgerRow, int) {
	var rows []*LedgerRow
	skipped := 0
	for _, tx := range txs {
		if exported[tx.ID] {
			skipped++
			continue
		}
		row, err := NewLedgerRow(tx, now)
		if err != nil {
			log.Warn().Err(err).Msg("skipping transaction")
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

// SnapshotSavers wraps every daily record of every account for a
// de-duplicated streaming insert.
func SnapshotSavers(state domain.ApplicationState, now time.Time, log zerolog.Logger) []*bigquery.StructSaver {
	var savers []*bigquery.StructSaver
	for _, id := range domain.Accounts {
		p, err := state.Account(id)
		if err != nil {
			continue
		}
		for _, rec := range p.DailyHistory {
			row, err := NewSnapshotRow(id, rec, now)
			if err != nil {
				log.Warn().Err(err).Msg("skipping snapshot")
				continue
			}
			savers = append(savers, &bigquery.StructSaver{Struct: row, InsertID: row.InsertID()})
		}
	}
	return savers
}

var _ LedgerExporter = (*Exporter)(nil)
