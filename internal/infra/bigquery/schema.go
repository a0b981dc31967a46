package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/jar-dashboard/internal/logger"
)

// TableSpec describes one table the exporter writes to.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
}

// Tables infers the schema of every export table from its row type.
func Tables() ([]TableSpec, error) {
	ledger, err := bigquery.InferSchema(LedgerRow{})
	if err != nil {
		return nil, fmt.Errorf("infer %s schema: %w", ledgerTable, err)
	}
	snapshots, err := bigquery.InferSchema(SnapshotRow{})
	if err != nil {
		return nil, fmt.Errorf("infer %s schema: %w", snapshotsTable, err)
	}
	return []TableSpec{
		{Name: ledgerTable, Schema: ledger, PartitionField: "transaction_date"},
		{Name: snapshotsTable, Schema: snapshots, PartitionField: "snapshot_date"},
	}, nil
}

// EnsureTables creates the dataset and any missing export table. Existing
// tables are left alone. It returns the names of the tables it created.
func (e *Exporter) EnsureTables(ctx context.Context, location string) ([]string, error) {
	log := logger.FromContext(ctx)

	ds := e.client.DatasetInProject(e.projectID, e.datasetID)
	if _, err := ds.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("EnsureTables: dataset metadata: %w", err)
		}
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
			return nil, fmt.Errorf("EnsureTables: create dataset: %w", err)
		}
		log.Info().Str("dataset", e.datasetID).Msg("created dataset")
	}

	specs, err := Tables()
	if err != nil {
		return nil, err
	}

	var created []string
	for _, spec := range specs {
		t := ds.Table(spec.Name)
		if _, err := t.Metadata(ctx); err == nil {
			log.Info().Str("table", spec.Name).Msg("table exists, skipping")
			continue
		} else if !isNotFound(err) {
			return created, fmt.Errorf("EnsureTables: table %s metadata: %w", spec.Name, err)
		}

		meta := &bigquery.TableMetadata{
			Schema: spec.Schema,
			TimePartitioning: &bigquery.TimePartitioning{
				Type:  bigquery.MonthPartitioningType,
				Field: spec.PartitionField,
			},
		}
		if err := t.Create(ctx, meta); err != nil {
			return created, fmt.Errorf("EnsureTables: create table %s: %w", spec.Name, err)
		}
		log.Info().Str("table", spec.Name).Msg("created table")
		created = append(created, spec.Name)
	}
	return created, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
