package notionsync

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// mockLedgerDatabase is a mock implementation of LedgerDatabase.
type mockLedgerDatabase struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	ArchivePageFunc   func(ctx context.Context, pageID string) error
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	created  []notionapi.Properties
	updated  map[string]notionapi.Properties
	archived []string
	queries  []*notionapi.DatabaseQueryRequest
}

func (m *mockLedgerDatabase) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	m.created = append(m.created, properties)
	return &notionapi.Page{ID: notionapi.ObjectID("page-new")}, nil
}

func (m *mockLedgerDatabase) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.UpdatePageFunc != nil {
		return m.UpdatePageFunc(ctx, pageID, properties)
	}
	if m.updated == nil {
		m.updated = make(map[string]notionapi.Properties)
	}
	m.updated[pageID] = properties
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *mockLedgerDatabase) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	m.queries = append(m.queries, filter)
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, filter)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (m *mockLedgerDatabase) ArchivePage(ctx context.Context, pageID string) error {
	if m.ArchivePageFunc != nil {
		return m.ArchivePageFunc(ctx, pageID)
	}
	m.archived = append(m.archived, pageID)
	return nil
}

func pageFor(id, txID string) notionapi.Page {
	props := notionapi.Properties{}
	if txID != "" {
		props[PropTransactionID] = &notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{PlainText: txID}},
		}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

// mirrored is the page the API returns for a correctly synced entry.
// Decoded pages hold pointer properties.
func mirrored(id string, tx domain.Transaction) notionapi.Page {
	props := notionapi.Properties{}
	for name, prop := range TransactionToNotionProperties(tx) {
		switch p := prop.(type) {
		case notionapi.TitleProperty:
			props[name] = &p
		case notionapi.RichTextProperty:
			props[name] = &p
		case notionapi.SelectProperty:
			props[name] = &p
		case notionapi.NumberProperty:
			props[name] = &p
		case notionapi.DateProperty:
			props[name] = &p
		}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func ledger() []domain.Transaction {
	return []domain.Transaction{
		{ID: "tx-1", Type: domain.TransactionDeposit, Partner: domain.PartnerJoey, AmountBRL: 100, AmountCents: 2000, RateSnapshot: 5, Date: "2025-03-14T12:00:00Z"},
		{ID: "tx-2", Type: domain.TransactionWithdrawal, Partner: domain.PartnerTax, AmountBRL: 15, AmountCents: 300, RateSnapshot: 5, Date: "2025-03-10"},
	}
}

func TestSyncLedger(t *testing.T) {
	calls := 0
	svc := &mockLedgerDatabase{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			calls++
			if filter.StartCursor == "" {
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{mirrored("p1", ledger()[0]), pageFor("p2", "tx-gone")},
					HasMore:    true,
					NextCursor: "next",
				}, nil
			}
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{pageFor("p3", ""), pageFor("p4", "tx-1")},
			}, nil
		},
	}

	res, err := SyncLedger(context.Background(), ledger(), svc, "db", false)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, Result{Created: 1, Archived: 3, Skipped: 1}, res)
	assert.Empty(t, svc.updated)
	require.NotEmpty(t, svc.queries)
	require.Len(t, svc.queries[0].Sorts, 1)
	assert.Equal(t, notionapi.TimestampCreated, svc.queries[0].Sorts[0].Timestamp)
	assert.ElementsMatch(t, []string{"p2", "p3", "p4"}, svc.archived)
	require.Len(t, svc.created, 1)
	id := svc.created[0][PropTransactionID].(notionapi.RichTextProperty)
	assert.Equal(t, "tx-2", id.RichText[0].Text.Content)
}

func TestSyncLedger_DryRunChangesNothing(t *testing.T) {
	svc := &mockLedgerDatabase{
		QueryDatabaseFunc: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageFor("p9", "old")}}, nil
		},
	}

	res, err := SyncLedger(context.Background(), ledger(), svc, "db", true)
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 2, Archived: 1}, res)
	assert.Empty(t, svc.created)
	assert.Empty(t, svc.archived)
}

func TestSyncLedger_Failures(t *testing.T) {
	svc := &mockLedgerDatabase{
		QueryDatabaseFunc: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return nil, errors.New("unauthorized")
		},
	}
	_, err := SyncLedger(context.Background(), ledger(), svc, "db", false)
	assert.ErrorContains(t, err, "unauthorized")

	svc = &mockLedgerDatabase{
		CreatePageFunc: func(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("rate limited")
		},
	}
	res, err := SyncLedger(context.Background(), ledger(), svc, "db", false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
}

func TestTransactionToNotionProperties(t *testing.T) {
	props := TransactionToNotionProperties(ledger()[1])

	assert.Equal(t, "TAX withdrawal 15.00", props[PropName].(notionapi.TitleProperty).Title[0].Text.Content)
	assert.Equal(t, "WITHDRAWAL", props[PropType].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, 300.0, props[PropAmountCents].(notionapi.NumberProperty).Number)
	require.Contains(t, props, PropDate)

	bad := ledger()[0]
	bad.Date = "yesterday"
	assert.NotContains(t, TransactionToNotionProperties(bad), PropDate)
}

func TestSyncLedger_UpdatesDriftedPages(t *testing.T) {
	txs := ledger()
	edited := mirrored("p1", txs[0])
	edited.Properties[PropAmountBRL] = &notionapi.NumberProperty{Number: 999}
	edited.Properties[PropPartner] = &notionapi.SelectProperty{Select: notionapi.Option{Name: "TAX"}}
	pages := []notionapi.Page{edited, mirrored("p2", txs[1])}

	query := func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		return &notionapi.DatabaseQueryResponse{Results: pages}, nil
	}

	dry := &mockLedgerDatabase{QueryDatabaseFunc: query}
	res, err := SyncLedger(context.Background(), txs, dry, "db", true)
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 1, Skipped: 1}, res)
	assert.Empty(t, dry.updated)

	svc := &mockLedgerDatabase{QueryDatabaseFunc: query}
	res, err = SyncLedger(context.Background(), txs, svc, "db", false)
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 1, Skipped: 1}, res)
	require.Contains(t, svc.updated, "p1")
	props := svc.updated["p1"]
	assert.Equal(t, 100.0, props[PropAmountBRL].(notionapi.NumberProperty).Number)
	assert.Equal(t, "JOEY", props[PropPartner].(notionapi.SelectProperty).Select.Name)
	assert.Empty(t, svc.created)
	assert.Empty(t, svc.archived)

	failing := &mockLedgerDatabase{
		QueryDatabaseFunc: query,
		UpdatePageFunc: func(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("conflict")
		},
	}
	res, err = SyncLedger(context.Background(), txs, failing, "db", false)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1, Failed: 1}, res)
}

func TestDriftedProperties(t *testing.T) {
	tx := ledger()[0]
	assert.Empty(t, driftedProperties(mirrored("p", tx), tx))

	local := notionapi.Page{Properties: TransactionToNotionProperties(tx)}
	assert.Empty(t, driftedProperties(local, tx))

	changed := tx
	changed.RateSnapshot = 5.5
	assert.Equal(t, []string{PropRate}, driftedProperties(mirrored("p", tx), changed))

	assert.Len(t, driftedProperties(pageFor("p", tx.ID), tx), 6)
}
