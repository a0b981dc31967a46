package notionsync

import (
	"context"

	"github.com/jomei/notionapi"
)

// LedgerDatabase is the slice of the Notion API the ledger mirror needs.
type LedgerDatabase interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// UpdatePage rewrites the mirrored properties of a page that drifted
	// from its ledger entry.
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage archives a page; Notion has no hard delete.
	ArchivePage(ctx context.Context, pageID string) error
}
