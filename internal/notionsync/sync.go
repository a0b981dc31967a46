package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/logger"
)

// pageSize is the Notion query page size (the API maximum).
const pageSize = 100

// Result counts what a sync did, or would do in a dry run.
type Result struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func (r Result) String() string {
	return fmt.Sprintf("created=%d updated=%d archived=%d skipped=%d failed=%d", r.Created, r.Updated, r.Archived, r.Skipped, r.Failed)
}

// SyncLedger mirrors transactions into a Notion database:
// 1. Queries all existing Notion pages
// 2. Archives pages whose transaction no longer exists in the ledger, and
//    every duplicate after the oldest page of a transaction
// 3. Rewrites pages edited by hand so they match their ledger entry again
// 4. Creates pages for ledger entries Notion does not have yet
//
// Individual page failures are logged and counted; only a failed query
// aborts the sync.
func SyncLedger(ctx context.Context, txs []domain.Transaction, notionClient LedgerDatabase, notionDBID string, dryRun bool) (Result, error) {
	log := logger.FromContext(ctx)
	var res Result

	log.Info().
		Bool("dry_run", dryRun).
		Int("transaction_count", len(txs)).
		Msg("Starting ledger sync to Notion")

	valid := make(map[string]bool, len(txs))
	for _, tx := range txs {
		valid[tx.ID] = true
	}

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return res, fmt.Errorf("failed to query Notion pages: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]notionapi.Page, len(pages))
	for _, page := range pages {
		txID := extractTransactionID(page)
		if _, seen := existing[txID]; txID != "" && valid[txID] && !seen {
			existing[txID] = page
			continue
		}

		// Stale, untagged or duplicate page.
		if dryRun {
			log.Info().Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for _, tx := range txs {
		if page, ok := existing[tx.ID]; ok {
			drifted := driftedProperties(page, tx)
			if len(drifted) == 0 {
				res.Skipped++
				continue
			}
			if dryRun {
				log.Info().Str("transaction_id", tx.ID).Strs("properties", drifted).Msg("[DRY RUN] Would update drifted Notion page")
				res.Updated++
				continue
			}
			if _, err := notionClient.UpdatePage(ctx, string(page.ID), TransactionToNotionProperties(tx)); err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			log.Debug().Str("transaction_id", tx.ID).Strs("properties", drifted).Msg("Updated drifted Notion page")
			res.Updated++
			continue
		}
		if dryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create new Notion page")
			res.Created++
			continue
		}
		page, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx))
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		log.Debug().Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Ledger sync completed")
	return res, nil
}

// queryAllNotionPages returns every page, oldest first.
func queryAllNotionPages(ctx context.Context, notionClient LedgerDatabase, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: pageSize,
			Sorts: []notionapi.SortObject{
				{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC},
			},
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
