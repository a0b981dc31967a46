package notionsync

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// Property names of the ledger database.
const (
	PropName          = "Name"
	PropTransactionID = "Transaction ID"
	PropType          = "Type"
	PropPartner       = "Partner"
	PropAmountBRL     = "Amount BRL"
	PropAmountCents   = "Amount USD Cents"
	PropRate          = "Rate"
	PropDate          = "Date"
)

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

// TransactionTitle is the page title shown in Notion, e.g. "JOEY deposit 100.00".
func TransactionTitle(tx domain.Transaction) string {
	return fmt.Sprintf("%s %s %.2f", tx.Partner, strings.ToLower(string(tx.Type)), tx.AmountBRL)
}

// TransactionToNotionProperties converts a ledger entry to Notion properties.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Title: richText(TransactionTitle(tx)),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Type)},
		},
		PropPartner: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Partner)},
		},
		PropAmountBRL: notionapi.NumberProperty{
			Number: tx.AmountBRL,
		},
		PropAmountCents: notionapi.NumberProperty{
			Number: tx.AmountCents,
		},
		PropRate: notionapi.NumberProperty{
			Number: tx.RateSnapshot,
		},
	}

	if t, ok := ParseTransactionDate(tx.Date); ok {
		d := notionapi.Date(t)
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}
	return props
}

// ParseTransactionDate accepts both full RFC 3339 timestamps and the bare
// YYYY-MM-DD dates older clients wrote.
func ParseTransactionDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// extractTransactionID reads the ledger id back from a Notion page.
func extractTransactionID(page notionapi.Page) string {
	return propText(page.Properties[PropTransactionID])
}

// driftedProperties names the mirrored properties of page that no longer
// match tx. The date is left out; Notion may rewrite its time zone.
func driftedProperties(page notionapi.Page, tx domain.Transaction) []string {
	var drifted []string
	if propText(page.Properties[PropName]) != TransactionTitle(tx) {
		drifted = append(drifted, PropName)
	}
	if propSelect(page.Properties[PropType]) != string(tx.Type) {
		drifted = append(drifted, PropType)
	}
	if propSelect(page.Properties[PropPartner]) != string(tx.Partner) {
		drifted = append(drifted, PropPartner)
	}
	numbers := []struct {
		name string
		want float64
	}{
		{PropAmountBRL, tx.AmountBRL},
		{PropAmountCents, tx.AmountCents},
		{PropRate, tx.RateSnapshot},
	}
	for _, n := range numbers {
		got, ok := propNumber(page.Properties[n.name])
		if !ok || math.Abs(got-n.want) > 1e-9 {
			drifted = append(drifted, n.name)
		}
	}
	return drifted
}

// Pages read from the API carry pointer properties; pages built locally
// carry values. The prop* helpers accept both.

func propText(prop notionapi.Property) string {
	var texts []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		texts = p.Title
	case notionapi.TitleProperty:
		texts = p.Title
	case *notionapi.RichTextProperty:
		texts = p.RichText
	case notionapi.RichTextProperty:
		texts = p.RichText
	}
	var b strings.Builder
	for _, t := range texts {
		switch {
		case t.PlainText != "":
			b.WriteString(t.PlainText)
		case t.Text != nil:
			b.WriteString(t.Text.Content)
		}
	}
	return b.String()
}

func propSelect(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}

func propNumber(prop notionapi.Property) (float64, bool) {
	switch p := prop.(type) {
	case *notionapi.NumberProperty:
		return p.Number, true
	case notionapi.NumberProperty:
		return p.Number, true
	}
	return 0, false
}
