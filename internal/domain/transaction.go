package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money entering and leaving the pool.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

// Partner is one of the fixed ledger participants. TAX collects withheld income tax.
type Partner string

const (
	PartnerJoey    Partner = "JOEY"
	PartnerAlex    Partner = "ALEX"
	PartnerRubinho Partner = "RUBINHO"
	PartnerMicael  Partner = "MICAEL"
	PartnerTax     Partner = "TAX"
)

// Partners lists every valid partner in display order.
var Partners = []Partner{PartnerJoey, PartnerAlex, PartnerRubinho, PartnerMicael, PartnerTax}

// ParsePartner validates a partner name.
func ParsePartner(s string) (Partner, error) {
	for _, p := range Partners {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPartner, s)
}

// Transaction is one deposit or withdrawal. It is immutable once created;
// the only way to change the ledger is to append or delete.
type Transaction struct {
	ID           string          `json:"id"`
	Type         TransactionType `json:"type"`
	Partner      Partner         `json:"partner"`
	AmountBRL    float64         `json:"amountBrl"`
	AmountCents  float64         `json:"amountCents"`
	RateSnapshot float64         `json:"rateSnapshot"`
	Date         string          `json:"date"`
	Timestamp    int64           `json:"timestamp"`
}

// NewTransaction is the user-supplied part of a transaction; identity,
// timestamp and the foreign-cents equivalent are filled in at write time.
type NewTransaction struct {
	Type      TransactionType
	Partner   Partner
	AmountBRL decimal.Decimal
	Date      time.Time
}

// AmountInCents converts a local-currency amount to USD cents at the given rate.
func AmountInCents(amountBRL, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return amountBRL.Div(rate).Mul(decimal.NewFromInt(100))
}

// AddTransaction appends a transaction priced at the current dollar rate
// and returns the stored value.
func (s *ApplicationState) AddTransaction(in NewTransaction, now time.Time) (Transaction, error) {
	if in.Type != TransactionDeposit && in.Type != TransactionWithdrawal {
		return Transaction{}, fmt.Errorf("invalid transaction type %q", in.Type)
	}
	if _, err := ParsePartner(string(in.Partner)); err != nil {
		return Transaction{}, err
	}
	if !in.AmountBRL.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if s.DollarRate <= 0 {
		return Transaction{}, ErrInvalidRate
	}

	rate := decimal.NewFromFloat(s.DollarRate)
	date := in.Date
	if date.IsZero() {
		date = now
	}

	tx := Transaction{
		ID:           uuid.New().String(),
		Type:         in.Type,
		Partner:      in.Partner,
		AmountBRL:    in.AmountBRL.InexactFloat64(),
		AmountCents:  AmountInCents(in.AmountBRL, rate).InexactFloat64(),
		RateSnapshot: s.DollarRate,
		Date:         date.UTC().Format(time.RFC3339),
		Timestamp:    now.UnixMilli(),
	}
	s.Transactions = append(s.Transactions, tx)
	return tx, nil
}

// DeleteTransaction removes the transaction with the given id, leaving every
// other entry untouched.
func (s *ApplicationState) DeleteTransaction(id string) error {
	for i, tx := range s.Transactions {
		if tx.ID != id {
			continue
		}
		kept := make([]Transaction, 0, len(s.Transactions)-1)
		kept = append(kept, s.Transactions[:i]...)
		kept = append(kept, s.Transactions[i+1:]...)
		s.Transactions = kept
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
}

// WithdrawnBy sums the local-currency withdrawals of one partner.
func (s *ApplicationState) WithdrawnBy(p Partner) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range s.Transactions {
		if tx.Type == TransactionWithdrawal && tx.Partner == p {
			total = total.Add(decimal.NewFromFloat(tx.AmountBRL))
		}
	}
	return total
}
