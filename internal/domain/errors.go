package domain

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDailyRecordNotFound = errors.New("daily record not found")
	ErrDailyRecordExists   = errors.New("daily record already registered for date")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrUnknownPartner      = errors.New("unknown partner")
	ErrUnknownDraft        = errors.New("unknown draft field")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidRate         = errors.New("dollar rate must be positive")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
)
