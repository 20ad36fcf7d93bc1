package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single bank-statement line item.
type Transaction struct {
	Date            time.Time       `json:"date"`
	CategoryID      *string         `json:"category_id,omitempty"`
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	AccountID       string          `json:"account_id,omitempty"`
	CategoryName    string          `json:"category_name,omitempty"`
	ImportSessionID string          `json:"import_session_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
}

// IsCategorised reports whether the transaction already has a category assigned.
func (t Transaction) IsCategorised() bool {
	return t.CategoryID != nil && *t.CategoryID != ""
}

// IsCredit reports whether money flowed into the account.
func (t Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}
