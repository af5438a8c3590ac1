package model

import "time"

const (
	TxPurchase   = "purchase"
	TxSale       = "sale"
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
	TxCommission = "commission"
	TxRefund     = "refund"

	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Transaction amounts are signed minor units from the point of view of UserID.
type Transaction struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Type           string    `json:"type"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	Description    string    `json:"description"`
	RelatedID      string    `json:"relatedId,omitempty"`
	CounterpartyID string    `json:"counterpartyId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (t Transaction) GetID() string { return t.ID }

const (
	InvoicePaid    = "paid"
	InvoicePending = "pending"
	InvoiceVoid    = "void"
)

type Invoice struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Description   string    `json:"description"`
	IssuedAt      time.Time `json:"issuedAt"`
}

type Wallet struct {
	UserID   string `json:"userId"`
	Balance  int64  `json:"balance"`
	TotalIn  int64  `json:"totalIn"`
	TotalOut int64  `json:"totalOut"`
	Currency string `json:"currency"`
}
