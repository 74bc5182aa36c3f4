package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxKind is the direction of a ledger entry.
type TxKind string

const (
	KindDeposit  TxKind = "deposit"
	KindWithdraw TxKind = "withdraw"
)

// Valid reports whether k is a known kind.
func (k TxKind) Valid() bool {
	return k == KindDeposit || k == KindWithdraw
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	Kind      TxKind          `json:"kind" db:"kind"`
	Method    MethodType      `json:"method" db:"method"`
	Currency  string          `json:"currency" db:"currency"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// GenerateID assigns a new UUID unless one is already set.
func (t *Transaction) GenerateID() {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
}

// NewTransaction carries the fields required to append a ledger entry.
// A non-nil ID doubles as an idempotency key: appending the same ID twice
// stores one entry.
type NewTransaction struct {
	ID       uuid.UUID
	UserID   int64
	Kind     TxKind
	Method   MethodType
	Currency string
	Amount   decimal.Decimal
}
