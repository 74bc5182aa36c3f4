package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// User is the per-chat account record.
//
// Balance is a denormalised cache refreshed after each committed transaction;
// the transaction log stays the source of truth. Session holds the encoded
// conversation state when sessions are persisted in the user record.
type User struct {
	ID        int64           `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Methods   []PaymentMethod `json:"deposit_methods"`
	Session   json.RawMessage `json:"state,omitempty"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
