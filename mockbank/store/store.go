// Package store persists users, their payment methods and the transaction log.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

// Store is the persistence contract of the bank. Transactions are append-only
// and payment methods are never removed.
type Store interface {
	// GetUser returns ErrNotFound for unknown users.
	GetUser(ctx context.Context, userID int64) (model.User, error)
	// CreateUserIfAbsent returns the user and whether it was created by this call.
	CreateUserIfAbsent(ctx context.Context, userID int64) (model.User, bool, error)
	UpdateUser(ctx context.Context, userID int64, upd UserUpdate) error
	// AddTransaction returns the stored entry unchanged when tx.ID was already appended.
	AddTransaction(ctx context.Context, tx model.NewTransaction) (model.Transaction, error)
	// GetTransactions returns the log of a user in insertion order.
	GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	Close() error
}

// UserUpdate lists the fields UpdateUser changes. Nil and empty fields are left alone.
type UserUpdate struct {
	Balance *decimal.Decimal
	Session json.RawMessage
	// ClearSession removes the stored session; it wins over Session.
	ClearSession bool
	// PushMethods appends methods not yet saved for the user.
	PushMethods []model.PaymentMethod
}

// ValidateTransaction checks a transaction before it is appended.
func ValidateTransaction(tx model.NewTransaction) error {
	if tx.UserID == 0 {
		return newValidationError("user_id", "must be set")
	}
	if !tx.Kind.Valid() {
		return newValidationError("kind", "must be deposit or withdraw")
	}
	if !tx.Method.Valid() {
		return newValidationError("method", "unknown method type")
	}
	if !tx.Amount.IsPositive() {
		return newValidationError("amount", "must be positive")
	}
	cur := strings.TrimSpace(tx.Currency)
	if tx.Method.IsFiat() {
		if !strings.EqualFold(cur, model.FiatCurrency) {
			return newValidationError("currency", "fiat methods settle in "+model.FiatCurrency)
		}
		return nil
	}
	if _, ok := model.ParseCryptoType(cur); !ok {
		return newValidationError("currency", "unknown crypto currency")
	}
	return nil
}

func normalizeTransaction(tx model.NewTransaction) model.NewTransaction {
	tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
	return tx
}

func appendUnique(existing []model.PaymentMethod, add []model.PaymentMethod) []model.PaymentMethod {
	for _, m := range add {
		m = m.Normalize()
		dup := false
		for _, e := range existing {
			if e.SameAs(m) {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, m)
		}
	}
	return existing
}
