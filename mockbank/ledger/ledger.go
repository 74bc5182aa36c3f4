// Package ledger derives balances from the append-only transaction log.
//
// Balances are never stored as the source of truth: every figure shown to a
// user or used for a withdrawal check is folded from transactions here.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

// FiatBucket names the shared bank/PayPal bucket.
const FiatBucket = "fiat"

// Balance is the folded view of a user's transactions.
//
// Total adds crypto buckets to fiat without any unit conversion. This mirrors
// the product's existing behaviour and is knowingly not a monetary total.
type Balance struct {
	Fiat   decimal.Decimal
	Crypto map[string]decimal.Decimal
	Total  decimal.Decimal
}

// Compute folds transactions into a Balance. Records without a user, with an
// unknown kind or method, a missing crypto currency or a non-positive amount
// are skipped. The result does not depend on the order of txs.
func Compute(txs []model.Transaction) Balance {
	b := Balance{Crypto: make(map[string]decimal.Decimal)}
	for _, tx := range txs {
		if !wellFormed(tx) {
			continue
		}
		amount := tx.Amount
		if tx.Kind == model.KindWithdraw {
			amount = amount.Neg()
		}
		if tx.Method.IsFiat() {
			b.Fiat = b.Fiat.Add(amount)
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(tx.Currency))
		b.Crypto[code] = b.Crypto[code].Add(amount)
	}

	b.Total = b.Fiat
	for _, v := range b.Crypto {
		b.Total = b.Total.Add(v)
	}
	return b
}

func wellFormed(tx model.Transaction) bool {
	if tx.UserID == 0 {
		return false
	}
	if !tx.Kind.Valid() || !tx.Method.Valid() {
		return false
	}
	if !tx.Amount.IsPositive() {
		return false
	}
	if tx.Method == model.MethodCrypto && strings.TrimSpace(tx.Currency) == "" {
		return false
	}
	return true
}

// CryptoOf returns the bucket for a crypto code (any casing), zero if absent.
func (b Balance) CryptoOf(code string) decimal.Decimal {
	return b.Crypto[strings.ToUpper(strings.TrimSpace(code))]
}

// Bucket resolves the bucket a withdrawal through method/currency draws from.
func (b Balance) Bucket(method model.MethodType, currency string) (string, decimal.Decimal) {
	if method.IsFiat() {
		return FiatBucket, b.Fiat
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	return code, b.Crypto[code]
}

// Currencies returns crypto bucket codes in lexical order.
func (b Balance) Currencies() []string {
	codes := make([]string, 0, len(b.Crypto))
	for code := range b.Crypto {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Equal compares balances bucket by bucket, treating absent and zero crypto
// buckets as different.
func (b Balance) Equal(other Balance) bool {
	if !b.Fiat.Equal(other.Fiat) || !b.Total.Equal(other.Total) {
		return false
	}
	if len(b.Crypto) != len(other.Crypto) {
		return false
	}
	for code, v := range b.Crypto {
		ov, ok := other.Crypto[code]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// TransactionSource is the read side of the persistence layer used by Service.
type TransactionSource interface {
	GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
}

// Service computes balances from the stored transaction log.
type Service struct {
	src TransactionSource
}

// NewService wires a Service over src.
func NewService(src TransactionSource) *Service {
	return &Service{src: src}
}

// Balance loads the user's transactions and folds them.
func (s *Service) Balance(ctx context.Context, userID int64) (Balance, error) {
	txs, err := s.src.GetTransactions(ctx, userID)
	if err != nil {
		return Balance{}, fmt.Errorf("load transactions: %w", err)
	}
	return Compute(txs), nil
}
