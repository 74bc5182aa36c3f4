package model

import (
	"fmt"
	"strings"
)

// MethodType identifies the payment channel of a saved method or a transaction.
type MethodType string

const (
	// MethodBankTransfer is a fiat bank transfer.
	MethodBankTransfer MethodType = "bank_transfer"
	// MethodPayPal is a fiat PayPal account identified by e-mail.
	MethodPayPal MethodType = "paypal"
	// MethodCrypto is a crypto address of a specific CryptoType.
	MethodCrypto MethodType = "crypto"
)

// FiatCurrency is the currency recorded for bank and PayPal transactions.
const FiatCurrency = "USD"

// MethodTypes lists the supported method types in menu order.
var MethodTypes = []MethodType{MethodBankTransfer, MethodPayPal, MethodCrypto}

// ParseMethodType maps a raw value onto a known MethodType.
func ParseMethodType(raw string) (MethodType, bool) {
	switch MethodType(strings.ToLower(strings.TrimSpace(raw))) {
	case MethodBankTransfer:
		return MethodBankTransfer, true
	case MethodPayPal:
		return MethodPayPal, true
	case MethodCrypto:
		return MethodCrypto, true
	}
	return "", false
}

// IsFiat reports whether the method settles into the fiat bucket.
func (t MethodType) IsFiat() bool {
	return t == MethodBankTransfer || t == MethodPayPal
}

// Valid reports whether t is one of the supported method types.
func (t MethodType) Valid() bool {
	switch t {
	case MethodBankTransfer, MethodPayPal, MethodCrypto:
		return true
	}
	return false
}

// CryptoType is the asset of a crypto method, always upper-case.
type CryptoType string

const (
	CryptoBTC  CryptoType = "BTC"
	CryptoETH  CryptoType = "ETH"
	CryptoUSDT CryptoType = "USDT"
)

// CryptoTypes lists the supported assets in menu order.
var CryptoTypes = []CryptoType{CryptoBTC, CryptoETH, CryptoUSDT}

// ParseCryptoType accepts any casing ("btc", "BTC").
func ParseCryptoType(raw string) (CryptoType, bool) {
	switch CryptoType(strings.ToUpper(strings.TrimSpace(raw))) {
	case CryptoBTC:
		return CryptoBTC, true
	case CryptoETH:
		return CryptoETH, true
	case CryptoUSDT:
		return CryptoUSDT, true
	}
	return "", false
}

// PaymentMethod is a saved payment channel. Methods are append-only and unique
// per user on (Type, Crypto, Details).
type PaymentMethod struct {
	Type    MethodType `json:"type" db:"type"`
	Crypto  CryptoType `json:"crypto_type,omitempty" db:"crypto_type"`
	Details string     `json:"details" db:"details"`
}

// Normalize trims details, upper-cases the crypto code and drops the crypto
// code for fiat methods.
func (m PaymentMethod) Normalize() PaymentMethod {
	m.Details = strings.TrimSpace(m.Details)
	if m.Type == MethodCrypto {
		m.Crypto = CryptoType(strings.ToUpper(strings.TrimSpace(string(m.Crypto))))
	} else {
		m.Crypto = ""
	}
	return m
}

// SameAs reports whether both methods share the uniqueness key.
func (m PaymentMethod) SameAs(other PaymentMethod) bool {
	a, b := m.Normalize(), other.Normalize()
	return a.Type == b.Type && a.Crypto == b.Crypto && a.Details == b.Details
}

// Complete reports whether every field required by the method type is set.
func (m PaymentMethod) Complete() bool {
	if !m.Type.Valid() || strings.TrimSpace(m.Details) == "" {
		return false
	}
	if m.Type == MethodCrypto {
		_, ok := ParseCryptoType(string(m.Crypto))
		return ok
	}
	return true
}

// Currency returns the ledger currency a transaction through m is booked in.
func (m PaymentMethod) Currency() string {
	if m.Type == MethodCrypto {
		return strings.ToUpper(string(m.Crypto))
	}
	return FiatCurrency
}

// Label is the human readable form used in menus and confirmations.
func (m PaymentMethod) Label() string {
	if m.Type == MethodCrypto {
		return fmt.Sprintf("%s %s (%s)", m.Type, m.Crypto, m.Details)
	}
	return fmt.Sprintf("%s (%s)", m.Type, m.Details)
}
