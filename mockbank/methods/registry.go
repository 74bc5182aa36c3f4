// Package methods keeps the per-user list of saved payment methods.
package methods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/badoux/checkmail"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/store"
)

// ErrInvalidDetails is returned for method details that cannot be saved.
var ErrInvalidDetails = errors.New("invalid payment method details")

// maxDetailsLen bounds the stored details string.
const maxDetailsLen = 256

// Users is the slice of the store the registry needs.
type Users interface {
	GetUser(ctx context.Context, userID int64) (model.User, error)
	UpdateUser(ctx context.Context, userID int64, upd store.UserUpdate) error
}

// Registry adds and lists payment methods.
type Registry struct {
	users Users
}

// NewRegistry wires a Registry over users.
func NewRegistry(users Users) *Registry {
	return &Registry{users: users}
}

// Validate checks free-text details for a method of type t. PayPal details
// must look like an e-mail address.
func Validate(m model.PaymentMethod) error {
	m = m.Normalize()
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDetails, m.Type)
	}
	if m.Details == "" {
		return fmt.Errorf("%w: details are empty", ErrInvalidDetails)
	}
	if len(m.Details) > maxDetailsLen {
		return fmt.Errorf("%w: details longer than %d bytes", ErrInvalidDetails, maxDetailsLen)
	}
	if strings.ContainsAny(m.Details, "\n\r\t") {
		return fmt.Errorf("%w: details must be a single line", ErrInvalidDetails)
	}
	switch m.Type {
	case model.MethodPayPal:
		if err := checkmail.ValidateFormat(m.Details); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDetails, err)
		}
	case model.MethodCrypto:
		if _, ok := model.ParseCryptoType(string(m.Crypto)); !ok {
			return fmt.Errorf("%w: unknown crypto type %q", ErrInvalidDetails, m.Crypto)
		}
		if strings.ContainsRune(m.Details, ' ') {
			return fmt.Errorf("%w: address must not contain spaces", ErrInvalidDetails)
		}
	}
	return nil
}

// AddIfUnique saves m unless the user already has an identical method. It
// reports whether m was added.
func (r *Registry) AddIfUnique(ctx context.Context, userID int64, m model.PaymentMethod) (bool, error) {
	if err := Validate(m); err != nil {
		return false, err
	}
	m = m.Normalize()

	u, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, existing := range u.Methods {
		if existing.SameAs(m) {
			logger.Debug(ctx, "methods", "method.exists",
				slog.Int64("user_id", userID),
				slog.String("method", string(m.Type)),
			)
			return false, nil
		}
	}
	if err := r.users.UpdateUser(ctx, userID, store.UserUpdate{PushMethods: []model.PaymentMethod{m}}); err != nil {
		return false, err
	}
	logger.Info(ctx, "methods", "method.added",
		slog.Int64("user_id", userID),
		slog.String("method", string(m.Type)),
		slog.String("crypto", string(m.Crypto)),
	)
	return true, nil
}

// List returns saved methods in insertion order. Unknown users have none.
func (r *Registry) List(ctx context.Context, userID int64) ([]model.PaymentMethod, error) {
	u, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u.Methods, nil
}
