package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

// Memory is an in-process Store used in tests and for the memory backend.
type Memory struct {
	mu    sync.RWMutex
	users map[int64]*model.User
	txs   map[int64][]model.Transaction
	now   func() time.Time

	// failWrites makes every write fail; tests use it to simulate an outage.
	failWrites error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[int64]*model.User),
		txs:   make(map[int64][]model.Transaction),
		now:   time.Now,
	}
}

// FailWrites makes subsequent writes return err wrapped as a PersistenceError.
// Passing nil restores normal operation.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = err
}

func cloneUser(u *model.User) model.User {
	out := *u
	out.Methods = slices.Clone(u.Methods)
	out.Session = slices.Clone(u.Session)
	return out
}

func (m *Memory) GetUser(_ context.Context, userID int64) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) CreateUserIfAbsent(_ context.Context, userID int64) (model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return cloneUser(u), false, nil
	}
	if m.failWrites != nil {
		return model.User{}, false, persistErr("create user", m.failWrites)
	}
	u := &model.User{ID: userID, Balance: decimal.Zero, CreatedAt: m.now()}
	m.users[userID] = u
	return cloneUser(u), true, nil
}

func (m *Memory) UpdateUser(_ context.Context, userID int64, upd UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if m.failWrites != nil {
		return persistErr("update user", m.failWrites)
	}
	if upd.Balance != nil {
		u.Balance = *upd.Balance
	}
	switch {
	case upd.ClearSession:
		u.Session = nil
	case len(upd.Session) > 0:
		u.Session = slices.Clone(upd.Session)
	}
	if len(upd.PushMethods) > 0 {
		u.Methods = appendUnique(u.Methods, upd.PushMethods)
	}
	return nil
}

func (m *Memory) AddTransaction(_ context.Context, in model.NewTransaction) (model.Transaction, error) {
	if err := ValidateTransaction(in); err != nil {
		return model.Transaction{}, err
	}
	in = normalizeTransaction(in)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[in.UserID]; !ok {
		return model.Transaction{}, ErrNotFound
	}
	if m.failWrites != nil {
		return model.Transaction{}, persistErr("add transaction", m.failWrites)
	}
	if in.ID != uuid.Nil {
		if i := slices.IndexFunc(m.txs[in.UserID], func(t model.Transaction) bool { return t.ID == in.ID }); i >= 0 {
			return m.txs[in.UserID][i], nil
		}
	}
	tx := model.Transaction{
		ID:        in.ID,
		UserID:    in.UserID,
		Kind:      in.Kind,
		Method:    in.Method,
		Currency:  in.Currency,
		Amount:    in.Amount,
		CreatedAt: m.now(),
	}
	tx.GenerateID()
	m.txs[in.UserID] = append(m.txs[in.UserID], tx)
	return tx, nil
}

func (m *Memory) GetTransactions(_ context.Context, userID int64) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.txs[userID]), nil
}

func (m *Memory) Close() error { return nil }
