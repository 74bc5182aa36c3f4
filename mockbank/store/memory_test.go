package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/session"
)

func TestMemoryUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.GetUser(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	u, created, err := s.CreateUserIfAbsent(ctx, 7)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(7), u.ID)
	assert.True(t, u.Balance.IsZero())

	_, created, err = s.CreateUserIfAbsent(ctx, 7)
	require.NoError(t, err)
	assert.False(t, created)

	bal := decimal.RequireFromString("12.5")
	paypal := model.PaymentMethod{Type: model.MethodPayPal, Details: "a@b.co"}
	require.NoError(t, s.UpdateUser(ctx, 7, UserUpdate{
		Balance:     &bal,
		PushMethods: []model.PaymentMethod{paypal, paypal, {Type: model.MethodCrypto, Crypto: "btc", Details: "x"}},
	}))
	u, err = s.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.True(t, u.Balance.Equal(bal))
	require.Len(t, u.Methods, 2)
	assert.Equal(t, model.CryptoBTC, u.Methods[1].Crypto)

	u.Methods[0].Details = "mutated"
	again, _ := s.GetUser(ctx, 7)
	assert.Equal(t, "a@b.co", again.Methods[0].Details, "returned users are copies")

	assert.ErrorIs(t, s.UpdateUser(ctx, 99, UserUpdate{}), ErrNotFound)
}

func TestMemoryTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, _, err := s.CreateUserIfAbsent(ctx, 1)
	require.NoError(t, err)

	tx, err := s.AddTransaction(ctx, model.NewTransaction{
		UserID: 1, Kind: model.KindDeposit, Method: model.MethodCrypto, Currency: "eth", Amount: decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "ETH", tx.Currency)
	assert.NotEqual(t, [16]byte{}, [16]byte(tx.ID))

	_, err = s.AddTransaction(ctx, model.NewTransaction{
		UserID: 1, Kind: model.KindWithdraw, Method: model.MethodBankTransfer, Currency: "USD", Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	txs, err := s.GetTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, model.KindDeposit, txs[0].Kind)
	assert.Equal(t, model.KindWithdraw, txs[1].Kind)

	_, err = s.AddTransaction(ctx, model.NewTransaction{
		UserID: 2, Kind: model.KindDeposit, Method: model.MethodPayPal, Currency: "USD", Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAddTransactionSameIDOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, _, err := s.CreateUserIfAbsent(ctx, 3)
	require.NoError(t, err)

	id := uuid.New()
	in := model.NewTransaction{
		ID: id, UserID: 3, Kind: model.KindDeposit, Method: model.MethodPayPal,
		Currency: model.FiatCurrency, Amount: decimal.NewFromInt(40),
	}
	first, err := s.AddTransaction(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, id, first.ID)

	again, err := s.AddTransaction(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	txs, err := s.GetTransactions(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestValidateTransaction(t *testing.T) {
	ok := model.NewTransaction{UserID: 1, Kind: model.KindDeposit, Method: model.MethodPayPal, Currency: "usd", Amount: decimal.NewFromInt(1)}
	require.NoError(t, ValidateTransaction(ok))

	bad := []func(*model.NewTransaction){
		func(tx *model.NewTransaction) { tx.UserID = 0 },
		func(tx *model.NewTransaction) { tx.Kind = "refund" },
		func(tx *model.NewTransaction) { tx.Method = "wire" },
		func(tx *model.NewTransaction) { tx.Amount = decimal.Zero },
		func(tx *model.NewTransaction) { tx.Amount = decimal.NewFromInt(-3) },
		func(tx *model.NewTransaction) { tx.Currency = "EUR" },
		func(tx *model.NewTransaction) { tx.Method = model.MethodCrypto; tx.Currency = "DOGE" },
		func(tx *model.NewTransaction) { tx.Method = model.MethodCrypto; tx.Currency = "" },
	}
	for i, mutate := range bad {
		tx := ok
		mutate(&tx)
		err := ValidateTransaction(tx)
		assert.True(t, IsValidationError(err), "case %d: %v", i, err)
	}
}

func TestMemoryFailWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, _, _ = s.CreateUserIfAbsent(ctx, 1)
	s.FailWrites(errors.New("disk full"))

	_, err := s.AddTransaction(ctx, model.NewTransaction{
		UserID: 1, Kind: model.KindDeposit, Method: model.MethodPayPal, Currency: "USD", Amount: decimal.NewFromInt(1),
	})
	assert.True(t, IsPersistenceError(err))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "persistence", pe.Code())

	s.FailWrites(nil)
	txs, _ := s.GetTransactions(ctx, 1)
	assert.Empty(t, txs)
}

func TestSessionStoreUsesUserRecord(t *testing.T) {
	ctx := context.Background()
	users := NewMemory()
	_, _, _ = users.CreateUserIfAbsent(ctx, 5)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ss := NewSessionStore(users, time.Hour)
	ss.now = func() time.Time { return now }

	sess, _ := session.Begin(session.FlowDeposit)
	sess, _ = sess.WithAmount(40)
	require.NoError(t, ss.Save(ctx, 5, sess))

	u, _ := users.GetUser(ctx, 5)
	assert.Contains(t, string(u.Session), `"amount":40`)

	got, err := ss.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, session.StageSelectMethod, got.Stage())
	assert.Equal(t, int64(40), got.Amount())

	now = now.Add(2 * time.Hour)
	got, err = ss.Load(ctx, 5)
	require.NoError(t, err)
	assert.True(t, got.IsIdle())

	require.NoError(t, ss.Clear(ctx, 5))
	u, _ = users.GetUser(ctx, 5)
	assert.Nil(t, u.Session)

	got, err = ss.Load(ctx, 404)
	require.NoError(t, err)
	assert.True(t, got.IsIdle())
	require.NoError(t, ss.Clear(ctx, 404))
}

func TestSessionStoreCorruptRecord(t *testing.T) {
	ctx := context.Background()
	users := NewMemory()
	_, _, _ = users.CreateUserIfAbsent(ctx, 5)
	require.NoError(t, users.UpdateUser(ctx, 5, UserUpdate{Session: []byte(`{"flow":"deposit","stage":"confirm","amount":100}`)}))

	_, err := NewSessionStore(users, 0).Load(ctx, 5)
	assert.ErrorIs(t, err, session.ErrCorrupt)
}
