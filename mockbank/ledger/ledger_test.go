package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

func tx(kind model.TxKind, method model.MethodType, currency, amount string) model.Transaction {
	return model.Transaction{
		UserID:   1,
		Kind:     kind,
		Method:   method,
		Currency: currency,
		Amount:   decimal.RequireFromString(amount),
	}
}

func TestComputeBuckets(t *testing.T) {
	b := Compute([]model.Transaction{
		tx(model.KindDeposit, model.MethodBankTransfer, "USD", "100"),
		tx(model.KindDeposit, model.MethodPayPal, "USD", "25.50"),
		tx(model.KindWithdraw, model.MethodBankTransfer, "USD", "10"),
		tx(model.KindDeposit, model.MethodCrypto, "btc", "2"),
		tx(model.KindDeposit, model.MethodCrypto, "ETH", "3"),
		tx(model.KindWithdraw, model.MethodCrypto, "BTC", "0.5"),
	})

	assert.True(t, b.Fiat.Equal(decimal.RequireFromString("115.5")), "fiat=%s", b.Fiat)
	assert.True(t, b.CryptoOf("BTC").Equal(decimal.RequireFromString("1.5")))
	assert.True(t, b.CryptoOf("eth").Equal(decimal.NewFromInt(3)))
	assert.True(t, b.Total.Equal(decimal.RequireFromString("120")), "total=%s", b.Total)
	assert.Equal(t, []string{"BTC", "ETH"}, b.Currencies())
}

func TestComputeSkipsMalformed(t *testing.T) {
	orphan := tx(model.KindDeposit, model.MethodBankTransfer, "USD", "1000")
	orphan.UserID = 0

	b := Compute([]model.Transaction{
		orphan,
		tx(model.KindDeposit, model.MethodBankTransfer, "USD", "40"),
		tx("", model.MethodBankTransfer, "USD", "1000"),
		tx(model.KindDeposit, "", "USD", "1000"),
		tx(model.KindDeposit, "wire", "USD", "1000"),
		tx(model.KindDeposit, model.MethodCrypto, "", "1000"),
		tx(model.KindDeposit, model.MethodPayPal, "USD", "0"),
		tx(model.KindWithdraw, model.MethodPayPal, "USD", "-5"),
	})

	assert.True(t, b.Fiat.Equal(decimal.NewFromInt(40)))
	assert.Empty(t, b.Crypto)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(40)))
}

func TestComputeEmpty(t *testing.T) {
	b := Compute(nil)
	assert.True(t, b.Fiat.IsZero())
	assert.True(t, b.Total.IsZero())
	assert.NotNil(t, b.Crypto)
}

func TestComputeIgnoresOrder(t *testing.T) {
	base := []model.Transaction{
		tx(model.KindDeposit, model.MethodBankTransfer, "USD", "0.1"),
		tx(model.KindDeposit, model.MethodBankTransfer, "USD", "0.2"),
		tx(model.KindWithdraw, model.MethodPayPal, "USD", "0.3"),
		tx(model.KindDeposit, model.MethodCrypto, "USDT", "1000000.000001"),
		tx(model.KindWithdraw, model.MethodCrypto, "USDT", "0.000001"),
		tx(model.KindDeposit, model.MethodCrypto, "ETH", "7.25"),
		tx(model.KindDeposit, model.MethodPayPal, "USD", "19.99"),
	}
	want := Compute(base)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		perm := append([]model.Transaction(nil), base...)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		got := Compute(perm)
		require.True(t, want.Equal(got), "permutation %d: want %+v got %+v", i, want, got)
	}
}

func TestDepositThenWithdrawSameAmountIsZero(t *testing.T) {
	b := Compute([]model.Transaction{
		tx(model.KindDeposit, model.MethodBankTransfer, "USD", "250"),
		tx(model.KindWithdraw, model.MethodBankTransfer, "USD", "250"),
	})
	assert.True(t, b.Fiat.IsZero())
}

func TestBucket(t *testing.T) {
	b := Compute([]model.Transaction{
		tx(model.KindDeposit, model.MethodBankTransfer, "USD", "10"),
		tx(model.KindDeposit, model.MethodCrypto, "BTC", "1"),
	})

	name, amount := b.Bucket(model.MethodPayPal, "USD")
	assert.Equal(t, FiatBucket, name)
	assert.True(t, amount.Equal(decimal.NewFromInt(10)))

	name, amount = b.Bucket(model.MethodCrypto, "btc")
	assert.Equal(t, "BTC", name)
	assert.True(t, amount.Equal(decimal.NewFromInt(1)))

	name, amount = b.Bucket(model.MethodCrypto, "ETH")
	assert.Equal(t, "ETH", name)
	assert.True(t, amount.IsZero())
}

type stubSource struct {
	txs []model.Transaction
	err error
}

func (s stubSource) GetTransactions(context.Context, int64) ([]model.Transaction, error) {
	return s.txs, s.err
}

func TestServiceBalance(t *testing.T) {
	svc := NewService(stubSource{txs: []model.Transaction{
		tx(model.KindDeposit, model.MethodPayPal, "USD", "12"),
	}})
	b, err := svc.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(12)))

	boom := errors.New("boom")
	_, err = NewService(stubSource{err: boom}).Balance(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}
