package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

func confirmCrypto(t *testing.T) Session {
	t.Helper()
	s, err := Begin(FlowDeposit)
	require.NoError(t, err)
	s, err = s.WithAmount(100)
	require.NoError(t, err)
	s, err = s.AddingMethod()
	require.NoError(t, err)
	s, err = s.WithMethodType(model.MethodCrypto)
	require.NoError(t, err)
	assert.Equal(t, StageSelectCrypto, s.Stage())
	s, err = s.WithCrypto("btc")
	require.NoError(t, err)
	assert.Equal(t, model.CryptoBTC, s.Crypto())
	s, err = s.WithMethod(model.PaymentMethod{Type: model.MethodCrypto, Crypto: "BTC", Details: " bc1q "})
	require.NoError(t, err)
	return s
}

func TestTransitionsReachConfirm(t *testing.T) {
	s := confirmCrypto(t)
	assert.Equal(t, StageConfirm, s.Stage())
	assert.Equal(t, 4, s.Step())
	m, ok := s.Method()
	require.True(t, ok)
	assert.Equal(t, model.PaymentMethod{Type: model.MethodCrypto, Crypto: model.CryptoBTC, Details: "bc1q"}, m)
	assert.Equal(t, int64(100), s.Amount())
}

func TestFiatBranchGoesToDetails(t *testing.T) {
	s, _ := Begin(FlowWithdraw)
	s, _ = s.WithAmount(5)
	s, _ = s.AddingMethod()
	s, err := s.WithMethodType(model.MethodPayPal)
	require.NoError(t, err)
	assert.Equal(t, StageEnterDetails, s.Stage())
	assert.Equal(t, 3, s.Step())

	_, err = s.WithMethod(model.PaymentMethod{Type: model.MethodBankTransfer, Details: "Acme"})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestIllegalTransitions(t *testing.T) {
	_, err := Begin(FlowNone)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	idle := Idle()
	_, err = idle.WithAmount(10)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = idle.WithMethod(model.PaymentMethod{Type: model.MethodPayPal, Details: "a@b.co"})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	s, _ := Begin(FlowDeposit)
	_, err = s.WithAmount(0)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = s.AddingMethod()
	assert.ErrorIs(t, err, ErrIllegalTransition)

	s, _ = s.WithAmount(10)
	_, err = s.WithMethod(model.PaymentMethod{Type: model.MethodCrypto, Details: "x"})
	assert.ErrorIs(t, err, ErrIllegalTransition, "crypto without asset is incomplete")
	_, ok := s.Method()
	assert.False(t, ok)
}

func TestCodecRoundTripsEveryStage(t *testing.T) {
	s, _ := Begin(FlowDeposit)
	stages := []Session{s}
	s, _ = s.WithAmount(7)
	stages = append(stages, s)
	s, _ = s.AddingMethod()
	stages = append(stages, s)
	fiat, _ := s.WithMethodType(model.MethodBankTransfer)
	stages = append(stages, fiat)
	s, _ = s.WithMethodType(model.MethodCrypto)
	stages = append(stages, s)
	s, _ = s.WithCrypto(model.CryptoETH)
	stages = append(stages, s)
	stages = append(stages, confirmCrypto(t))

	for _, want := range stages {
		data, err := Marshal(want)
		require.NoError(t, err)
		got, err := Unmarshal(data)
		require.NoError(t, err, string(data))
		assert.Equal(t, want, got)
	}
}

func TestTxIDReservedOnceAtConfirm(t *testing.T) {
	id := uuid.New()
	s, err := confirmCrypto(t).WithTxID(id)
	require.NoError(t, err)
	assert.Equal(t, id, s.TxID())
	assert.Contains(t, s.String(), "tx="+id.String())

	again, err := s.WithTxID(id)
	require.NoError(t, err)
	assert.Equal(t, s, again)
	_, err = s.WithTxID(uuid.New())
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = confirmCrypto(t).WithTxID(uuid.Nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	pending, _ := Begin(FlowDeposit)
	_, err = pending.WithTxID(id)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	data, err := Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tx_id":"`+id.String()+`"`)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestUnmarshalEmptyIsIdle(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", "  "} {
		s, err := Unmarshal([]byte(raw))
		require.NoError(t, err, raw)
		assert.True(t, s.IsIdle(), raw)
	}
}

func TestUnmarshalRejectsCorrupt(t *testing.T) {
	cases := map[string]string{
		"confirm without method":  `{"flow":"deposit","stage":"confirm","amount":100}`,
		"confirm without amount":  `{"flow":"withdraw","stage":"confirm","selected_method_type":"paypal","selected_method_details":"a@b.co"}`,
		"amount before amount":    `{"flow":"deposit","stage":"amount","amount":3}`,
		"fields without flow":     `{"amount":3}`,
		"unknown flow":            `{"flow":"transfer","stage":"amount"}`,
		"step mismatch":           `{"flow":"deposit","stage":"select_method","step":4,"amount":3}`,
		"crypto without asset":    `{"flow":"deposit","stage":"confirm","amount":1,"selected_method_type":"crypto","selected_method_details":"x"}`,
		"bad json":                `{"flow":`,
		"details on fiat pending": `{"flow":"deposit","stage":"enter_details","amount":1,"selected_method_type":"paypal","selected_method_details":"a"}`,
		"tx id before confirm":    `{"flow":"deposit","stage":"select_method","amount":1,"tx_id":"0b6f4f6e-8f7e-4a43-9a86-0c2b1c7d4e11"}`,
		"malformed tx id":         `{"flow":"deposit","stage":"confirm","amount":1,"selected_method_type":"paypal","selected_method_details":"a@b.co","tx_id":"42"}`,
	}
	for name, raw := range cases {
		_, err := Unmarshal([]byte(raw))
		assert.ErrorIs(t, err, ErrCorrupt, name)
	}
}

func TestUnmarshalStepOnlyRecords(t *testing.T) {
	s, err := Unmarshal([]byte(`{"flow":"deposit","step":4,"amount":100,"selected_method_type":"bank_transfer","selected_method_details":"Acme Bank"}`))
	require.NoError(t, err)
	assert.Equal(t, StageConfirm, s.Stage())

	s, err = Unmarshal([]byte(`{"flow":"deposit","step":3,"amount":100,"selected_method_type":"crypto","selected_crypto_type":"eth"}`))
	require.NoError(t, err)
	assert.Equal(t, StageEnterAddress, s.Stage())
	assert.Equal(t, model.CryptoETH, s.Crypto())
}

func TestExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, _ := Begin(FlowDeposit)
	s = s.Touched(now)
	assert.False(t, s.Expired(time.Hour, now.Add(59*time.Minute)))
	assert.True(t, s.Expired(time.Hour, now.Add(61*time.Minute)))
	assert.False(t, s.Expired(0, now.Add(1000*time.Hour)))
	assert.False(t, Idle().Expired(time.Hour, now.Add(2*time.Hour)))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newMemoryStore(time.Hour, func() time.Time { return now })

	got, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.IsIdle())

	s, _ := Begin(FlowWithdraw)
	require.NoError(t, store.Save(ctx, 1, s))
	got, err = store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, FlowWithdraw, got.Flow())
	assert.Equal(t, now, got.UpdatedAt())

	other, err := store.Load(ctx, 2)
	require.NoError(t, err)
	assert.True(t, other.IsIdle())

	now = now.Add(2 * time.Hour)
	got, err = store.Load(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.IsIdle(), "expired session reads as idle")

	require.NoError(t, store.Save(ctx, 1, s))
	require.NoError(t, store.Clear(ctx, 1))
	got, _ = store.Load(ctx, 1)
	assert.True(t, got.IsIdle())
}
