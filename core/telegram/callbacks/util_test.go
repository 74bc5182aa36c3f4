package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name         string
		cb           *tele.Callback
		key, payload string
	}{
		{"nil", nil, "", ""},
		{"raw with payload", &tele.Callback{Data: "\fcrypto_type|btc"}, "crypto_type", "btc"},
		{"raw without payload", &tele.Callback{Data: "\fdeposit"}, "deposit", ""},
		{"payload keeps separators", &tele.Callback{Data: "\fx|a|b"}, "x", "a|b"},
		{"already split", &tele.Callback{Unique: "use_method", Data: "2"}, "use_method", "2"},
		{"foreign data", &tele.Callback{Data: "legacy"}, "legacy", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tc.cb)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.payload, payload)
		})
	}
}
