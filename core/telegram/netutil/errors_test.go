package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	tele "gopkg.in/telebot.v4"
)

func TestKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), KindTimeout},
		{"flood", tele.FloodError{RetryAfter: 3}, KindFlood},
		{"api 400", tele.ErrChatNotFound, Kind4xx},
		{"api 502", tele.NewError(502, "Bad Gateway"), Kind5xx},
		{"dial", &url.Error{Op: "Post", URL: "u", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, KindDial},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.telegram.org"}, KindDNS},
		{"text code", errors.New("telegram: message is too long (400)"), Kind4xx},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Kind(tc.err))
		})
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, Transient(tele.NewError(503, "Service Unavailable")))
	assert.False(t, Transient(tele.ErrChatNotFound))
	assert.False(t, Transient(tele.FloodError{RetryAfter: 1}))
	assert.False(t, Transient(nil))
}

func TestRetryAfter(t *testing.T) {
	d, ok := RetryAfter(tele.FloodError{RetryAfter: 4})
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, d)

	_, ok = RetryAfter(errors.New("boom"))
	assert.False(t, ok)
}

func TestRedact(t *testing.T) {
	msg := Redact(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage": timeout`)
	assert.NotContains(t, msg, "ABC-def")
	assert.Contains(t, msg, "bot<redacted>/sendMessage")
}
