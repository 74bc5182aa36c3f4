// Package netutil classifies failures of Telegram API calls.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Error kinds reported by Kind.
const (
	KindTimeout = "timeout"
	KindDial    = "dial"
	KindDNS     = "dns"
	KindTLS     = "tls"
	KindFlood   = "flood"
	Kind4xx     = "http_4xx"
	Kind5xx     = "http_5xx"
	KindUnknown = "unknown"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Kind names the class of err for logs and retry decisions.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return KindFlood
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return statusKind(apiErr.Code)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindDial
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return KindTLS
	}

	return statusKind(trailingCode(err.Error()))
}

// Transient reports whether another attempt of the same call may succeed.
func Transient(err error) bool {
	switch Kind(err) {
	case KindTimeout, KindDial, KindDNS, Kind5xx:
		return true
	}
	return false
}

// RetryAfter returns the wait Telegram asked for on a flood error.
func RetryAfter(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if !errors.As(err, &flood) {
		return 0, false
	}
	return time.Duration(flood.RetryAfter) * time.Second, true
}

// Redact hides bot tokens embedded in API URLs.
func Redact(msg string) string {
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}

func statusKind(code int) string {
	switch {
	case code == 429:
		return KindFlood
	case code >= 500:
		return Kind5xx
	case code >= 400:
		return Kind4xx
	}
	return KindUnknown
}

// trailingCode reads the "(400)" suffix telebot puts on API errors.
func trailingCode(msg string) int {
	open, end := strings.LastIndexByte(msg, '('), strings.LastIndexByte(msg, ')')
	if open < 0 || end <= open+1 {
		return 0
	}
	code, _ := strconv.Atoi(strings.TrimSpace(msg[open+1 : end]))
	return code
}
