package telegram

import (
	"net"
	"net/http"
	"strconv"
	"time"

	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const (
	defaultLongPoll = 10 * time.Second
	// clientTimeout stays above the long poll so getUpdates is not cut short.
	clientTimeout = 30 * time.Second
	dialAttempts  = 3
	dialBackoff   = time.Second
)

// newPoller picks the webhook or long poller from run_mode.
func newPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	timeout := time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultLongPoll
	}
	return &tele.LongPoller{Timeout: timeout}
}

// newHTTPClient returns the client of the Bot API. Requests that never
// reached the server are retried; everything else is left to the sender.
func newHTTPClient() *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   clientTimeout,
		Transport: &dialRetry{base: base, attempts: dialAttempts, backoff: dialBackoff},
	}
}

// dialRetry repeats a request whose connection could not be opened.
type dialRetry struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *dialRetry) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		if err == nil || attempt >= t.attempts || !netutil.Transient(err) || netutil.Kind(err) == netutil.KindTimeout {
			return resp, err
		}
		if req.Body != nil && req.GetBody == nil {
			return resp, err
		}
		next := req.Clone(req.Context())
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, err
			}
			next.Body = body
		}
		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
		req = next
	}
}
