// Package lanes runs update handlers on per-key ordered queues.
//
// Telebot is started in synchronous mode and the lanes middleware hands each
// update to the lane of its sender. A lane is a goroutine that exists while
// the key has pending work, so updates from one user are handled strictly in
// arrival order while different users are handled concurrently.
package lanes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	tghelpers "github.com/Gabrielbm2/chatbot-telegram/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrLaneFull is returned when a key already has MaxPending queued jobs.
	ErrLaneFull = errors.New("lanes: lane full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("lanes: closed")
)

const defaultMaxPending = 32

// Options configures a Pool.
type Options struct {
	// MaxPending bounds the queued (not yet running) jobs per key.
	MaxPending int
	// OnError receives errors returned by handlers run through Middleware.
	OnError func(error, tele.Context)
}

type lane struct {
	queue []func()
}

// Pool owns the lanes.
type Pool struct {
	opts Options

	mu     sync.Mutex
	lanes  map[int64]*lane
	closed bool
	wg     sync.WaitGroup
}

// New creates an empty pool.
func New(opts Options) *Pool {
	if opts.MaxPending <= 0 {
		opts.MaxPending = defaultMaxPending
	}
	return &Pool{opts: opts, lanes: make(map[int64]*lane)}
}

// Submit queues fn on the lane of key.
func (p *Pool) Submit(key int64, fn func()) error {
	if fn == nil {
		return errors.New("lanes: nil job")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	l, ok := p.lanes[key]
	if !ok {
		l = &lane{}
		p.lanes[key] = l
		p.wg.Add(1)
		go p.run(key, l)
	}
	if len(l.queue) >= p.opts.MaxPending {
		return ErrLaneFull
	}
	l.queue = append(l.queue, fn)
	return nil
}

func (p *Pool) run(key int64, l *lane) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if len(l.queue) == 0 {
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		p.mu.Unlock()

		p.exec(key, fn)
	}
}

func (p *Pool) exec(key int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "tg", "lane.panic",
				slog.Int64("lane", key),
				slog.String("err", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}

// Active returns the number of lanes with pending or running work.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Close stops accepting work and waits for queued jobs to drain or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Middleware hands the update to the lane of its sender and returns at once.
func (p *Pool) Middleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		key := KeyOf(c)
		err := p.Submit(key, func() {
			if err := next(c); err != nil && p.opts.OnError != nil {
				p.opts.OnError(err, c)
			}
		})
		if err != nil {
			logger.Warn(tghelpers.Context(c), "tg", "lane.drop",
				slog.Int64("lane", key),
				slog.Any("err", err),
			)
			if errors.Is(err, ErrLaneFull) && c.Callback() != nil {
				_ = c.Respond(&tele.CallbackResponse{Text: "Please wait..."})
			}
		}
		return nil
	}
}

// KeyOf picks the lane key of an update: the sender, else the chat.
func KeyOf(c tele.Context) int64 {
	if u := c.Sender(); u != nil && u.ID != 0 {
		return u.ID
	}
	if ch := c.Chat(); ch != nil {
		return ch.ID
	}
	return 0
}
