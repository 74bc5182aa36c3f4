// Package sender runs outbound Telegram calls off the update path.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the shard of the call has no room left.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options sizes the dispatcher. Zero values pick the defaults.
type Options struct {
	// Shards is the number of workers. Calls with the same key always run
	// on the same shard in enqueue order.
	Shards int
	// QueueSize bounds the pending calls of one shard.
	QueueSize int
	// Attempts is the total number of tries of a transient failure.
	Attempts int
	Backoff  time.Duration
	// Deadline bounds the time spent on one call, retries included.
	Deadline time.Duration
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	if o.Deadline <= 0 {
		o.Deadline = 15 * time.Second
	}
	return o
}

// Call is one outbound request. Run must be safe to repeat.
type Call struct {
	// Key picks the shard, normally the chat id.
	Key    int64
	Action string
	Run    func() error
}

type job struct {
	ctx  context.Context
	call Call
}

// Stats counts finished calls.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Retried uint64
}

// Dispatcher executes calls on key-sharded workers so replies to one chat
// keep their order while different chats proceed in parallel.
type Dispatcher struct {
	opts   Options
	shards []chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent, failed, retried atomic.Uint64
}

// NewDispatcher starts the shard workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, shards: make([]chan job, opts.Shards)}
	d.wg.Add(opts.Shards)
	for i := range d.shards {
		d.shards[i] = make(chan job, opts.QueueSize)
		go d.worker(d.shards[i])
	}
	return d
}

// Enqueue schedules call. Log lines of the call carry the metadata of ctx.
func (d *Dispatcher) Enqueue(ctx context.Context, call Call) error {
	if call.Run == nil {
		return errors.New("telegram sender: nil call")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.shards[uint64(call.Key)%uint64(len(d.shards))] <- job{ctx: context.WithoutCancel(ctx), call: call}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns the counters so far.
func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Retried: d.retried.Load()}
}

// Close stops accepting calls and waits for the queued ones. Safe to call twice.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.Deadline)
	defer cancel()

	start := time.Now()
	attempt := 0
	var err error
	for {
		attempt++
		if err = j.call.Run(); err == nil {
			break
		}
		wait, ok := d.retryDelay(ctx, err, attempt)
		if !ok {
			break
		}
		d.retried.Add(1)
		logger.Debug(ctx, "tg.sender", "send.retry",
			slog.String("action", j.call.Action),
			slog.Int("attempt", attempt),
			slog.String("err_code", netutil.Kind(err)),
			slog.Duration("wait", wait),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
			continue
		}
		break
	}

	if err != nil {
		d.failed.Add(1)
		logger.Error(ctx, "tg.sender", "send.fail",
			slog.String("action", j.call.Action),
			slog.Int("attempts", attempt),
			slog.String("err_code", netutil.Kind(err)),
			slog.String("err", logger.Clip(netutil.Redact(err.Error()), 256)),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	d.sent.Add(1)
	logger.Debug(ctx, "tg.sender", "send.ok",
		slog.String("action", j.call.Action),
		slog.Int("attempt", attempt),
		slog.Duration("duration", time.Since(start)),
	)
}

// retryDelay decides whether err deserves another attempt and how long to
// wait first. Flood waits come from Telegram; the rest back off linearly.
func (d *Dispatcher) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= d.opts.Attempts {
		return 0, false
	}
	wait, flood := netutil.RetryAfter(err)
	switch {
	case flood:
	case netutil.Transient(err):
		wait = d.opts.Backoff * time.Duration(attempt)
	default:
		return 0, false
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < wait {
		return 0, false
	}
	return wait, true
}
