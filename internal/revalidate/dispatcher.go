package revalidate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"talent-source/services"
	"talent-source/utils"
)

const SecretHeader = "X-Revalidate-Secret"

var ErrQueueFull = errors.New("revalidation queue full")

type Config struct {
	URL       string
	Secret    string
	QueueSize int
}

// Dispatcher invalidates local cache tags synchronously and forwards targets
// to the frontend from a single background worker.
type Dispatcher struct {
	hooks  Hooks
	cache  services.Cache
	url    string
	secret string
	client *http.Client

	queue     chan Target
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	retryBase time.Duration
}

func NewDispatcher(hooks Hooks, cache services.Cache, cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	d := &Dispatcher{
		hooks:     hooks,
		cache:     cache,
		url:       strings.TrimSpace(cfg.URL),
		secret:    cfg.Secret,
		client:    &http.Client{Timeout: 10 * time.Second},
		queue:     make(chan Target, cfg.QueueSize),
		done:      make(chan struct{}),
		retryBase: time.Second,
	}
	go d.run()
	return d
}

func (d *Dispatcher) Notify(ctx context.Context, changes ...Change) {
	if Disabled(ctx) {
		return
	}
	var target Target
	for _, c := range changes {
		target = target.Merge(d.hooks.For(c))
	}
	if err := d.Revalidate(ctx, target); err != nil {
		utils.Logger().Warn("revalidation dropped", zap.Strings("tags", target.Tags), zap.Error(err))
	}
}

// Revalidate drops cached entries for target.Tags and queues the webhook.
func (d *Dispatcher) Revalidate(ctx context.Context, target Target) error {
	if target.Empty() {
		return nil
	}
	if d.cache != nil && len(target.Tags) > 0 {
		if err := d.cache.InvalidateTags(ctx, target.Tags...); err != nil {
			utils.Logger().Error("cache invalidation failed", zap.Strings("tags", target.Tags), zap.Error(err))
		}
	}
	if d.url == "" {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("dispatcher closed")
	}
	select {
	case d.queue <- target:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued targets to be sent.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	defer d.client.CloseIdleConnections()
	for target := range d.queue {
		if err := d.send(target); err != nil {
			utils.Logger().Error("frontend revalidation failed", zap.Strings("paths", target.Paths), zap.Error(err))
		}
	}
}

func (d *Dispatcher) send(target Target) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryBase
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.post(ctx, target)
		var statusErr *services.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(4))
	if err == nil {
		utils.Debug("frontend revalidated", zap.Strings("paths", target.Paths), zap.Strings("tags", target.Tags))
	}
	return err
}

func (d *Dispatcher) post(ctx context.Context, target Target) error {
	header := http.Header{}
	header.Set(SecretHeader, d.secret)
	return services.PostJSON(ctx, d.client, d.url, header, target, nil)
}
