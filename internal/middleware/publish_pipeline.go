package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FieldScan/internal/domain/models"
	domrepo "FieldScan/internal/domain/repository"
	applogger "FieldScan/pkg/logger"
)

// PublishPipeline sits between the scan and the event publisher. A failed
// publish is parked in a bounded buffer and retried in the background with
// exponential backoff, so a broker outage never fails a committed ticker.
type PublishPipeline struct {
	next    domrepo.Publisher
	metrics domrepo.Metrics
	l       *applogger.Logger

	bufCh      chan *pending
	retryMax   int
	backoffMin time.Duration
	backoffMax time.Duration
	flushWait  time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}
}

type pending struct {
	result   models.TickerResult
	attempts int
}

type PipelineOption func(*PublishPipeline)

// WithBufferSize sets how many results may wait for a retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *PublishPipeline) {
		if n > 0 {
			p.bufCh = make(chan *pending, n)
		}
	}
}

// WithRetry sets the attempt cap and backoff bounds.
func WithRetry(maxAttempts int, min, max time.Duration) PipelineOption {
	return func(p *PublishPipeline) {
		if maxAttempts > 0 {
			p.retryMax = maxAttempts
		}
		if min > 0 {
			p.backoffMin = min
		}
		if max >= p.backoffMin {
			p.backoffMax = max
		}
	}
}

// WithFlushTimeout bounds the final drain in Close.
func WithFlushTimeout(d time.Duration) PipelineOption {
	return func(p *PublishPipeline) {
		if d > 0 {
			p.flushWait = d
		}
	}
}

func NewPublishPipeline(next domrepo.Publisher, metrics domrepo.Metrics, l *applogger.Logger, opts ...PipelineOption) *PublishPipeline {
	if l == nil {
		l = applogger.Nop()
	}
	p := &PublishPipeline{
		next:       next,
		metrics:    metrics,
		l:          l,
		bufCh:      make(chan *pending, 1024),
		retryMax:   5,
		backoffMin: 200 * time.Millisecond,
		backoffMax: 10 * time.Second,
		flushWait:  5 * time.Second,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish forwards result downstream. On failure the result is buffered and
// nil is returned; an error means the buffer was full and the result dropped.
func (p *PublishPipeline) Publish(ctx context.Context, result models.TickerResult) error {
	if result.Empty() {
		return nil
	}
	start := time.Now()
	err := p.next.Publish(ctx, result)
	if err == nil {
		p.metrics.RecordLatency("publish", time.Since(start).Seconds())
		return nil
	}

	p.metrics.RecordError("publish")
	select {
	case p.bufCh <- &pending{result: result, attempts: 1}:
		p.l.Warn("publish failed, buffered for retry",
			applogger.String("ticker", result.Ticker),
			applogger.Int("buffered", len(p.bufCh)),
			applogger.Error(err),
		)
		return nil
	default:
		p.metrics.RecordError("publish_buffer_full")
		return fmt.Errorf("publish %s: buffer full: %w", result.Ticker, err)
	}
}

// Buffered reports how many results await a retry.
func (p *PublishPipeline) Buffered() int {
	return len(p.bufCh)
}

// Start launches the retry loop.
func (p *PublishPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.retryLoop(ctx)
}

func (p *PublishPipeline) retryLoop(ctx context.Context) {
	defer close(p.done)
	backoff := p.backoffMin
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case it := <-p.bufCh:
			if err := p.next.Publish(ctx, it.result); err == nil {
				backoff = p.backoffMin
				continue
			}
			it.attempts++
			if it.attempts >= p.retryMax {
				p.metrics.RecordError("publish_drop")
				p.l.Error("publish retries exhausted, dropping",
					applogger.String("ticker", it.result.Ticker),
					applogger.Int("attempts", it.attempts),
				)
				continue
			}

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-p.stopCh:
				timer.Stop()
				p.requeue(it)
				return
			case <-ctx.Done():
				timer.Stop()
				p.requeue(it)
				return
			}
			if backoff *= 2; backoff > p.backoffMax {
				backoff = p.backoffMax
			}
			p.requeue(it)
		}
	}
}

func (p *PublishPipeline) requeue(it *pending) {
	select {
	case p.bufCh <- it:
	default:
		p.metrics.RecordError("publish_buffer_full")
	}
}

// Close stops the retry loop, makes one last attempt for every buffered
// result and closes the downstream publisher.
func (p *PublishPipeline) Close() error {
	p.mu.Lock()
	wasStarted := p.started
	p.started = false
	p.mu.Unlock()
	if wasStarted {
		close(p.stopCh)
		<-p.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.flushWait)
	defer cancel()
	lost := 0
	for len(p.bufCh) > 0 {
		it := <-p.bufCh
		if err := p.next.Publish(ctx, it.result); err != nil {
			lost++
		}
	}
	if lost > 0 {
		p.metrics.RecordError("publish_drop")
		p.l.Error("unpublished results dropped on close", applogger.Int("count", lost))
	}
	return p.next.Close()
}
