// Package writebehind implements the batched, asynchronous logging
// path for visitor hits, realtime events, captured emails, and the
// decision engine's CIDR-range/IP-cache convictions. The request
// handler enqueues and returns immediately; a background task drains
// each queue on a fixed tick, so a slow or unavailable database never
// blocks a redirect.
package writebehind

import (
	"context"
	"time"

	"github.com/ignite/redirectgate/internal/blacklist"
	"github.com/ignite/redirectgate/internal/domain"
	"github.com/ignite/redirectgate/internal/pkg/logger"
)

// Store is the persistence contract the logger writes through. It is
// satisfied by the Postgres repository and by an in-memory fake in
// tests. UpsertCIDRRange and UpsertIPCache carry BOT convictions out of
// the decision engine's in-memory structures so a freshly restarted
// replica recovers them from the shared tables instead of relearning
// every one from scratch.
type Store interface {
	InsertVisitorLogs(ctx context.Context, rows []domain.VisitorLog) error
	InsertRealtimeEvents(ctx context.Context, rows []domain.RealtimeEvent) error
	InsertCapturedEmails(ctx context.Context, rows []domain.CapturedEmail) error
	UpsertCIDRRange(ctx context.Context, e blacklist.Entry) error
	UpsertIPCache(ctx context.Context, e domain.IPCacheEntry) error
}

// Logger owns five bounded queues and a single background flush task.
type Logger struct {
	store Store

	visitorLogs    chan domain.VisitorLog
	realtimeEvents chan domain.RealtimeEvent
	capturedEmails chan domain.CapturedEmail
	cidrRanges     chan blacklist.Entry
	ipCacheEntries chan domain.IPCacheEntry

	batchSize      int
	flushInterval  time.Duration
	maxRequeueRows int

	flushNowCh chan struct{}
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// Config tunes the logger's batching behavior.
type Config struct {
	QueueCapacity  int
	BatchSize      int
	FlushInterval  time.Duration
	MaxRequeueRows int
}

// New creates a write-behind logger backed by store. Call Start to
// begin the background flush loop.
func New(store Store, cfg Config) *Logger {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MaxRequeueRows <= 0 {
		cfg.MaxRequeueRows = 10
	}
	return &Logger{
		store:          store,
		visitorLogs:    make(chan domain.VisitorLog, cfg.QueueCapacity),
		realtimeEvents: make(chan domain.RealtimeEvent, cfg.QueueCapacity),
		capturedEmails: make(chan domain.CapturedEmail, cfg.QueueCapacity),
		cidrRanges:     make(chan blacklist.Entry, cfg.QueueCapacity),
		ipCacheEntries: make(chan domain.IPCacheEntry, cfg.QueueCapacity),
		batchSize:      cfg.BatchSize,
		flushInterval:  cfg.FlushInterval,
		maxRequeueRows: cfg.MaxRequeueRows,
		flushNowCh:     make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// EnqueueVisitorLog enqueues a visitor hit. Never blocks: if the queue
// is full, the row is dropped and a warning is logged — losing one log
// line is acceptable, delaying a redirect is not.
func (l *Logger) EnqueueVisitorLog(row domain.VisitorLog) {
	select {
	case l.visitorLogs <- row:
		l.maybeImmediateFlush(len(l.visitorLogs), cap(l.visitorLogs))
	default:
		logger.Warn("visitor log queue full, dropping row", "redirect_id", row.RedirectID)
	}
}

// EnqueueRealtimeEvent enqueues a realtime event.
func (l *Logger) EnqueueRealtimeEvent(row domain.RealtimeEvent) {
	select {
	case l.realtimeEvents <- row:
		l.maybeImmediateFlush(len(l.realtimeEvents), cap(l.realtimeEvents))
	default:
		logger.Warn("realtime event queue full, dropping row", "redirect_id", row.RedirectID)
	}
}

// EnqueueCapturedEmail enqueues a captured-email row.
func (l *Logger) EnqueueCapturedEmail(row domain.CapturedEmail) {
	select {
	case l.capturedEmails <- row:
		l.maybeImmediateFlush(len(l.capturedEmails), cap(l.capturedEmails))
	default:
		logger.Warn("captured email queue full, dropping row", "redirect_id", row.RedirectID)
	}
}

// EnqueueCIDRRange enqueues a newly convicted CIDR range for durable
// storage. Unlike the visitor/event/email queues, losing a row here
// only costs a replica its memory of one conviction on restart — still
// best-effort, dropped rather than blocking a redirect.
func (l *Logger) EnqueueCIDRRange(row blacklist.Entry) {
	select {
	case l.cidrRanges <- row:
		l.maybeImmediateFlush(len(l.cidrRanges), cap(l.cidrRanges))
	default:
		logger.Warn("cidr range queue full, dropping row", "cidr", row.CIDR)
	}
}

// EnqueueIPCache enqueues a cached Stage-2 (or Stage-1) verdict for
// durable storage.
func (l *Logger) EnqueueIPCache(row domain.IPCacheEntry) {
	select {
	case l.ipCacheEntries <- row:
		l.maybeImmediateFlush(len(l.ipCacheEntries), cap(l.ipCacheEntries))
	default:
		logger.Warn("ip cache queue full, dropping row", "ip", row.IP)
	}
}

func (l *Logger) maybeImmediateFlush(queued, capacity int) {
	// A queue length at or above 2x batch size signals a tick is
	// falling behind; nudge an immediate flush rather than waiting
	// for the next tick.
	if queued >= 2*l.batchSize && queued < capacity {
		select {
		case l.flushNowCh <- struct{}{}:
		default:
		}
	}
}

// Start launches the background flush loop. Stop must be called during
// shutdown to drain and terminate it.
func (l *Logger) Start(ctx context.Context) {
	ticker := time.NewTicker(l.flushInterval)
	go func() {
		defer ticker.Stop()
		defer close(l.doneCh)
		for {
			select {
			case <-ticker.C:
				l.flushAll(ctx)
			case <-l.flushNowCh:
				l.flushAll(ctx)
			case <-l.stopCh:
				l.flushAll(ctx)
				return
			}
		}
	}()
}

func (l *Logger) flushAll(ctx context.Context) {
	l.flushVisitorLogs(ctx)
	l.flushRealtimeEvents(ctx)
	l.flushCapturedEmails(ctx)
	l.flushCIDRRanges(ctx)
	l.flushIPCacheEntries(ctx)
}

func (l *Logger) flushVisitorLogs(ctx context.Context) {
	batch := drain(l.visitorLogs, l.batchSize)
	if len(batch) == 0 {
		return
	}
	if err := l.store.InsertVisitorLogs(ctx, batch); err != nil {
		requeueOrDrop(err, "visitor_logs", batch, l.visitorLogs, l.maxRequeueRows)
	}
}

func (l *Logger) flushRealtimeEvents(ctx context.Context) {
	batch := drain(l.realtimeEvents, l.batchSize)
	if len(batch) == 0 {
		return
	}
	if err := l.store.InsertRealtimeEvents(ctx, batch); err != nil {
		requeueOrDrop(err, "realtime_events", batch, l.realtimeEvents, l.maxRequeueRows)
	}
}

func (l *Logger) flushCapturedEmails(ctx context.Context) {
	batch := drain(l.capturedEmails, l.batchSize)
	if len(batch) == 0 {
		return
	}
	if err := l.store.InsertCapturedEmails(ctx, batch); err != nil {
		requeueOrDrop(err, "captured_emails", batch, l.capturedEmails, l.maxRequeueRows)
	}
}

// flushCIDRRanges and flushIPCacheEntries upsert one row at a time,
// since the Store methods behind them are single-row ON CONFLICT
// upserts rather than batch inserts. A row that fails to upsert, and
// everything still behind it in the batch, is requeued together.
func (l *Logger) flushCIDRRanges(ctx context.Context) {
	batch := drain(l.cidrRanges, l.batchSize)
	for i, row := range batch {
		if err := l.store.UpsertCIDRRange(ctx, row); err != nil {
			requeueOrDrop(err, "cidr_ranges", batch[i:], l.cidrRanges, l.maxRequeueRows)
			return
		}
	}
}

func (l *Logger) flushIPCacheEntries(ctx context.Context) {
	batch := drain(l.ipCacheEntries, l.batchSize)
	for i, row := range batch {
		if err := l.store.UpsertIPCache(ctx, row); err != nil {
			requeueOrDrop(err, "ip_cache", batch[i:], l.ipCacheEntries, l.maxRequeueRows)
			return
		}
	}
}

// requeueOrDrop sends a failed batch back onto its queue if it is small
// enough, otherwise drops it. The rows go to the tail of the channel, in
// reverse batch order, behind anything enqueued since the batch was
// drained; rows that no longer fit in the channel are dropped. Losing a
// handful of log rows is
// acceptable; the redirect itself already completed successfully.
func requeueOrDrop[T any](err error, queueName string, batch []T, ch chan T, maxRequeueRows int) {
	if len(batch) > maxRequeueRows {
		logger.Error("flush failed, dropping batch", "queue", queueName, "rows", len(batch), "error", err.Error())
		return
	}
	logger.Warn("flush failed, requeuing batch", "queue", queueName, "rows", len(batch), "error", err.Error())
	for i := len(batch) - 1; i >= 0; i-- {
		select {
		case ch <- batch[i]:
		default:
			return
		}
	}
}

func drain[T any](ch chan T, max int) []T {
	var out []T
	for len(out) < max {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
	return out
}

// Stop signals the background loop to perform a final flush and exit,
// then waits for it to finish.
func (l *Logger) Stop() {
	close(l.stopCh)
	<-l.doneCh
}
