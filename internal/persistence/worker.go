package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"VaultLedger/internal/observability"
	"VaultLedger/internal/vault"
)

// PersistenceWorker drains the ledger's persist channel and batch-writes
// to Postgres. The ledger uses blocking sends on that channel, so if this
// worker falls behind the ledger stalls instead of losing events.
type PersistenceWorker struct {
	writer       *EventLogWriter
	db           *sql.DB
	inputChan    <-chan vault.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan vault.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewEventLogWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// batch accumulates rows between flushes. Balance upserts collapse per
// principal; only the latest row per principal survives within a batch.
type batch struct {
	events   []EventRow
	balances map[string]BalanceRow
	totals   TotalsRow
}

func newBatch(size int) *batch {
	return &batch{
		events:   make([]EventRow, 0, size),
		balances: make(map[string]BalanceRow, size),
	}
}

func (b *batch) add(out vault.Output) {
	ev, balances, totals := RowsFromOutput(out)
	b.events = append(b.events, ev)
	for _, row := range balances {
		b.balances[row.Principal] = row
	}
	b.totals = totals
}

func (b *batch) reset() {
	b.events = b.events[:0]
	for k := range b.balances {
		delete(b.balances, k)
	}
	b.totals = TotalsRow{}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout fires. Blocks until ctx is cancelled or the channel closes.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	b := newBatch(pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(b.events) > 0 {
				if err := pw.flush(context.Background(), b); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				if len(b.events) > 0 {
					if err := pw.flush(context.Background(), b); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			b.add(out)
			if len(b.events) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, b); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				b.reset()
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(b.events) > 0 {
				if err := pw.flushWithRetry(ctx, b); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				b.reset()
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch; on context cancellation it makes one final attempt with a
// background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, b *batch) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, events=%d)",
				attempt, backoff, len(b.events))
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), b); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, b)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

// flush writes events, balance upserts, and the totals row in one tx.
func (pw *PersistenceWorker) flush(ctx context.Context, b *batch) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, b.events); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}

	balances := make([]BalanceRow, 0, len(b.balances))
	for _, row := range b.balances {
		balances = append(balances, row)
	}
	if err := pw.writer.WriteBalanceBatch(ctx, tx, balances); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_balances").Inc()
		}
		return err
	}

	if b.totals.Sequence > 0 {
		if err := pw.writer.WriteTotals(ctx, tx, b.totals); err != nil {
			if pw.metrics != nil {
				pw.metrics.PersistErrors.WithLabelValues("write_totals").Inc()
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(b.events)))
		pw.metrics.PersistEventsWritten.Add(float64(len(b.events)))
		if len(b.events) > 0 {
			pw.metrics.PersistLastSequence.Set(float64(b.events[len(b.events)-1].Sequence))
		}
	}

	return nil
}
