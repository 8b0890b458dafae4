// Package syncer drains the local change log to the hosted backend. Each
// transaction is grouped by table and operation, sent in bounded batches and
// retried as a whole with linear backoff; nothing is dropped until every
// batch has been acknowledged.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/remote"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/crud"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/poleshift/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultMaxBatchSize = 10000
	DefaultMaxAttempts  = 10
	DefaultBaseDelay    = time.Second
)

type Options struct {
	MaxBatchSize int
	MaxAttempts  int
	// BaseDelay is multiplied by the attempt number between attempts.
	BaseDelay time.Duration
	// BatchedPatch sends all PATCH rows of a batch in one call when the
	// connector supports it.
	BatchedPatch bool
	// DiscardRejected drops transactions the remote refused permanently.
	DiscardRejected bool
}

func (o Options) withDefaults() Options {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay < 0 {
		o.BaseDelay = 0
	}
	return o
}

// Monitor is the part of the network monitor the uploader reports to.
type Monitor interface {
	IsOnline() bool
	SetSyncing(bool)
}

type Uploader struct {
	log  logging.Logger
	crud crud.Repository
	conn remote.Connector
	meta metadata.Repository
	mon  Monitor
	opts Options
	now  func() time.Time

	transactions metric.Int64Counter
	batches      metric.Int64Counter
	trigger      chan struct{}
	// running admits one Upload or Drain at a time so the head transaction
	// is never sent twice.
	running chan struct{}
}

// NewUploader wires the uploader. meta and mon may be nil.
func NewUploader(log logging.Logger, crudRepo crud.Repository, conn remote.Connector, meta metadata.Repository, mon Monitor, opts Options) *Uploader {
	meter := otel.Meter("github.com/dmitrijs2005/poleshift/internal/client/syncer")
	transactions, _ := meter.Int64Counter("poleshift.sync.transactions", metric.WithDescription("sync transactions by outcome"))
	batches, _ := meter.Int64Counter("poleshift.sync.batches", metric.WithDescription("remote batch calls"))

	return &Uploader{
		log:          log.With("module", "syncer"),
		crud:         crudRepo,
		conn:         conn,
		meta:         meta,
		mon:          mon,
		opts:         opts.withDefaults(),
		now:          func() time.Time { return time.Now().UTC() },
		transactions: transactions,
		batches:      batches,
		trigger:      make(chan struct{}, 1),
		running:      make(chan struct{}, 1),
	}
}

func (u *Uploader) acquire(ctx context.Context) error {
	select {
	case u.running <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uploader) release() { <-u.running }

// linearBackoff waits base, 2×base, 3×base... between attempts.
func linearBackoff(base time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		return time.Duration(n+1) * base
	}
}

// Upload handles the next pending transaction. It waits for a running
// Drain to finish first.
func (u *Uploader) Upload(ctx context.Context) (Result, error) {
	if err := u.acquire(ctx); err != nil {
		return Result{Outcome: Pending, Err: err}, nil
	}
	defer u.release()
	return u.upload(ctx)
}

func (u *Uploader) upload(ctx context.Context) (Result, error) {
	tx, err := u.crud.NextTransaction(ctx)
	if err != nil {
		return Result{}, err
	}
	if tx == nil {
		return Result{Outcome: Idle}, nil
	}

	res := Result{TxID: tx.TxID, Entries: len(tx.Entries)}
	var rejected error

	err = retry.Do(
		func() error {
			res.Attempts++
			if res.Attempts > 1 {
				// Entries stay in the log between attempts; read them again.
				fresh, err := u.crud.NextTransaction(ctx)
				if err != nil {
					return err
				}
				if fresh == nil {
					tx = nil
					return nil
				}
				tx = fresh
				res.TxID, res.Entries = tx.TxID, len(tx.Entries)
			}

			err := u.apply(ctx, tx, &res)
			if err != nil && remote.IsFatal(err) {
				rejected = err
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(uint(u.opts.MaxAttempts)),
		retry.DelayType(linearBackoff(u.opts.BaseDelay)),
		retry.OnRetry(func(n uint, err error) {
			args := []any{"tx_id", res.TxID, "attempt", n + 1, "error", err}
			if res.LastOp != nil {
				args = append(args, "last_op", res.LastOp.String())
			}
			u.log.Warn(ctx, "sync attempt failed", args...)
		}),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)

	switch {
	case rejected != nil:
		res.Outcome, res.Err = Rejected, rejected
		u.log.Error(ctx, "remote rejected transaction", "tx_id", res.TxID, "last_op", fmt.Sprint(res.LastOp), "error", rejected)
		if u.opts.DiscardRejected {
			if err := u.crud.Complete(ctx, tx); err != nil {
				return res, err
			}
			res.Discarded = true
			u.log.Warn(ctx, "rejected transaction discarded", "tx_id", res.TxID, "entries", res.Entries)
		}
	case err != nil && ctx.Err() != nil:
		res.Outcome, res.Err = Pending, err
	case err != nil:
		res.Outcome, res.Err = ExhaustedRetries, err
		u.log.Error(ctx, "sync retries exhausted", "tx_id", res.TxID, "attempts", res.Attempts, "last_op", fmt.Sprint(res.LastOp), "error", err)
	case tx == nil:
		res.Outcome = Completed
	default:
		if err := u.crud.Complete(ctx, tx); err != nil {
			return res, err
		}
		res.Outcome = Completed
		u.log.Debug(ctx, "transaction uploaded", "tx_id", res.TxID, "entries", res.Entries, "attempts", res.Attempts)
	}

	u.count(ctx, u.transactions, attribute.String("outcome", res.Outcome.String()))
	return res, nil
}

// apply sends every batch of tx, stopping at the first error.
func (u *Uploader) apply(ctx context.Context, tx *models.CrudTransaction, res *Result) error {
	for _, g := range groupEntries(tx.Entries) {
		for _, batch := range chunk(g.entries, u.opts.MaxBatchSize) {
			res.LastOp = &Operation{Table: g.table, Op: g.op, Size: len(batch)}
			if err := u.send(ctx, g.groupKey, batch); err != nil {
				return fmt.Errorf("%s: %w", res.LastOp, err)
			}
		}
	}
	return nil
}

func (u *Uploader) send(ctx context.Context, k groupKey, batch []models.CrudEntry) error {
	u.count(ctx, u.batches, attribute.String("op", string(k.op)), attribute.String("table", k.table))

	switch k.op {
	case models.OpPut:
		rows := make([]models.Row, len(batch))
		for i, e := range batch {
			rows[i] = rowOf(e)
		}
		return u.conn.Upsert(ctx, k.table, rows)

	case models.OpPatch:
		if pb, ok := u.conn.(remote.PatchBatcher); ok && u.opts.BatchedPatch {
			patches := make([]remote.Patch, len(batch))
			for i, e := range batch {
				patches[i] = remote.Patch{ID: e.ID, Data: e.OpData}
			}
			return pb.UpdateBatch(ctx, k.table, patches)
		}
		for _, e := range batch {
			if err := u.conn.Update(ctx, k.table, e.ID, e.OpData); err != nil {
				return err
			}
		}
		return nil

	case models.OpDelete:
		ids := make([]string, len(batch))
		for i, e := range batch {
			ids[i] = e.ID
		}
		return u.conn.Delete(ctx, k.table, ids)
	}
	return fmt.Errorf("unknown crud op %q", k.op)
}

// Drain uploads transactions until one does not complete. It returns the
// number of completed transactions and the result that stopped the loop.
// Concurrent calls run one after another.
func (u *Uploader) Drain(ctx context.Context) (int, Result, error) {
	if err := u.acquire(ctx); err != nil {
		return 0, Result{Outcome: Pending, Err: err}, nil
	}
	defer u.release()

	if u.mon != nil {
		u.mon.SetSyncing(true)
		defer u.mon.SetSyncing(false)
	}

	done := 0
	for {
		res, err := u.upload(ctx)
		if err != nil {
			return done, res, err
		}
		if res.Outcome != Completed {
			if done > 0 && u.meta != nil {
				if err := u.meta.SetTime(ctx, metadata.KeyLastSyncAt, u.now()); err != nil {
					u.log.Warn(ctx, "failed to record sync time", "error", err)
				}
			}
			return done, res, nil
		}
		done++
	}
}

// Trigger requests a drain from Run without waiting for the next tick.
func (u *Uploader) Trigger() {
	select {
	case u.trigger <- struct{}{}:
	default:
	}
}

// Run drains on every tick and on Trigger while the monitor reports online.
func (u *Uploader) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-u.trigger:
		}

		if u.mon != nil && !u.mon.IsOnline() {
			continue
		}
		n, res, err := u.Drain(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			u.log.Error(ctx, "sync drain failed", "error", err)
		case n > 0:
			u.log.Info(ctx, "sync drained", "transactions", n, "stopped", res.Outcome.String())
		}
	}
}

func (u *Uploader) count(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
