package usecase

import (
	"context"
	"sync"
	"time"

	"healthcheck_srv/internal/catalog"
	"healthcheck_srv/internal/domain/query"
	"healthcheck_srv/internal/domain/report"
	"healthcheck_srv/internal/usecase/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency  = 4
	DefaultQueryTimeout = 60 * time.Second

	skippedReason = "not yet implemented"
)

// Options tunes a Runner.
type Options struct {
	Concurrency  int
	QueryTimeout time.Duration

	// OnTable is called once per catalog entry as soon as its outcome is
	// known. Calls are serialized but arrive in completion order.
	OnTable func(report.Table)
}

// Runner executes the catalog through a QueryExecutor and collects the
// outcome of every entry.
type Runner struct {
	executor repository.QueryExecutor
	logger   *logrus.Logger
	opts     Options
	notifyMu sync.Mutex
}

// NewRunner returns a Runner; zero options fall back to the defaults.
func NewRunner(executor repository.QueryExecutor, logger *logrus.Logger, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Runner{executor: executor, logger: logger, opts: opts}
}

// Run executes every entry of cat. Entries without a query are flagged as
// skipped, and a failing query only fails its own table. The returned result
// mirrors catalog order regardless of execution order. Run returns an error
// only when ctx is done.
func (r *Runner) Run(ctx context.Context, cat *catalog.Catalog) (report.Result, error) {
	result := report.Result{StartedAt: time.Now().UTC()}

	sections := make([]report.Section, 0, cat.Len())
	position := make(map[string]int, cat.Len())
	for c := range cat.All() {
		position[c.Name] = len(sections)
		sections = append(sections, report.Section{
			Category: c.Name,
			Tables:   make([]report.Table, len(c.Reports)),
		})
	}

	r.logger.WithFields(logrus.Fields{
		"categories":  cat.Len(),
		"entries":     cat.ReportCount(),
		"concurrency": r.opts.Concurrency,
	}).Info("Starting health check run")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for q := range cat.Queries() {
		if ctx.Err() != nil {
			break
		}
		slot := &sections[position[q.Category]].Tables[q.Index]

		if !q.Runnable() {
			*slot = report.Table{
				Category: q.Category,
				Label:    q.DisplayLabel(),
				Status:   report.StatusSkipped,
				Error:    skippedReason,
			}
			r.notify(*slot)
			continue
		}

		g.Go(func() error {
			*slot = r.execute(gctx, q)
			r.notify(*slot)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		r.logger.WithError(err).Warn("Health check run interrupted")
		return report.Result{}, err
	}

	result.Sections = sections
	result.FinishedAt = time.Now().UTC()

	r.logger.WithFields(logrus.Fields{
		"executed": result.Executed(),
		"skipped":  result.Skipped(),
		"failed":   result.Failed(),
		"duration": result.FinishedAt.Sub(result.StartedAt),
	}).Info("Health check run finished")

	return result, nil
}

func (r *Runner) execute(ctx context.Context, q query.Query) report.Table {
	table := report.Table{
		Category: q.Category,
		Label:    q.DisplayLabel(),
		SQL:      q.SQL,
	}
	logger := r.logger.WithFields(logrus.Fields{
		"category": q.Category,
		"label":    table.Label,
	})

	if err := query.Validate(q.SQL); err != nil {
		logger.WithError(err).Warn("Query rejected")
		table.Status = report.StatusFailed
		table.Error = err.Error()
		return table
	}

	qctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	start := time.Now()
	out, err := r.executor.Execute(qctx, q.SQL)
	table.Duration = time.Since(start)
	if err != nil {
		logger.WithError(err).Warn("Query failed")
		table.Status = report.StatusFailed
		table.Error = err.Error()
		return table
	}

	table.Columns = out.Columns
	table.Rows = out.Rows
	table.Status = report.StatusOK
	logger.WithFields(logrus.Fields{
		"rows":     len(out.Rows),
		"duration": table.Duration,
	}).Debug("Query executed")
	return table
}

func (r *Runner) notify(t report.Table) {
	if r.opts.OnTable == nil {
		return
	}
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.opts.OnTable(t)
}
