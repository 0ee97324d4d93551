package repository

import (
	"context"

	"healthcheck_srv/internal/domain/report"
)

// QueryExecutor runs one query and returns its columns and rows. Only
// Columns and Rows of the returned table are expected to be set.
type QueryExecutor interface {
	Execute(ctx context.Context, query string) (report.Table, error)
}
