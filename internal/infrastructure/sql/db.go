package sql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"healthcheck_srv/internal/domain/report"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
)

// Drivers accepted by Open. Orion's own database is SQL Server.
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite3"
)

const defaultPingTimeout = 10 * time.Second

// DB wraps *sql.DB to satisfy the QueryExecutor interface.
type DB struct {
	*sql.DB
	driver string
	dsn    string
}

// Open connects with the named driver and checks the connection.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLServer, DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	return &DB{DB: db, driver: driver, dsn: dsn}, nil
}

// Execute runs a query and returns its rows with columns in result order.
func (d *DB) Execute(ctx context.Context, query string) (report.Table, error) {
	rows, err := d.QueryContext(ctx, query)
	if err != nil {
		return report.Table{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return report.Table{}, err
	}

	results := make([][]any, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range ptrs {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return report.Table{}, err
		}
		for i, v := range vals {
			// drivers hand back text columns as []byte
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		results = append(results, vals)
	}
	if err := rows.Err(); err != nil {
		return report.Table{}, err
	}
	return report.Table{Columns: cols, Rows: results}, nil
}

// String describes the connection without credentials.
func (d *DB) String() string {
	return fmt.Sprintf("%s(%s)", d.driver, redact(d.dsn))
}

// passwordPattern matches password values in keyword DSNs (ADO "password=x;",
// lib/pq "password='x y'") and in URL query strings.
var passwordPattern = regexp.MustCompile(`(?i)\b(password|pwd)(\s*=\s*)('[^']*'|[^;&\s]*)`)

func redact(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			dsn = u.String()
		}
	}
	return passwordPattern.ReplaceAllString(dsn, "${1}${2}xxxxx")
}
