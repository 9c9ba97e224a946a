// Package migrate applies embedded SQL migrations with goose.
//
// Each SQL store embeds its own migrations directory (the SQL differs per
// dialect) and calls Up once at startup. goose keeps its state in package
// globals, so Up serialises callers with a mutex.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

var mu sync.Mutex

// Dialects understood by Up.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// Up runs every pending migration found in dir inside fsys.
func Up(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, dir string, logger *slog.Logger) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if logger != nil {
		goose.SetLogger(&gooseLogger{logger: logger})
	} else {
		goose.SetLogger(goose.NopLogger())
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migrate: setting dialect %q: %w", dialect, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate: applying migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose's printf-style output into slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug("goose", slog.String("msg", fmt.Sprintf(format, v...)))
}

// Fatalf is only reached by goose's CLI helpers. It logs instead of exiting
// so a migration problem surfaces as the error returned by Up.
func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error("goose", slog.String("msg", fmt.Sprintf(format, v...)))
}
