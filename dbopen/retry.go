package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Exec retry schedule while SQLite reports BUSY.
const (
	execAttempts = 4
	execBackoff  = 50 * time.Millisecond
)

var busyMarkers = []string{"SQLITE_BUSY", "database is locked", "database table is locked"}

// IsBusy reports whether err is an SQLite lock contention error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Exec runs a statement, retrying with doubling backoff while the database
// is busy.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	wait := execBackoff
	var err error
	for attempt := 1; ; attempt++ {
		var res sql.Result
		res, err = db.ExecContext(ctx, query, args...)
		if err == nil || !IsBusy(err) || attempt == execAttempts {
			return res, err
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("dbopen: exec: %w (after %v)", ctx.Err(), err)
		case <-t.C:
		}
		wait *= 2
	}
}
