package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/skillpath/backend/internal/storage"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execGuarded runs a compare-and-swap update and returns onMiss when it matched no row
func execGuarded(ctx context.Context, db execer, op string, onMiss error, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.Classify(op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Classify(op, err)
	}
	if affected == 0 {
		return onMiss
	}
	return nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
