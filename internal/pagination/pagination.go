// Package pagination implements opaque keyset cursors ordered by (createdAt, id)
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skillpath/backend/libs/apperr"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Cursor is the position after which the next page starts
type Cursor struct {
	CreatedAt time.Time
	ID        int
}

// Encode returns the opaque token for the cursor
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UTC().UnixMicro(), 10) + ":" + strconv.Itoa(c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an offset token. An empty token means the first page and yields nil.
func Decode(token string) (*Cursor, error) {
	if token == "" || token == "0" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationFailed, err, "invalid offset token")
	}

	micros, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, apperr.New(apperr.ValidationFailed, "invalid offset token")
	}
	ts, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationFailed, err, "invalid offset token")
	}
	n, err := strconv.Atoi(id)
	if err != nil || n <= 0 {
		return nil, apperr.New(apperr.ValidationFailed, "invalid offset token")
	}

	return &Cursor{CreatedAt: time.UnixMicro(ts).UTC(), ID: n}, nil
}

// Limit validates a requested page size, applying the default when zero
func Limit(requested int) (int, error) {
	switch {
	case requested == 0:
		return DefaultLimit, nil
	case requested < 0 || requested > MaxLimit:
		return 0, apperr.New(apperr.ValidationFailed, "limit must be between 1 and %d", MaxLimit)
	}
	return requested, nil
}

// Request is a validated page request
type Request struct {
	Limit int
	After *Cursor
}

// Parse validates a raw limit and offset token
func Parse(limit int, offset string) (Request, error) {
	l, err := Limit(limit)
	if err != nil {
		return Request{}, err
	}
	after, err := Decode(offset)
	if err != nil {
		return Request{}, err
	}
	return Request{Limit: l, After: after}, nil
}

// Next returns the token of the page following rows, given that the store was asked for limit+1 rows.
// It trims rows to limit and returns nil when there is no further page.
func Next[T any](rows []T, limit int, key func(T) Cursor) ([]T, *string) {
	if len(rows) <= limit {
		return rows, nil
	}
	rows = rows[:limit]
	token := key(rows[len(rows)-1]).Encode()
	return rows, &token
}

// String is used in log fields
func (c *Cursor) String() string {
	if c == nil {
		return "<start>"
	}
	return fmt.Sprintf("%s/%d", c.CreatedAt.Format(time.RFC3339Nano), c.ID)
}
