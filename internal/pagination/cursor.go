// Package pagination implements opaque keyset cursors for list endpoints.
//
// A cursor identifies the last item of a page by its (created_at, id)
// pair, encoded so clients cannot depend on the wire shape. Stores use
// the decoded pair in a keyset WHERE clause, which stays stable while
// rows are inserted or deleted between page fetches.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned by Decode for any malformed input.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks a position in a list ordered by (created_at, id) descending.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "|" + c.ID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode. An empty token decodes to a
// nil cursor, meaning "start from the newest item".
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// Page trims an overfetched slice down to limit items. Callers fetch
// limit+1 rows so the presence of a following page can be detected
// without a count query. Returns the trimmed slice, the cursor token
// for the next page, and whether more items remain.
func Page[T any](items []T, limit int, key func(T) Cursor) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	return items, key(items[len(items)-1]).Encode(), true
}
