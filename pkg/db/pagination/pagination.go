package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=20" binding:"omitempty,gte=1,lte=250"`
}

// Normalize clamps the limit into [1, MaxLimit].
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Cursor is a keyset position: rows strictly older than (CreatedAt, ID).
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}

	return &cursor, nil
}

// BuildCursorPageInfo expects data fetched with limit+1 rows and trims the
// lookahead row. It returns the page to render and its PageInfo.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) Cursor) ([]*T, *PageInfo, error) {
	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}, nil
	}

	hasMore := false
	if len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	info := &PageInfo{HasMore: hasMore}
	if hasMore {
		next, err := EncodeCursor(extractCursor(data[len(data)-1]))
		if err != nil {
			return nil, nil, err
		}
		info.NextCursor = next
	}

	return data, info, nil
}
