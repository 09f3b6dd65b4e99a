package pagination

import (
	"encoding/base64"
	"encoding/json"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=20"` // Min 1, Max 250
}

type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func (p Pagination) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
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
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// Scope orders by id and reads one row past the limit so Page can tell
// whether more rows exist.
func Scope(p Pagination) (func(*gorm.DB) *gorm.DB, error) {
	var after string
	if p.Cursor != "" {
		c, err := DecodeCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
		after = c.ID
	}

	limit := p.limit()
	return func(db *gorm.DB) *gorm.DB {
		if after != "" {
			db = db.Where("id > ?", after)
		}
		return db.Order("id ASC").Limit(limit + 1)
	}, nil
}

// Page trims rows fetched through Scope to the limit and builds the page info.
func Page[T any](rows []*T, p Pagination, extractID func(*T) string) ([]*T, *PageInfo, error) {
	limit := p.limit()
	if len(rows) <= limit {
		return rows, &PageInfo{HasMore: false}, nil
	}

	rows = rows[:limit]
	next, err := EncodeCursor(Cursor{ID: extractID(rows[len(rows)-1])})
	if err != nil {
		return nil, nil, err
	}

	return rows, &PageInfo{HasMore: true, NextCursor: next}, nil
}
