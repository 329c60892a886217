package store

import (
	"context"
	"fmt"
)

const (
	KindSQLite = "sqlite"
	KindRedis  = "redis"
)

// Record is the locally cached metadata of a tweet the API reports as incomplete.
type Record struct {
	RestID         string  `json:"rest_id"`
	AuthorHandle   string  `json:"author_handle"`
	IsTruncated    bool    `json:"is_truncated"`
	IsQuoteMissing bool    `json:"is_quote_missing"`
	QuotedStatusID *string `json:"quoted_status_id"`
}

// Store persists the incomplete set. Replace swaps the whole set; nothing is merged.
type Store interface {
	Load(ctx context.Context) (map[string]Record, error)
	Replace(ctx context.Context, records map[string]Record) error
	Delete(ctx context.Context, restID string) error
	Close() error
}

type Options struct {
	Kind      string
	DBPath    string
	RedisAddr string
	RedisDB   int
}

// Open returns the configured store and whether it was created by this call (first install).
func Open(ctx context.Context, opts Options) (Store, bool, error) {
	switch opts.Kind {
	case "", KindSQLite:
		return OpenSQLite(opts.DBPath)
	case KindRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisDB)
	default:
		return nil, false, fmt.Errorf("unknown store kind: %s", opts.Kind)
	}
}
