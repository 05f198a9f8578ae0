package preflight

import (
	"context"
	"fmt"

	"github.com/markstash/markstash/internal/store"
)

// CheckDatabase verifies the SQLite database opens and is queryable.
func (c *Checker) CheckDatabase(ctx context.Context) Result {
	result := Result{Name: "database", Required: true}

	ms, err := store.Open(c.cfg.DatabasePath())
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot open %s: %v", c.cfg.DatabasePath(), err)
		return result
	}
	defer func() { _ = ms.Close() }()

	var bookmarks, chunks int
	if err := ms.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM bookmarks`).Scan(&bookmarks); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("query failed: %v", err)
		return result
	}
	if err := ms.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("query failed: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d bookmarks, %d chunks", bookmarks, chunks)
	return result
}
