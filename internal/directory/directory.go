// Package directory implements the legacy player directory bridge
// (C12): a read-only lookup from a Steam ID to the clan's own
// member display name, backed by the forum's existing MySQL database.
// It is a convenience lookup only — nothing in the ingestion pipeline
// depends on it, and a failed or disabled bridge always degrades to
// using the Steam ID itself.
//
// Grounded on the teacher's second SQL driver import
// (github.com/go-sql-driver/mysql) and tools/cli/cmd/opm/guid.go's
// database/sql + raw query idiom, repurposed read-only.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// Bridge resolves Steam IDs against the legacy clan-member directory.
// A nil *Bridge is valid and every Lookup call degrades to "not found".
type Bridge struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open connects to dsn. An empty dsn disables the bridge: Open returns
// (nil, nil) rather than an error, since the directory is an optional
// convenience feature (spec's config.DirectoryDSN doc comment).
func Open(dsn string, logger *zap.Logger) (*Bridge, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("directory: ping: %w", err)
	}
	return &Bridge{db: db, logger: logger.Sugar()}, nil
}

// Close releases the underlying connection pool. Safe to call on a nil
// *Bridge.
func (b *Bridge) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// ResolveName returns the clan member's display name for steamID, or
// steamID itself if the bridge is disabled, the lookup fails, or no
// member is on file — the directory never turns a lookup failure into
// an ingestion failure.
func (b *Bridge) ResolveName(ctx context.Context, steamID string) string {
	name, ok := b.Lookup(ctx, steamID)
	if !ok {
		return steamID
	}
	return name
}

// Lookup queries the legacy smf_members table by its linked Steam ID
// column. ok is false whenever the bridge is disabled, the query
// fails, or there is no matching member — callers that care about the
// distinction can check ok directly instead of using ResolveName.
func (b *Bridge) Lookup(ctx context.Context, steamID string) (name string, ok bool) {
	if b == nil || b.db == nil {
		return "", false
	}

	var memberName string
	err := b.db.QueryRowContext(ctx,
		`SELECT member_name FROM smf_members WHERE steam_id = ? LIMIT 1`,
		steamID,
	).Scan(&memberName)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		b.logger.Warnw("directory lookup failed, degrading to steam id", "steam_id", steamID, "error", err)
		return "", false
	}
	return memberName, true
}
