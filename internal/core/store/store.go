package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/codexplain/codexplain/internal/config"
)

const (
	driverLibsql = "libsql"
	memoryDSN    = ":memory:"

	busyTimeoutMillis = 5000
)

// Store wraps the client-local database. It backs the advisory limiter's
// key/value storage and is never opened by the server.
type Store struct {
	DB     *sql.DB
	driver string
}

// target is a resolved connection string and where it points.
type target struct {
	dsn  string
	kind targetKind
}

type targetKind int

const (
	targetFile targetKind = iota
	targetMemory
	targetRemote
)

// Open connects to the store described by cfg. Only the libsql driver is
// supported; an empty driver selects it.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	t, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}

	switch t.kind {
	case targetMemory:
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	case targetFile:
		if err := tuneFileDB(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{DB: db, driver: driver}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// tuneFileDB serializes writers through one connection and enables WAL so
// concurrent CLI invocations wait instead of failing with SQLITE_BUSY.
func tuneFileDB(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)

	// libsql rejects Exec for statements that return rows; these PRAGMAs do.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis),
	}
	for _, pragma := range pragmas {
		var ignored any
		if err := db.QueryRowContext(ctx, pragma).Scan(&ignored); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// resolveTarget turns the store config into a DSN. A URL wins over a path;
// bare paths become file: DSNs and get their parent directory created.
func resolveTarget(cfg config.StoreConfig) (target, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		return target{dsn: dsn, kind: targetRemote}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return target{}, errors.New("store path or url is required")
	case path == memoryDSN:
		return target{dsn: path, kind: targetMemory}, nil
	case strings.HasPrefix(path, "libsql:"):
		return target{dsn: path, kind: targetRemote}, nil
	case strings.HasPrefix(path, "file:"):
		local, err := filePathOf(path)
		if err != nil {
			return target{}, err
		}
		return target{dsn: path, kind: targetFile}, ensureParentDir(local)
	default:
		return target{dsn: "file:" + filepath.Clean(path), kind: targetFile}, ensureParentDir(path)
	}
}

// withAuthToken adds authToken to a remote DSN unless one is already set.
func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	query := parsed.Query()
	if query.Get("authToken") != "" {
		return dsn, nil
	}
	query.Set("authToken", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func filePathOf(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}
	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}
	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
