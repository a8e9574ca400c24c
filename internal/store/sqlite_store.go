package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/shopspring/decimal"
)

// SQLiteStore 基于 SQLite 的保证金存储, 多个进程可以共享同一个文件
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开 (或创建) 数据库并启用 WAL
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// 单连接, 保证 CAS 语句串行执行
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			version INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (Balance, error) {
	var (
		value     string
		version   int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, version, updated_at FROM kv WHERE key = ?", key,
	).Scan(&value, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Balance{}, ErrNotFound
	}
	if err != nil {
		return Balance{}, fmt.Errorf("failed to load %s: %w", key, err)
	}

	amount, err := ParseAmount(value)
	if err != nil {
		return Balance{}, err
	}

	return Balance{
		Amount:    amount,
		Version:   version,
		UpdatedAt: time.UnixMicro(updatedAt),
	}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, amount decimal.Decimal, expectedVersion int64) (Balance, error) {
	now := time.Now()

	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			"INSERT INTO kv (key, value, version, updated_at) VALUES (?, ?, 1, ?) ON CONFLICT(key) DO NOTHING",
			key, amount.String(), now.UnixMicro(),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE kv SET value = ?, version = version + 1, updated_at = ? WHERE key = ? AND version = ?",
			amount.String(), now.UnixMicro(), key, expectedVersion,
		)
	}
	if err != nil {
		return Balance{}, fmt.Errorf("failed to save %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Balance{}, fmt.Errorf("failed to save %s: %w", key, err)
	}
	if n == 0 {
		return Balance{}, ErrVersionConflict
	}

	return Balance{
		Amount:    amount,
		Version:   expectedVersion + 1,
		UpdatedAt: time.UnixMicro(now.UnixMicro()),
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
