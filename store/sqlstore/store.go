// Package sqlstore 基于 database/sql 实现 store.Store，支持 SQLite（modernc）与 Postgres（pgx）。
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/sample"
	"github.com/ByLCY/sampletag/store"
)

var _ store.Store = (*Store)(nil)

// Store 是 SQL 持久化实现，可并发使用。
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	now     func() time.Time
}

// Open 打开数据库、执行建表并返回 Store。SQLite 的 dsn 为文件路径（会创建上级目录）。
func Open(ctx context.Context, dialect Dialect, dsn string, logger *zap.Logger) (*Store, error) {
	if dialect.Driver == SQLite.Driver {
		if dsn == "" {
			dsn = "sampletag.db"
		}
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Driver == SQLite.Driver {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	s := New(db, dialect, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New 包装一个已打开的连接，不执行建表。
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, logger: logger, now: time.Now}
}

// Migrate 幂等地创建表与索引。
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// DB 暴露底层连接。
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

const sampleColumns = `qr_code_key, audit_id, audit_number, team, payload, created_at`

func (s *Store) InsertSample(ctx context.Context, rec store.SampleRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("insert sample: 缺少 qr_code_key")
	}
	payload, err := rec.Sample.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode sample %s: %w", rec.Key, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO samples (`+sampleColumns+`) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (qr_code_key) DO NOTHING`),
		rec.Key, rec.AuditID, rec.AuditNumber, rec.Team, string(payload), rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert sample %s: %w", rec.Key, err)
	}
	if err := expectInserted(res); err != nil {
		return fmt.Errorf("insert sample %s: %w", rec.Key, err)
	}
	s.logger.Debug("sample inserted", zap.String("key", rec.Key), zap.String("team", rec.Team))
	return nil
}

func (s *Store) GetSample(ctx context.Context, key string) (store.SampleRecord, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+sampleColumns+` FROM samples WHERE qr_code_key = ?`), key)
	rec, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.SampleRecord{}, fmt.Errorf("sample %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return store.SampleRecord{}, fmt.Errorf("select sample %s: %w", key, err)
	}
	return rec, nil
}

func (s *Store) ListSamples(ctx context.Context, team string) ([]store.SampleRecord, error) {
	query := `SELECT ` + sampleColumns + ` FROM samples`
	var args []any
	if team != "" {
		query += ` WHERE team = ?`
		args = append(args, team)
	}
	query += ` ORDER BY audit_number, qr_code_key`
	return s.querySamples(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) InsertLayout(ctx context.Context, rec store.LayoutRecord) (store.LayoutRecord, error) {
	if err := rec.Descriptor.Validate(); err != nil {
		return store.LayoutRecord{}, err
	}
	payload, err := rec.Descriptor.MarshalJSON()
	if err != nil {
		return store.LayoutRecord{}, fmt.Errorf("encode layout: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO layouts (team, payload, created_at) VALUES (?, ?, ?) RETURNING id`),
		rec.Team, string(payload), rec.CreatedAt.UnixMilli()).Scan(&rec.ID)
	if err != nil {
		return store.LayoutRecord{}, fmt.Errorf("insert layout: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(rec.CreatedAt.UnixMilli()).UTC()
	s.logger.Debug("layout inserted", zap.Int64("id", rec.ID), zap.String("team", rec.Team))
	return rec, nil
}

func (s *Store) LatestLayout(ctx context.Context, team string) (store.LayoutRecord, error) {
	var (
		rec     store.LayoutRecord
		payload string
		created int64
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, team, payload, created_at FROM layouts WHERE team = ? ORDER BY created_at DESC, id DESC LIMIT 1`), team).
		Scan(&rec.ID, &rec.Team, &payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return store.LayoutRecord{}, fmt.Errorf("layout for team %s: %w", team, store.ErrNotFound)
	}
	if err != nil {
		return store.LayoutRecord{}, fmt.Errorf("select layout: %w", err)
	}
	d, err := layout.Decode([]byte(payload))
	if err != nil {
		return store.LayoutRecord{}, fmt.Errorf("decode layout %d: %w", rec.ID, err)
	}
	rec.Descriptor = d
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}

func (s *Store) InsertDeleted(ctx context.Context, rec store.DeletedRecord) error {
	if rec.DeletedAt.IsZero() {
		rec.DeletedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO deleted (qr_code_key, team, reason, deleted_at) VALUES (?, ?, ?, ?) ON CONFLICT (qr_code_key) DO NOTHING`),
		rec.Key, rec.Team, rec.Reason, rec.DeletedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert deleted %s: %w", rec.Key, err)
	}
	if err := expectInserted(res); err != nil {
		return fmt.Errorf("insert deleted %s: %w", rec.Key, err)
	}
	return nil
}

func (s *Store) ListDeleted(ctx context.Context, team string) ([]store.DeletedRecord, error) {
	query := `SELECT qr_code_key, team, reason, deleted_at FROM deleted`
	var args []any
	if team != "" {
		query += ` WHERE team = ?`
		args = append(args, team)
	}
	query += ` ORDER BY deleted_at, qr_code_key`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select deleted: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []store.DeletedRecord
	for rows.Next() {
		var (
			rec store.DeletedRecord
			at  int64
		)
		if err := rows.Scan(&rec.Key, &rec.Team, &rec.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan deleted: %w", err)
		}
		rec.DeletedAt = time.UnixMilli(at).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ListDeletedSamples(ctx context.Context, team string) ([]store.SampleRecord, error) {
	return s.querySamples(ctx, s.dialect.rebind(
		`SELECT s.qr_code_key, s.audit_id, s.audit_number, s.team, s.payload, s.created_at
		FROM samples s JOIN deleted d ON d.qr_code_key = s.qr_code_key
		WHERE d.team = ? ORDER BY s.audit_number, s.qr_code_key`), team)
}

func (s *Store) querySamples(ctx context.Context, query string, args ...any) ([]store.SampleRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []store.SampleRecord
	for rows.Next() {
		rec, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (store.SampleRecord, error) {
	var (
		rec     store.SampleRecord
		payload string
		created int64
	)
	if err := row.Scan(&rec.Key, &rec.AuditID, &rec.AuditNumber, &rec.Team, &payload, &created); err != nil {
		return store.SampleRecord{}, err
	}
	var smp sample.Sample
	if err := smp.UnmarshalJSON([]byte(payload)); err != nil {
		return store.SampleRecord{}, fmt.Errorf("decode sample %s: %w", rec.Key, err)
	}
	rec.Sample = smp
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}

func expectInserted(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}
