package kb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSource 基于 SQLite 的本地知识源
//
// 适用于嵌入式部署和测试环境；事实按相关性降序、写入时间升序返回。
type SQLiteSource struct {
	name  string
	db    *sql.DB
	limit int
}

// SQLiteSourceOption SQLite 知识源配置选项。
type SQLiteSourceOption func(*SQLiteSource)

// WithSQLiteLimit 设置单次查询返回的最大事实数。
func WithSQLiteLimit(limit int) SQLiteSourceOption {
	return func(s *SQLiteSource) {
		s.limit = limit
	}
}

// NewSQLiteSource 创建 SQLite 知识源。
func NewSQLiteSource(name string, dbPath string, opts ...SQLiteSourceOption) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	source := &SQLiteSource{
		name:  name,
		db:    db,
		limit: 100,
	}
	for _, opt := range opts {
		opt(source)
	}

	// 初始化表结构
	if err := source.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return source, nil
}

// initSchema 初始化表结构
func (s *SQLiteSource) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS facts (
		subject TEXT NOT NULL,
		fact TEXT NOT NULL,
		relevance REAL NOT NULL DEFAULT 0.5,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (subject, fact)
	);
	CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject);
	`

	_, err := s.db.Exec(query)
	return err
}

// Name 返回知识源标识
func (s *SQLiteSource) Name() string {
	return s.name
}

// Query 查询指定主体的事实，按相关性降序返回。
//
// 整体相关性取命中事实中的最大值；无命中时返回空结果而非错误。
func (s *SQLiteSource) Query(ctx context.Context, subject string, hint string) (*QueryResult, error) {
	query := `
	SELECT fact, relevance FROM facts
	WHERE subject = ?
	ORDER BY relevance DESC, created_at ASC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, subject, s.limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []string
	maxRelevance := 0.0
	for rows.Next() {
		var fact string
		var relevance float64
		if err := rows.Scan(&fact, &relevance); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
		if relevance > maxRelevance {
			maxRelevance = relevance
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{Facts: facts, Relevance: maxRelevance}, nil
}

// Put 写入一条事实。重复写入更新相关性。
func (s *SQLiteSource) Put(ctx context.Context, subject string, fact string, relevance float64, createdAt int64) error {
	query := `
	INSERT INTO facts (subject, fact, relevance, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(subject, fact) DO UPDATE SET
		relevance = excluded.relevance
	`

	_, err := s.db.ExecContext(ctx, query, subject, fact, relevance, createdAt)
	return err
}

// Count 统计指定主体的事实数量。
func (s *SQLiteSource) Count(ctx context.Context, subject string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts WHERE subject = ?`, subject).Scan(&count)
	return count, err
}

// Close 关闭连接
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// compile-time interface check
var _ Source = (*SQLiteSource)(nil)
