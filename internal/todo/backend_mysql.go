package todo

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	// 注册 MySQL 驱动。
	_ "github.com/go-sql-driver/mysql"
)

const (
	defaultDocument = "todos"

	createDocumentsSQL = `CREATE TABLE IF NOT EXISTS todo_documents (
    name VARCHAR(64) NOT NULL PRIMARY KEY,
    body LONGTEXT NOT NULL,
    updated_at BIGINT NOT NULL
)`
	selectDocumentSQL = `SELECT body FROM todo_documents WHERE name = ?`
	upsertDocumentSQL = `INSERT INTO todo_documents (name, body, updated_at) VALUES (?, ?, ?)
    ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`
)

// MySQLConfig 描述 MySQL 后端的连接参数。
type MySQLConfig struct {
	DSN             string
	Document        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLBackend 把待办集合作为一行文档保存在 todo_documents 表中。
type MySQLBackend struct {
	db       *sql.DB
	document string
	now      func() time.Time
}

// NewMySQLBackend 连接数据库并确保表结构存在。
func NewMySQLBackend(ctx context.Context, cfg MySQLConfig) (*MySQLBackend, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	backend := newMySQLBackend(db, cfg.Document)
	if err := backend.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

func newMySQLBackend(db *sql.DB, document string) *MySQLBackend {
	if strings.TrimSpace(document) == "" {
		document = defaultDocument
	}
	return &MySQLBackend{db: db, document: document, now: time.Now}
}

func openDatabase(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(4)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}
	return db, nil
}

func (b *MySQLBackend) migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, createDocumentsSQL); err != nil {
		return fmt.Errorf("创建 todo_documents 表失败: %w", err)
	}
	return nil
}

// Load 读取文档行，行不存在时返回空集合。
func (b *MySQLBackend) Load(ctx context.Context) ([]Record, error) {
	var body string
	err := b.db.QueryRowContext(ctx, selectDocumentSQL, b.document).Scan(&body)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询待办文档失败: %w", err)
	}
	return decodeRecords([]byte(body))
}

// Save 以 upsert 方式覆盖文档行。
func (b *MySQLBackend) Save(ctx context.Context, records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, upsertDocumentSQL, b.document, string(data), b.now().Unix()); err != nil {
		return fmt.Errorf("写入待办文档失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接池。
func (b *MySQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

var _ Backend = (*MySQLBackend)(nil)
