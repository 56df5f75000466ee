package todo

import (
	"context"
	"fmt"
	"strings"

	"llmflow/internal/config"
)

// Backend 负责整份待办集合的读写。Load 在尚无数据时返回空集合与 nil。
type Backend interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
	Close() error
}

// NewBackend 根据配置创建存储后端。
func NewBackend(ctx context.Context, cfg config.TodoStoreConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return NewFileBackend(cfg.File)
	case "redis":
		return NewRedisBackend(ctx, cfg.Redis)
	case "mysql":
		return NewMySQLBackend(ctx, mysqlConfigFrom(cfg))
	default:
		return nil, fmt.Errorf("不支持的待办存储驱动: %s", cfg.Driver)
	}
}

func mysqlConfigFrom(cfg config.TodoStoreConfig) MySQLConfig {
	return MySQLConfig{
		DSN:             cfg.DSN,
		Document:        cfg.Document,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	}
}
