package todo

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	xerrors "llmflow/internal/errors"
	"llmflow/pkg/logger"
)

// ErrTodoNotFound 表示指定 ID 的待办不存在。
var ErrTodoNotFound = xerrors.New(xerrors.CodeNotFound, "待办事项不存在")

// Result 描述一次变更的结果以及写回后端是否成功。
type Result struct {
	Record    Record
	Persisted bool
	SaveErr   error
}

// Store 维护待办集合，所有变更串行执行并整体写回后端。
type Store struct {
	mu      sync.Mutex
	backend Backend
	records []Record
	now     func() time.Time
	log     *slog.Logger
	audit   *slog.Logger
}

// Option 自定义 Store 行为。
type Option func(*Store)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger 指定日志记录器。
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAuditLogger 指定记录变更的审计日志，默认使用 logger.Audit()。
func WithAuditLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.audit = log
		}
	}
}

// Open 从后端加载待办集合。后端中没有数据时得到空集合；
// 读取或解析失败时记录告警并同样以空集合启动。
func Open(ctx context.Context, backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		log:     logger.Named("todo"),
		audit:   logger.Audit(),
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := backend.Load(ctx)
	if err != nil {
		s.log.Warn("加载待办数据失败，使用空列表", slog.Any("error", err))
		records = nil
	}
	s.records = records
	return s
}

// Add 新建一条待办，ID 为当前最大 ID 加一。
func (s *Store) Add(ctx context.Context, description string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := Record{
		ID:        s.nextID(),
		Task:      description,
		CreatedAt: NewTimestamp(s.now()),
	}
	s.records = append(s.records, record)
	return s.persist(ctx, "add", record)
}

// Complete 将待办标记为已完成。ID 不存在时返回 ErrTodoNotFound，集合保持不变。
func (s *Store) Complete(ctx context.Context, id int) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Result{}, ErrTodoNotFound
	}
	completedAt := NewTimestamp(s.now())
	s.records[idx].Completed = true
	s.records[idx].CompletedAt = &completedAt
	return s.persist(ctx, "complete", s.records[idx]), nil
}

// Delete 删除待办。ID 不存在时返回 false，不做任何写入。
func (s *Store) Delete(ctx context.Context, id int) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Result{}, false
	}
	removed := s.records[idx]
	s.records = slices.Delete(s.records, idx, idx+1)
	return s.persist(ctx, "delete", removed), true
}

// All 按插入顺序返回全部待办。
func (s *Store) All() []Record {
	return s.filter(func(Record) bool { return true })
}

// Active 返回未完成的待办。
func (s *Store) Active() []Record {
	return s.filter(func(r Record) bool { return !r.Completed })
}

// CompletedOnly 返回已完成的待办。
func (s *Store) CompletedOnly() []Record {
	return s.filter(func(r Record) bool { return r.Completed })
}

// Close 释放后端资源。
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) filter(keep func(Record) bool) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) nextID() int {
	maxID := 0
	for _, r := range s.records {
		maxID = max(maxID, r.ID)
	}
	return maxID + 1
}

func (s *Store) indexOf(id int) int {
	return slices.IndexFunc(s.records, func(r Record) bool { return r.ID == id })
}

// persist 把完整集合写回后端，并在审计日志中记录本次变更。失败只记录日志，不重试。
func (s *Store) persist(ctx context.Context, action string, record Record) Result {
	res := Result{Record: record, Persisted: true}
	if err := s.backend.Save(ctx, slices.Clone(s.records)); err != nil {
		res.Persisted = false
		res.SaveErr = xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存待办数据失败")
		s.log.Error("保存待办数据失败", slog.Int("id", record.ID), slog.Any("error", err))
	}
	s.audit.InfoContext(ctx, "待办已变更",
		slog.String("action", action),
		slog.Int("id", record.ID),
		slog.String("task", record.Task),
		slog.Bool("persisted", res.Persisted),
	)
	return res
}
