package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/inbox"
	"llmflow/internal/observability/metrics"
	"llmflow/internal/todo"
	"llmflow/pkg/logger"
)

const maxBodyBytes = 64 << 10

// Dispatcher 处理一条用户消息并返回回复。
type Dispatcher interface {
	Process(ctx context.Context, message string) (string, error)
}

// TodoLister 提供待办事项的只读视图。
type TodoLister interface {
	All() []todo.Record
	Active() []todo.Record
	CompletedOnly() []todo.Record
}

// Option 调整 Server 的可选依赖。
type Option func(*Server)

// WithInbox 启用异步投递，?async=true 的消息写入队列后立即返回。
func WithInbox(producer inbox.Producer) Option {
	return func(s *Server) {
		s.inbox = producer
	}
}

// WithLogger 指定请求日志使用的 logger。
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// Server 负责暴露 REST 接口，供外部提交消息和查询待办事项。
type Server struct {
	addr       string
	dispatcher Dispatcher
	todos      TodoLister
	inbox      inbox.Producer
	log        *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, dispatcher Dispatcher, todos TodoLister, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: dispatcher,
		todos:      todos,
		log:        logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回注册好全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/messages", metrics.Instrument("messages", http.HandlerFunc(s.handleMessages)))
	mux.Handle("/api/v1/todos", metrics.Instrument("todos", http.HandlerFunc(s.handleTodos)))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API 服务启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Response string `json:"response"`
}

type acceptedResponse struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleMessages 处理 POST /api/v1/messages。
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "message 不能为空"))
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.enqueue(w, r, message)
		return
	}

	if s.dispatcher == nil {
		s.writeError(w, xerrors.New(xerrors.CodeUnavailable, "消息分发器未初始化"))
		return
	}
	reply, err := s.dispatcher.Process(r.Context(), message)
	metrics.ObserveMessage("api", err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Response: reply})
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, message string) {
	if s.inbox == nil {
		s.writeError(w, xerrors.New(xerrors.CodeUnavailable, "未配置消息队列"))
		return
	}
	env, err := inbox.Submit(r.Context(), s.inbox, message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: env.ID, ReceivedAt: env.ReceivedAt})
}

// handleTodos 处理 GET /api/v1/todos。
func (s *Server) handleTodos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.todos == nil {
		s.writeError(w, xerrors.New(xerrors.CodeUnavailable, "待办存储未初始化"))
		return
	}

	var records []todo.Record
	switch filter := r.URL.Query().Get("filter"); filter {
	case "", "active":
		records = s.todos.Active()
	case "all":
		records = s.todos.All()
	case "completed":
		records = s.todos.CompletedOnly()
	default:
		s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "未知的 filter: "+filter))
		return
	}
	if records == nil {
		records = []todo.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := statusFor(code)
	s.log.Log(context.Background(), xerrors.SeverityOf(err).Level(), "请求处理失败",
		slog.String("code", string(code)),
		slog.Int("status", status),
		slog.Any("error", err))
	writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}

// statusFor 将错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeSchemaValidation, xerrors.CodeUpstream:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
