package api

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/inbox"
	"llmflow/internal/todo"
)

type stubDispatcher struct {
	reply    string
	err      error
	messages []string
}

func (s *stubDispatcher) Process(_ context.Context, message string) (string, error) {
	s.messages = append(s.messages, message)
	return s.reply, s.err
}

type stubTodos struct {
	records []todo.Record
}

func (s *stubTodos) All() []todo.Record { return s.records }

func (s *stubTodos) Active() []todo.Record {
	var out []todo.Record
	for _, r := range s.records {
		if !r.Completed {
			out = append(out, r)
		}
	}
	return out
}

func (s *stubTodos) CompletedOnly() []todo.Record {
	var out []todo.Record
	for _, r := range s.records {
		if r.Completed {
			out = append(out, r)
		}
	}
	return out
}

type stubProducer struct {
	published []inbox.Envelope
	err       error
}

func (s *stubProducer) Publish(_ context.Context, env inbox.Envelope) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, env)
	return nil
}

func (s *stubProducer) Close() error { return nil }

func sampleTodos() *stubTodos {
	created := todo.NewTimestamp(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))
	done := todo.NewTimestamp(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))
	return &stubTodos{records: []todo.Record{
		{ID: 1, Task: "Buy milk", CreatedAt: created},
		{ID: 2, Task: "Call mom", CreatedAt: created, Completed: true, CompletedAt: &done},
	}}
}

func serve(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleMessagesSuccess(t *testing.T) {
	dispatcher := &stubDispatcher{reply: "Task added: Buy milk (ID: 1)"}
	srv := NewServer(":0", dispatcher, nil)

	rec := serve(t, srv, http.MethodPost, "/api/v1/messages", `{"message":"  Buy milk "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Task added: Buy milk (ID: 1)", got.Response)
	assert.Equal(t, []string{"Buy milk"}, dispatcher.messages)
}

func TestHandleMessagesRejectsBadRequests(t *testing.T) {
	srv := NewServer(":0", &stubDispatcher{}, nil)

	cases := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{name: "wrong method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "invalid json", method: http.MethodPost, body: "{", status: http.StatusBadRequest},
		{name: "empty message", method: http.MethodPost, body: `{"message":"   "}`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, srv, tc.method, "/api/v1/messages", tc.body)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandleMessagesMapsErrorCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{err: xerrors.New(xerrors.CodeSchemaValidation, "bad label"), status: http.StatusBadGateway},
		{err: xerrors.New(xerrors.CodeTimeout, "slow"), status: http.StatusGatewayTimeout},
		{err: xerrors.New(xerrors.CodeNotFound, "missing"), status: http.StatusNotFound},
		{err: stdErrors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv := NewServer(":0", &stubDispatcher{err: tc.err}, nil)
		rec := serve(t, srv, http.MethodPost, "/api/v1/messages", `{"message":"hi"}`)
		assert.Equal(t, tc.status, rec.Code)

		var got errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, string(xerrors.CodeOf(tc.err)), got.Code)
	}
}

func TestErrorsAreLoggedBySeverity(t *testing.T) {
	cases := []struct {
		err   error
		level string
	}{
		{err: xerrors.New(xerrors.CodeInvalidArgument, "bad"), level: "level=INFO"},
		{err: xerrors.New(xerrors.CodeUpstream, "model down"), level: "level=WARN"},
		{err: xerrors.New(xerrors.CodeStorageFailure, "disk full"), level: "level=ERROR"},
		{err: stdErrors.New("boom"), level: "level=ERROR"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		srv := NewServer(":0", &stubDispatcher{err: tc.err}, nil, WithLogger(log))

		serve(t, srv, http.MethodPost, "/api/v1/messages", `{"message":"hi"}`)
		assert.Contains(t, buf.String(), tc.level, tc.err.Error())
		assert.Contains(t, buf.String(), string(xerrors.CodeOf(tc.err)))
	}
}

func TestHandleMessagesAsync(t *testing.T) {
	dispatcher := &stubDispatcher{}
	producer := &stubProducer{}
	srv := NewServer(":0", dispatcher, nil, WithInbox(producer))

	rec := serve(t, srv, http.MethodPost, "/api/v1/messages?async=true", `{"message":"Buy milk"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var got acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, producer.published, 1)
	assert.Equal(t, producer.published[0].ID, got.ID)
	assert.Equal(t, "Buy milk", producer.published[0].Text)
	assert.Empty(t, dispatcher.messages)
}

func TestHandleMessagesAsyncWithoutInbox(t *testing.T) {
	srv := NewServer(":0", &stubDispatcher{}, nil)
	rec := serve(t, srv, http.MethodPost, "/api/v1/messages?async=1", `{"message":"Buy milk"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleTodosFilters(t *testing.T) {
	srv := NewServer(":0", nil, sampleTodos())

	cases := []struct {
		query string
		ids   []int
	}{
		{query: "", ids: []int{1}},
		{query: "?filter=active", ids: []int{1}},
		{query: "?filter=all", ids: []int{1, 2}},
		{query: "?filter=completed", ids: []int{2}},
	}
	for _, tc := range cases {
		rec := serve(t, srv, http.MethodGet, "/api/v1/todos"+tc.query, "")
		require.Equal(t, http.StatusOK, rec.Code, tc.query)

		var got []todo.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		ids := make([]int, 0, len(got))
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, tc.ids, ids, tc.query)
	}
}

func TestHandleTodosEmptyListIsArray(t *testing.T) {
	srv := NewServer(":0", nil, &stubTodos{})
	rec := serve(t, srv, http.MethodGet, "/api/v1/todos?filter=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleTodosErrors(t *testing.T) {
	srv := NewServer(":0", nil, sampleTodos())
	assert.Equal(t, http.StatusBadRequest, serve(t, srv, http.MethodGet, "/api/v1/todos?filter=soon", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, srv, http.MethodDelete, "/api/v1/todos", "").Code)

	missing := NewServer(":0", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, missing, http.MethodGet, "/api/v1/todos", "").Code)
}

func TestWithContextRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := withContext(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run after shutdown")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/todos", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(":0", &stubDispatcher{reply: "ok"}, nil)
	serve(t, srv, http.MethodPost, "/api/v1/messages", `{"message":"hi"}`)

	rec := serve(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `llmflow_http_requests_total{code="200",handler="messages",method="POST"}`)
	assert.Contains(t, rec.Body.String(), `llmflow_messages_total{result="ok",source="api"}`)
}
