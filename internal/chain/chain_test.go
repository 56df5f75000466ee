package chain

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/llm"
)

// sequenceClient 依次返回预设的结构化结果。
type sequenceClient struct {
	payloads []string
	errAt    int
	requests []llm.Request
}

func (s *sequenceClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if s.errAt > 0 && idx == s.errAt-1 {
		return nil, stdErrors.New("boom")
	}
	return &llm.Response{Structured: []byte(s.payloads[idx])}, nil
}

func fixedNow() time.Time {
	return time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
}

func TestRunProducesConfirmation(t *testing.T) {
	client := &sequenceClient{payloads: []string{
		`{"description":"Meeting with Alice next Tuesday at 2pm","is_calendar_event":true,"confidence_score":0.92}`,
		`{"name":"Project sync","date":"2025-02-11T14:00:00","duration_minutes":60,"participants":["Alice","Bob"]}`,
		`{"confirmation_message":"Dear Alice, see you Tuesday. Best regards, Susie"}`,
	}}

	got, err := New(client, WithClock(fixedNow)).Run(context.Background(), "Let's schedule a 1h meeting next Tuesday at 2pm with Alice and Bob")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Dear Alice, see you Tuesday. Best regards, Susie", got.ConfirmationMessage)

	require.Len(t, client.requests, 3)
	assert.Equal(t, "event_extraction", client.requests[0].Schema.Name())
	assert.Contains(t, client.requests[0].Prompt, "Today is Monday, February 03, 2025.")
	assert.Contains(t, client.requests[1].Prompt, "Description: Meeting with Alice next Tuesday at 2pm")
	assert.Equal(t, "event_details", client.requests[1].Schema.Name())
	assert.Contains(t, client.requests[2].Prompt, `"duration_minutes":60`)
	assert.Contains(t, client.requests[2].Prompt, "Susie")
}

func TestRunGatesLowConfidence(t *testing.T) {
	cases := []string{
		`{"description":"maybe lunch","is_calendar_event":true,"confidence_score":0.69}`,
		`{"description":"a poem","is_calendar_event":false,"confidence_score":0.99}`,
	}
	for _, payload := range cases {
		client := &sequenceClient{payloads: []string{payload}}
		got, err := New(client).Run(context.Background(), "text")
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Len(t, client.requests, 1)
	}
}

func TestRunAcceptsThresholdConfidence(t *testing.T) {
	client := &sequenceClient{payloads: []string{
		`{"description":"standup","is_calendar_event":true,"confidence_score":0.7}`,
		`{"name":"Standup","date":"2025-02-04","duration_minutes":15,"participants":[]}`,
		`{"confirmation_message":"ok"}`,
	}}
	got, err := New(client, WithSignature("Ada")).Run(context.Background(), "standup tomorrow")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, client.requests[2].Prompt, "Ada")
}

func TestRunPropagatesStepFailures(t *testing.T) {
	client := &sequenceClient{
		payloads: []string{`{"description":"x","is_calendar_event":true,"confidence_score":0.9}`},
		errAt:    2,
	}
	_, err := New(client).Run(context.Background(), "text")
	assert.Equal(t, xerrors.CodeUpstream, xerrors.CodeOf(err))

	client = &sequenceClient{payloads: []string{
		`{"description":"x","is_calendar_event":true,"confidence_score":0.9}`,
		`{"name":"x","date":"2025-02-04","duration_minutes":"long","participants":[]}`,
	}}
	_, err = New(client).Run(context.Background(), "text")
	assert.Equal(t, xerrors.CodeSchemaValidation, xerrors.CodeOf(err))
	assert.Len(t, client.requests, 2)
}

func TestRunRequiresClient(t *testing.T) {
	_, err := New(nil).Run(context.Background(), "text")
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}
