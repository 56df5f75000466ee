package llm

import (
	"context"
	stdErrors "errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "llmflow/internal/errors"
)

type stubClient struct {
	resp *Response
	err  error
	reqs []Request
}

func (s *stubClient) Complete(_ context.Context, req Request) (*Response, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type label struct {
	Result string `json:"result"`
	Score  int    `json:"score"`
}

var labelSchema = MustSchema("label", "a test label", &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"result": {Type: "string", Enum: []any{"A", "B"}},
		"score":  {Type: "integer"},
	},
})

func TestSchemaJSONIsClosed(t *testing.T) {
	wire := labelSchema.JSON()
	assert.Equal(t, false, wire["additionalProperties"])
	assert.Equal(t, []any{"result", "score"}, wire["required"])
	assert.Equal(t, "label", labelSchema.Name())
}

func TestDecodeSuccess(t *testing.T) {
	client := &stubClient{resp: &Response{Structured: []byte(`{"result":"B","score":3}`)}}

	got, err := Decode[label](context.Background(), client, "classify", labelSchema)
	require.NoError(t, err)
	assert.Equal(t, label{Result: "B", Score: 3}, got)

	require.Len(t, client.reqs, 1)
	assert.Same(t, labelSchema, client.reqs[0].Schema)
	assert.Equal(t, "classify", client.reqs[0].Prompt)
}

func TestDecodeFallsBackToText(t *testing.T) {
	client := &stubClient{resp: &Response{Text: " {\"result\":\"A\",\"score\":1} "}}

	got, err := Decode[label](context.Background(), client, "classify", labelSchema)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Result)
}

func TestDecodeRejectsNonConformingPayloads(t *testing.T) {
	cases := map[string]string{
		"value outside enum": `{"result":"C","score":1}`,
		"missing field":      `{"result":"A"}`,
		"unknown field":      `{"result":"A","score":1,"extra":true}`,
		"wrong type":         `{"result":"A","score":"high"}`,
		"not json":           `result: A`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			client := &stubClient{resp: &Response{Structured: []byte(payload)}}
			_, err := Decode[label](context.Background(), client, "classify", labelSchema)
			require.Error(t, err)
			assert.Equal(t, xerrors.CodeSchemaValidation, xerrors.CodeOf(err))
		})
	}
}

func TestDecodeWrapsTransportFailures(t *testing.T) {
	cause := stdErrors.New("dial tcp: connection refused")
	client := &stubClient{err: cause}

	_, err := Decode[label](context.Background(), client, "classify", labelSchema)
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeUpstream, xerrors.CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestDecodeKeepsCodedErrors(t *testing.T) {
	client := &stubClient{err: xerrors.New(xerrors.CodeTimeout, "slow")}

	_, err := Decode[label](context.Background(), client, "classify", labelSchema)
	assert.Equal(t, xerrors.CodeTimeout, xerrors.CodeOf(err))
}

func TestDecodeRequiresSchemaAndClient(t *testing.T) {
	_, err := Decode[label](context.Background(), nil, "x", labelSchema)
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))

	_, err = Decode[label](context.Background(), &stubClient{}, "x", nil)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestText(t *testing.T) {
	client := &stubClient{resp: &Response{Text: "  Paris is the capital.\n"}}

	got, err := Text(context.Background(), client, "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital.", got)
	assert.Nil(t, client.reqs[0].Schema)
}

func TestRequestMessages(t *testing.T) {
	req := Request{
		History: []Message{{Role: RoleUser, Content: "first"}},
		Prompt:  "second",
	}
	msgs := req.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, RoleUser, msgs[1].Role)

	assert.Len(t, Request{History: req.History}.Messages(), 1)
}
