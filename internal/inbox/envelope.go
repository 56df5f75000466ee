package inbox

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "llmflow/internal/errors"
)

// Envelope 是队列中的一条入站消息。
type Envelope struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewEnvelope 为消息分配 ID 与接收时间。
func NewEnvelope(text string) (Envelope, error) {
	if strings.TrimSpace(text) == "" {
		return Envelope{}, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}
	return Envelope{
		ID:         uuid.NewString(),
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("序列化消息失败: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析队列消息失败")
	}
	if _, err := uuid.Parse(env.ID); err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "队列消息 ID 不合法")
	}
	return env, nil
}
